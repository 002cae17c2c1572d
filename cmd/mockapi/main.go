// Command mockapi serves a fixture-backed OGC API - Features endpoint for
// local development of the producer. It splits a FeatureCollection JSON file
// into pages and emits "next" links the way the real API does, so pagination
// and windowing can be exercised without network access.
//
// Usage:
//
//	go run ./cmd/mockapi -fixture data/mock/swob_sample.json -addr :9090 -page-size 100
//
// Point API_URL_SWOB (or any source URL) at http://localhost:9090/items.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/couchcryptid/flume-producer/internal/domain"
)

func main() {
	fixture := flag.String("fixture", "", "path to a FeatureCollection JSON fixture")
	addr := flag.String("addr", ":9090", "listen address")
	pageSize := flag.Int("page-size", 100, "features per page")
	flag.Parse()

	if *fixture == "" {
		flag.Usage()
		log.Fatal("missing required flag: -fixture")
	}

	body, err := os.ReadFile(*fixture)
	if err != nil {
		log.Fatalf("read fixture: %v", err)
	}
	var collection domain.FeatureCollection
	if err := json.Unmarshal(body, &collection); err != nil {
		log.Fatalf("parse fixture: %v", err)
	}

	log.Printf("serving %d features from %s on %s (page size %d)",
		len(collection.Features), *fixture, *addr, *pageSize)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /items", pageHandler(collection.Features, *pageSize))

	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.Fatal(err)
	}
}

func pageHandler(features []domain.Feature, pageSize int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset := 0
		if v := r.URL.Query().Get("offset"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				http.Error(w, "bad offset", http.StatusBadRequest)
				return
			}
			offset = n
		}

		end := offset + pageSize
		if end > len(features) {
			end = len(features)
		}
		if offset > len(features) {
			offset = len(features)
		}

		page := domain.FeatureCollection{
			Type:     "FeatureCollection",
			Features: features[offset:end],
		}
		if end < len(features) {
			page.Links = []domain.Link{{
				Rel:  "next",
				Href: fmt.Sprintf("http://%s/items?offset=%d", r.Host, end),
			}}
		}
		page.NumberReturned = len(page.Features)

		w.Header().Set("Content-Type", "application/geo+json")
		if err := json.NewEncoder(w).Encode(page); err != nil {
			log.Printf("encode page: %v", err)
		}
	}
}
