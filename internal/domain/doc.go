// Package domain models observational weather data from OGC API - Features
// endpoints and the durable ingestion checkpoint kept between runs.
//
// # Data Source
//
// Observations come from Environment Canada GeoMet collections exposed as
// OGC API - Features: surface weather (swob-realtime), hydrometric
// (hydrometric-realtime), and climate-hourly. Each collection uses its own
// property names for the observation instant and the station identifier, so
// the closed set of [Source] records carries a per-source field table instead
// of branching on source names at runtime.
//
// # Field Conventions
//
// Timestamps:
//
//	swob:           "date_tm-value", falling back to "obs_date_tm"
//	hydrometric:    "DATETIME"
//	climate-hourly: "UTC_DATE", falling back to "LOCAL_DATE"
//	all sources:    "processed_date_tm" as a last resort
//
// Values are ISO-8601 strings, usually with a trailing "Z". Some collections
// emit a bare "YYYY-MM-DD HH:MM:SS" form which is taken as UTC.
//
// Station identifiers:
//
//	swob:           "tc_id-value", falling back to "msc_id-value"
//	hydrometric:    "STATION_NUMBER"
//	climate-hourly: "CLIMATE_IDENTIFIER"
//
// When no station field is populated the feature id is used, and when that
// is also absent a deterministic key is derived from a SHA-256 of the full
// property map so that every observation maps to some station.
//
// Quality codes:
//
//	swob annotates measurements with per-field QA companions named
//	"<field>-qa" (e.g. "air_temp-qa"). Codes at or above the configured
//	threshold pass; a missing code is treated as acceptable.
//
// # Checkpoint
//
// IngestionState is the single JSON document persisted between runs, keyed
// by source name. Watermarks in it only ever move forward; see the ingest
// package for the advancement rules.
package domain
