// Package internal documents the catalog service internals.
//
// The internal tree is organized by responsibility:
// - adapters: per-source fetch and normalization
// - domain: catalog entities, dedup, confidence, ingest, editorial
// - pipeline: the ingestion orchestrator and run reports
// - search: search collection schema, projection, and the typesense client
// - storage: database access and repositories (pgx + Postgres)
// - jobs: background workers and the River schedule
// - auth, config, metrics, normalize, fingerprint: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
