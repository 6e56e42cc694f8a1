// Package ingest runs importer records through the identity, merge and
// storage layers.
//
// A Pipeline handles one record at a time:
//
//	filter -> resolve type -> identify -> lock -> get -> merge -> set -> unlock
//
// Writes are skipped when the merged entity is byte-identical to what the
// store already holds, so re-importing the same data is free. Run drives a
// batch and keeps going past per-record failures; only a done context stops
// it early.
//
// Every Put opens an OpenTelemetry span and increments the
// thinggraph.ingest.records counter with an outcome attribute (written,
// merged, skipped or failed).
package ingest
