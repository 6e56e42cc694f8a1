// Package identity computes canonical, stable identities for things.
//
// # ID Format
//
// Canonical IDs follow the format {tag}:{key}, where tag comes from the schema
// registry and key is either an importer-supplied slug or a content hash:
//
//	post:hello-world          explicit key
//	bookmark:Yl3wLX3qR0SyC7uV  hash of the identifying fields
//	person:8K7J6H5G4F3D2S1A    hash of the whole sparse record
//
// The format is a persisted contract: every stored cross-reference depends
// on it.
//
// # Key Derivation
//
// Identify picks the first applicable strategy:
//  1. the record's ID, when non-empty (a leading "{tag}:" is stripped)
//  2. the type's identifying fields, when declared and all populated
//  3. the sparse record minus ignored fields (id, type, date and the usual
//     ingestion timestamps)
//
// Hashes are SHA-256 over a canonical string, truncated to 12 bytes and
// base64url encoded without padding: 16 printable characters.
//
// # Canonical Representation
//
// Identifying field values are normalized before hashing:
//   - Strings: lowercase and trimmed
//   - Integers: decimal
//   - Floats: fixed six decimal places
//   - Booleans: "true" or "false"
//   - Complex types: JSON serialization
//   - Field order: alphabetical
//
// Whole-record hashes use the JSON encoding of the sparse record, whose map
// keys are emitted in sorted order.
//
// The same logical record therefore always yields the same ID, which is what
// makes re-imports idempotent.
package identity
