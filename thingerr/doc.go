// Package thingerr provides the structured error taxonomy shared by every
// thinggraph component.
//
// # Overview
//
// Failures in the consolidation core fall into a small, closed set of codes.
// Each code carries a default class that tells a batch importer whether the
// record should be skipped or the call may be retried:
//
//   - CodeSchemaResolution: type name unknown or no tag/collection reachable (permanent)
//   - CodeIdentity: not enough data to derive a canonical key (permanent)
//   - CodeMergeConflict: strict-mode type mismatch for one ID (permanent)
//   - CodeStorage: backend I/O, network or serialization failure (transient)
//   - CodeUnsupported: operation not offered by the configured backend (permanent)
//   - CodeConfig: invalid configuration (permanent)
//   - CodeInvalidRecord: a field that cannot be coerced, such as an unparseable date (permanent)
//
// # Usage
//
//	err := thingerr.New("schema", "resolve", thingerr.CodeSchemaResolution,
//	    "type not registered").WithDetails(map[string]any{"type": name})
//
//	if thingerr.IsCode(err, thingerr.CodeStorage) {
//	    // retry at the caller's discretion
//	}
//
// Errors convert to gRPC statuses through GRPCStatus so importers served over
// gRPC report meaningful codes without extra mapping.
package thingerr
