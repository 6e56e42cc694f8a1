// Package protoconv carries Things across protobuf boundaries.
//
// Importers that speak gRPC hand records over as google.protobuf.Struct
// (ToStruct / FromStruct) or as their own typed messages (FromMessage), which
// are flattened through protoreflect using JSON field names. Field values are
// never interpreted beyond shape; the identity and merge layers decide what
// they mean.
package protoconv
