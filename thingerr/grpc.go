package thingerr

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GRPCCode maps the error code onto a gRPC status code.
func (e *Error) GRPCCode() codes.Code {
	switch e.Code {
	case CodeSchemaResolution:
		return codes.FailedPrecondition
	case CodeIdentity, CodeConfig, CodeInvalidRecord:
		return codes.InvalidArgument
	case CodeMergeConflict:
		return codes.Aborted
	case CodeStorage:
		return codes.Unavailable
	case CodeUnsupported:
		return codes.Unimplemented
	default:
		return codes.Unknown
	}
}

// GRPCStatus lets status.FromError recognise *Error values.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.GRPCCode(), e.Error())
}
