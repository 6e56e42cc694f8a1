package protoconv

import (
	"encoding/base64"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/zero-day-ai/thinggraph/sparse"
	"github.com/zero-day-ai/thinggraph/thing"
	"github.com/zero-day-ai/thinggraph/thingerr"
)

const component = "protoconv"

const timestampName protoreflect.FullName = "google.protobuf.Timestamp"

// ToStruct converts the sparse form of t to a Struct. Dates become RFC 3339
// strings and byte slices become standard base64.
func ToStruct(t thing.Thing) (*structpb.Struct, error) {
	fields := sparse.Compact(t.Fields())
	out, err := structpb.NewStruct(structValues(fields))
	if err != nil {
		return nil, thingerr.New(component, "to_struct", thingerr.CodeInvalidRecord,
			"record cannot be represented as a Struct").WithCause(err)
	}
	return out, nil
}

func structValues(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = structValue(v)
	}
	return out
}

func structValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case []byte:
		return base64.StdEncoding.EncodeToString(val)
	case map[string]any:
		return structValues(val)
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = structValue(item)
		}
		return items
	default:
		return v
	}
}

// FromStruct builds a Thing from a Struct. Integral numbers become int64
// since Struct carries every number as a double.
func FromStruct(s *structpb.Struct) (thing.Thing, error) {
	if s == nil {
		return thing.Thing{}, thingerr.New(component, "from_struct", thingerr.CodeInvalidRecord, "struct is nil")
	}
	fields := s.AsMap()
	for k, v := range fields {
		fields[k] = integralNumbers(v)
	}
	return thing.FromFields(fields)
}

func integralNumbers(v any) any {
	switch val := v.(type) {
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return int64(val)
		}
		return val
	case map[string]any:
		for k, item := range val {
			val[k] = integralNumbers(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = integralNumbers(item)
		}
		return val
	default:
		return v
	}
}

// FromMessage flattens a typed message into a Thing of the given type. Only
// populated fields are read; keys are JSON field names, enums become their
// value names, google.protobuf.Timestamp becomes time.Time and nested
// messages become maps.
func FromMessage(typ string, msg proto.Message) (thing.Thing, error) {
	if msg == nil {
		return thing.Thing{}, thingerr.New(component, "from_message", thingerr.CodeInvalidRecord, "proto message is nil")
	}
	props, err := messageFields(msg.ProtoReflect())
	if err != nil {
		return thing.Thing{}, thingerr.New(component, "from_message", thingerr.CodeInvalidRecord,
			"failed to convert message").WithCause(err)
	}
	props[thing.FieldType] = typ
	return thing.FromFields(props)
}

func messageFields(m protoreflect.Message) (map[string]any, error) {
	props := make(map[string]any)
	var rangeErr error
	m.Range(func(field protoreflect.FieldDescriptor, value protoreflect.Value) bool {
		converted, err := convertField(field, value)
		if err != nil {
			rangeErr = fmt.Errorf("field %s: %w", field.Name(), err)
			return false
		}
		props[field.JSONName()] = converted
		return true
	})
	return props, rangeErr
}

func convertField(field protoreflect.FieldDescriptor, value protoreflect.Value) (any, error) {
	switch {
	case field.IsMap():
		return convertMap(field, value.Map())
	case field.IsList():
		list := value.List()
		items := make([]any, 0, list.Len())
		for i := 0; i < list.Len(); i++ {
			item, err := convertScalar(field, list.Get(i))
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	default:
		return convertScalar(field, value)
	}
}

// convertScalar converts a single (non-list, non-map) value to a Go native
// type.
func convertScalar(field protoreflect.FieldDescriptor, value protoreflect.Value) (any, error) {
	switch field.Kind() {
	case protoreflect.StringKind:
		return value.String(), nil
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
		protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return value.Int(), nil
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind, protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return value.Uint(), nil
	case protoreflect.FloatKind, protoreflect.DoubleKind:
		return value.Float(), nil
	case protoreflect.BoolKind:
		return value.Bool(), nil
	case protoreflect.BytesKind:
		return value.Bytes(), nil
	case protoreflect.EnumKind:
		enumVal := value.Enum()
		enumDesc := field.Enum().Values().ByNumber(enumVal)
		if enumDesc == nil {
			return nil, fmt.Errorf("unknown enum value %d", enumVal)
		}
		return string(enumDesc.Name()), nil
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return messageValue(value.Message())
	default:
		return nil, fmt.Errorf("unsupported field kind: %v", field.Kind())
	}
}

func messageValue(m protoreflect.Message) (any, error) {
	if m.Descriptor().FullName() == timestampName {
		ts, ok := m.Interface().(*timestamppb.Timestamp)
		if !ok {
			ts = &timestamppb.Timestamp{}
			proto.Merge(ts, m.Interface())
		}
		if err := ts.CheckValid(); err != nil {
			return nil, err
		}
		return ts.AsTime(), nil
	}
	return messageFields(m)
}

// convertMap converts a map field with string keys.
func convertMap(field protoreflect.FieldDescriptor, value protoreflect.Map) (any, error) {
	if field.MapKey().Kind() != protoreflect.StringKind {
		return nil, fmt.Errorf("only string-keyed maps are supported, got map<%v, _>", field.MapKey().Kind())
	}
	out := make(map[string]any, value.Len())
	var rangeErr error
	value.Range(func(k protoreflect.MapKey, v protoreflect.Value) bool {
		converted, err := convertScalar(field.MapValue(), v)
		if err != nil {
			rangeErr = err
			return false
		}
		out[k.String()] = converted
		return true
	})
	return out, rangeErr
}
