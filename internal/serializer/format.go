package serializer

import (
	"fmt"
	"strings"
)

// Format selects the wire encoding of a serializer. It is independent of the
// storage kind a value is written to.
type Format int

const (
	JSON Format = iota
	Binary
	HighPerfBinaryA // CBOR
	HighPerfBinaryB // protobuf
)

var formatNames = map[Format]string{
	JSON:            "json",
	Binary:          "binary",
	HighPerfBinaryA: "cbor",
	HighPerfBinaryB: "protobuf",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// Formats returns every format in declaration order.
func Formats() []Format {
	return []Format{JSON, Binary, HighPerfBinaryA, HighPerfBinaryB}
}

// ParseFormat accepts the configuration names and the enum names.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "json":
		return JSON, nil
	case "binary":
		return Binary, nil
	case "cbor", "highperfbinarya":
		return HighPerfBinaryA, nil
	case "protobuf", "proto", "highperfbinaryb":
		return HighPerfBinaryB, nil
	default:
		return 0, fmt.Errorf("unknown serialization format: %q", name)
	}
}
