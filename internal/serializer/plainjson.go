package serializer

import (
	"encoding/json"
	"fmt"
)

// PlainJSON writes bare JSON documents without an envelope. The JSON-file
// provider uses it so files on disk stay human-readable.
type PlainJSON struct {
	pretty bool
}

func NewPlainJSON(pretty bool) *PlainJSON {
	return &PlainJSON{pretty: pretty}
}

func (j *PlainJSON) Format() Format { return JSON }

func (j *PlainJSON) Marshal(v any) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if j.pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return nil, fmt.Errorf("json encode %T: %w", v, err)
	}
	return data, nil
}

func (j *PlainJSON) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json decode into %T: %w", v, err)
	}
	return nil
}

func (j *PlainJSON) MarshalText(v any) (string, error)      { return marshalText(j, v) }
func (j *PlainJSON) UnmarshalText(text string, v any) error { return unmarshalText(j, text, v) }
func (j *PlainJSON) EstimatedSize(v any) int                { return estimatedSize(j, v) }
func (j *PlainJSON) IsValid(data []byte) bool               { return json.Valid(data) }
