package result

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Kind discriminates the two structured result schemas.
type Kind string

const (
	// KindFlat is the ten-category entity schema keyed by UMLS semantic types.
	KindFlat Kind = "flat"
	// KindNested is the USCDI data-class schema.
	KindNested Kind = "nested"
)

// Field is one named field of a record, in document order.
type Field struct {
	Key   string
	Value json.RawMessage
}

// Record is one extracted item. The raw JSON object is retained verbatim;
// fields are decoded in document order so that fallback mention resolution
// and aggregation iterate the way the payload was written.
type Record struct {
	raw    json.RawMessage
	fields []Field
}

// NewRecord wraps a raw JSON value. Non-object values yield a record with no
// fields; they can still be dumped but never resolve a mention.
func NewRecord(raw json.RawMessage) Record {
	fields, err := decodeFields(raw)
	if err != nil {
		return Record{raw: raw}
	}
	return Record{raw: raw, fields: fields}
}

// Raw returns the record's JSON exactly as received.
func (r Record) Raw() json.RawMessage { return r.raw }

// Fields returns the record's fields in document order.
func (r Record) Fields() []Field { return r.fields }

// IsObject reports whether the underlying value was a JSON object.
func (r Record) IsObject() bool { return r.fields != nil }

// String returns the value of the named field when it is a JSON string.
// Wrong-typed or absent fields report false; a malformed field never aborts
// processing of the record.
func (r Record) String(key string) (string, bool) {
	for _, f := range r.fields {
		if f.Key != key {
			continue
		}
		var s string
		if err := json.Unmarshal(f.Value, &s); err != nil {
			return "", false
		}
		return s, true
	}
	return "", false
}

// ClassEntry is one top-level key of a nested result, in document order.
type ClassEntry struct {
	Key     string
	Records []Record
	IsArray bool
}

// Result is one parsed structured extraction result. Exactly one variant is
// populated. The payload bytes are retained verbatim for export.
type Result struct {
	Kind    Kind
	Flat    map[string][]Record
	Classes []ClassEntry

	raw json.RawMessage
}

// Payload returns the structured payload exactly as received.
func (r *Result) Payload() json.RawMessage { return r.raw }

// envelope is the extraction response wire shape. The active schema is
// determined by which payload field is present.
type envelope struct {
	Success   *bool           `json:"success"`
	Error     string          `json:"error,omitempty"`
	Entities  json.RawMessage `json:"entities,omitempty"`
	USCDIData json.RawMessage `json:"uscdi_data,omitempty"`
}

// ParseResponse parses an extraction response envelope and returns the active
// structured result. A false success indicator or an absent payload is an
// error; no partial result is returned.
func ParseResponse(raw []byte) (*Result, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("parse extraction response: %w", err)
	}
	if env.Success != nil && !*env.Success {
		if env.Error != "" {
			return nil, fmt.Errorf("extraction failed: %s", env.Error)
		}
		return nil, fmt.Errorf("extraction failed")
	}
	switch {
	case len(env.Entities) > 0 && !isJSONNull(env.Entities):
		return ParsePayload(KindFlat, env.Entities)
	case len(env.USCDIData) > 0 && !isJSONNull(env.USCDIData):
		return ParsePayload(KindNested, env.USCDIData)
	}
	return nil, fmt.Errorf("extraction response has no payload")
}

// ParsePayload parses a bare structured payload of a known kind. Exports are
// bare payloads, so this is also the import half of the round trip.
func ParsePayload(kind Kind, raw json.RawMessage) (*Result, error) {
	switch kind {
	case KindFlat:
		return parseFlat(raw)
	case KindNested:
		return parseNested(raw)
	}
	return nil, fmt.Errorf("unknown result kind %q", kind)
}

func parseFlat(raw json.RawMessage) (*Result, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("parse flat payload: %w", err)
	}
	flat := make(map[string][]Record, len(top))
	for key, val := range top {
		var items []json.RawMessage
		if err := json.Unmarshal(val, &items); err != nil {
			// Keys whose value is not an array carry no records.
			continue
		}
		recs := make([]Record, 0, len(items))
		for _, item := range items {
			recs = append(recs, NewRecord(item))
		}
		flat[key] = recs
	}
	return &Result{Kind: KindFlat, Flat: flat, raw: raw}, nil
}

func parseNested(raw json.RawMessage) (*Result, error) {
	fields, err := decodeFields(raw)
	if err != nil {
		return nil, fmt.Errorf("parse nested payload: %w", err)
	}
	classes := make([]ClassEntry, 0, len(fields))
	for _, f := range fields {
		entry := ClassEntry{Key: f.Key}
		if isEmptyValue(f.Value) {
			classes = append(classes, entry)
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(f.Value, &items); err == nil {
			entry.IsArray = true
			for _, item := range items {
				entry.Records = append(entry.Records, NewRecord(item))
			}
		} else {
			entry.Records = []Record{NewRecord(f.Value)}
		}
		classes = append(classes, entry)
	}
	return &Result{Kind: KindNested, Classes: classes, raw: raw}, nil
}

// Empty reports whether the entry holds no displayable data: a null or empty
// value, an empty collection, or an empty object.
func (e ClassEntry) Empty() bool {
	if len(e.Records) == 0 {
		return true
	}
	if !e.IsArray && len(e.Records) == 1 {
		return isEmptyValue(e.Records[0].raw)
	}
	return false
}

// Internal reports whether the key is an internal-use marker such as
// "_metadata". Internal entries are never displayed or matched.
func (e ClassEntry) Internal() bool {
	return strings.HasPrefix(e.Key, "_")
}

// decodeFields decodes a JSON object's members in document order. Returns an
// error for any value that is not an object.
func decodeFields(raw []byte) ([]Field, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("not a JSON object")
	}
	fields := []Field{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected object key token %v", keyTok)
		}
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return nil, err
		}
		fields = append(fields, Field{Key: key, Value: val})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return fields, nil
}

func isJSONNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

func isEmptyValue(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	switch string(trimmed) {
	case "", "null", `""`, "[]", "{}":
		return true
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return strings.TrimSpace(s) == ""
	}
	return false
}
