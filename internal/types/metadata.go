package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Well-known package metadata keys
const (
	MetadataKeyName       = "name"
	MetadataKeyRepository = "repo"
)

// ValueKind enumerates the shapes a metadata value can take
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindBool
	KindNumber
	KindStrings
	// KindRaw holds any other JSON shape (objects, mixed arrays) verbatim
	KindRaw
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindStrings:
		return "strings"
	case KindRaw:
		return "raw"
	}
	return "unknown"
}

// Value is a single package metadata value
type Value struct {
	kind    ValueKind
	str     string
	boolean bool
	number  json.Number
	strings []string
	raw     json.RawMessage
}

// Null returns the JSON null value
func Null() Value { return Value{kind: KindNull} }

// String returns a string value
func String(s string) Value { return Value{kind: KindString, str: s} }

// Bool returns a boolean value
func Bool(b bool) Value { return Value{kind: KindBool, boolean: b} }

// Number returns a numeric value
func Number(n json.Number) Value { return Value{kind: KindNumber, number: n} }

// Strings returns a list-of-strings value
func Strings(values ...string) Value {
	list := make([]string, len(values))
	copy(list, values)
	return Value{kind: KindStrings, strings: list}
}

// Kind reports the shape of the value
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v is JSON null
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsString returns the string payload if v is a string
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// AsBool returns the boolean payload if v is a boolean
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.boolean, true
}

// AsNumber returns the numeric payload if v is a number
func (v Value) AsNumber() (json.Number, bool) {
	if v.kind != KindNumber {
		return "", false
	}
	return v.number, true
}

// AsStrings returns the list payload if v is a list of strings
func (v Value) AsStrings() ([]string, bool) {
	if v.kind != KindStrings {
		return nil, false
	}
	return v.strings, true
}

// MarshalJSON implements json.Marshaler
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindBool:
		return json.Marshal(v.boolean)
	case KindNumber:
		return []byte(v.number.String()), nil
	case KindStrings:
		if v.strings == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.strings)
	case KindRaw:
		return v.raw, nil
	}
	return nil, fmt.Errorf("unknown value kind %d", v.kind)
}

// UnmarshalJSON implements json.Unmarshaler
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty metadata value")
	}
	switch data[0] {
	case 'n':
		*v = Null()
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
		return nil
	case '[':
		var elems []*string
		if err := json.Unmarshal(data, &elems); err == nil && !hasNil(elems) {
			list := make([]string, len(elems))
			for i, e := range elems {
				list[i] = *e
			}
			*v = Value{kind: KindStrings, strings: list}
			return nil
		}
	case '{':
	default:
		var n json.Number
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&n); err != nil {
			return err
		}
		*v = Number(n)
		return nil
	}
	if !json.Valid(data) {
		return fmt.Errorf("invalid metadata value %q", data)
	}
	raw := make(json.RawMessage, len(data))
	copy(raw, data)
	*v = Value{kind: KindRaw, raw: raw}
	return nil
}

func hasNil(elems []*string) bool {
	for _, e := range elems {
		if e == nil {
			return true
		}
	}
	return false
}

// PackageMetadata is a free-form package document. Only the name and
// repository keys are interpreted; everything else is passed through.
type PackageMetadata map[string]Value

// Get returns the value stored under key
func (m PackageMetadata) Get(key string) (Value, bool) {
	v, ok := m[key]
	return v, ok
}

// StringField returns the string stored under key, if present and a string
func (m PackageMetadata) StringField(key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	return v.AsString()
}

// Name returns the package name
func (m PackageMetadata) Name() string {
	name, _ := m.StringField(MetadataKeyName)
	return name
}

// Repository returns the repository the package belongs to
func (m PackageMetadata) Repository() string {
	repo, _ := m.StringField(MetadataKeyRepository)
	return repo
}

// Identity returns the (repository, name) identity of the package
func (m PackageMetadata) Identity() PackageIdentity {
	return PackageIdentity{Repository: m.Repository(), Name: m.Name()}
}

// Clone returns a shallow copy of the document
func (m PackageMetadata) Clone() PackageMetadata {
	out := make(PackageMetadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
