package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// Field is a named value for a column outside the known dictionary.
type Field struct {
	Name  string
	Value any
}

// Record is one parsed transit operation line.
//
// Known columns live in a fixed array indexed by Column; a nil slot means the
// column did not appear in the source. Columns the dictionary does not know
// are kept in Extra in source order so exports round-trip. Values are either
// string or float64.
//
// A Record is built once by the parser and treated as immutable afterwards.
type Record struct {
	ID                 string
	ImportDate         string
	SourceLine         int
	AnomalyProbability AnomalyProbability
	AnomalyTypes       []AnomalyType

	known [numColumns]any
	Extra []Field
}

// Set assigns a value by field name. Derived keys, known columns, and extra
// columns are all accepted.
func (r *Record) Set(name string, v any) {
	switch name {
	case KeyID:
		r.ID = cast.ToString(v)
		return
	case KeyImportDate:
		r.ImportDate = cast.ToString(v)
		return
	case KeySourceLine:
		r.SourceLine = cast.ToInt(v)
		return
	case KeyAnomalyProbability:
		r.AnomalyProbability = AnomalyProbability(cast.ToString(v))
		return
	case KeyAnomalyTypes:
		r.AnomalyTypes = toAnomalyTypes(v)
		return
	}

	if c, ok := LookupName(name); ok {
		r.SetColumn(c, v)
		return
	}

	for i := range r.Extra {
		if r.Extra[i].Name == name {
			extra := slices.Clone(r.Extra)
			extra[i].Value = v
			r.Extra = extra
			return
		}
	}
	r.Extra = append(slices.Clip(r.Extra), Field{Name: name, Value: v})
}

// SetColumn assigns a known column. Numeric columns are normalized to float64
// when the value converts cleanly.
func (r *Record) SetColumn(c Column, v any) {
	if v != nil && columnSpecs[c].Type == FieldNumeric {
		if _, isFloat := v.(float64); !isFloat {
			if f, err := cast.ToFloat64E(v); err == nil {
				v = f
			}
		}
	}
	r.known[c] = v
}

// Value returns a known column value and whether it was present.
func (r Record) Value(c Column) (any, bool) {
	v := r.known[c]
	return v, v != nil
}

// Text returns a known column rendered as a string ("" when absent).
func (r Record) Text(c Column) string {
	return formatValue(r.known[c])
}

// Number returns a known column as a float64 (0 when absent or not numeric).
func (r Record) Number(c Column) float64 {
	return cast.ToFloat64(r.known[c])
}

// Get returns the value stored under a field name.
func (r Record) Get(name string) (any, bool) {
	switch name {
	case KeyID:
		return r.ID, r.ID != ""
	case KeyImportDate:
		return r.ImportDate, r.ImportDate != ""
	case KeySourceLine:
		return r.SourceLine, r.SourceLine > 0
	case KeyAnomalyProbability:
		return string(r.AnomalyProbability), r.AnomalyProbability != ""
	case KeyAnomalyTypes:
		return r.AnomalyTypes, r.AnomalyTypes != nil
	}
	if c, ok := LookupName(name); ok {
		return r.Value(c)
	}
	for _, f := range r.Extra {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// GetString returns the value under name rendered as export text.
func (r Record) GetString(name string) string {
	v, _ := r.Get(name)
	return formatValue(v)
}

// Keys lists the present field names: known columns in dictionary order,
// extras in source order, then derived fields.
func (r Record) Keys() []string {
	keys := make([]string, 0, int(numColumns)+len(r.Extra)+5)
	for c := Column(0); c < numColumns; c++ {
		if r.known[c] != nil {
			keys = append(keys, columnSpecs[c].Name)
		}
	}
	for _, f := range r.Extra {
		keys = append(keys, f.Name)
	}
	for _, k := range []string{KeyID, KeyImportDate, KeySourceLine, KeyAnomalyProbability, KeyAnomalyTypes} {
		if _, ok := r.Get(k); ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// HasAnomalies reports whether any anomaly type is flagged.
func (r Record) HasAnomalies() bool {
	return len(r.AnomalyTypes) > 0
}

// HasType reports whether the given anomaly type is flagged.
func (r Record) HasType(t AnomalyType) bool {
	return slices.Contains(r.AnomalyTypes, t)
}

// Risk derives the five-step risk level from probability and anomaly count.
func (r Record) Risk() RiskLevel {
	switch r.AnomalyProbability {
	case ProbabilityHigh:
		if len(r.AnomalyTypes) >= 2 {
			return RiskCritical
		}
		return RiskHigh
	case ProbabilityElevated:
		return RiskMedium
	case ProbabilityMedium:
		return RiskLow
	default:
		return RiskMinimal
	}
}

// MarshalJSON encodes the record as a flat object in Keys order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		v, _ := r.Get(k)
		val, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("record %s: field %s: %w", r.ID, k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a flat object, preserving the order of extra keys.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("record: expected object, got %v", tok)
	}

	*r = Record{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("record: unexpected key %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("record: field %s: %w", key, err)
		}
		if v == nil && !isExtraName(key) {
			continue
		}
		r.Set(key, v)
	}
	_, err = dec.Token()
	return err
}

func isExtraName(name string) bool {
	if IsDerivedKey(name) {
		return false
	}
	_, known := LookupName(name)
	return !known
}

func toAnomalyTypes(v any) []AnomalyType {
	switch t := v.(type) {
	case nil:
		return nil
	case []AnomalyType:
		return slices.Clone(t)
	case string:
		out := []AnomalyType{}
		for _, part := range strings.Split(t, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, AnomalyType(part))
			}
		}
		return out
	default:
		parts := cast.ToStringSlice(v)
		out := make([]AnomalyType, 0, len(parts))
		for _, p := range parts {
			out = append(out, AnomalyType(p))
		}
		return out
	}
}

// formatValue renders a record value the way the CSV export writes it.
func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case []AnomalyType:
		parts := make([]string, len(t))
		for i, a := range t {
			parts[i] = string(a)
		}
		return strings.Join(parts, ",")
	default:
		return cast.ToString(v)
	}
}
