package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FieldWhitelist lists the ad set fields update_adset may change.
var FieldWhitelist = []string{"bid_strategy", "bid_amount", "frequency_control_specs", "status"}

// UpdateParams is the kwargs input of update_adset, classified once at the
// boundary. It is either RawJSONText or StructuredValue.
type UpdateParams interface {
	resolve() (map[string]any, error)
}

// RawJSONText is kwargs supplied as a JSON encoded object.
type RawJSONText string

// StructuredValue is kwargs supplied as an already decoded object.
type StructuredValue map[string]any

// ParseUpdateParams classifies a raw kwargs value. Only strings and objects
// are accepted. A nil value or blank string yields an empty object.
func ParseUpdateParams(v any) (UpdateParams, error) {
	switch p := v.(type) {
	case nil:
		return StructuredValue{}, nil
	case string:
		return RawJSONText(p), nil
	case RawJSONText:
		return p, nil
	case json.RawMessage:
		return RawJSONText(p), nil
	case map[string]any:
		return StructuredValue(p), nil
	case StructuredValue:
		return p, nil
	default:
		return nil, invalidParams("expected a JSON object", echo(v))
	}
}

func (p RawJSONText) resolve() (map[string]any, error) {
	raw := strings.TrimSpace(string(p))
	if raw == "" {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, invalidParams(err.Error(), string(p))
	}
	if dec.More() {
		return nil, invalidParams("unexpected data after JSON value", string(p))
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, invalidParams("expected a JSON object", string(p))
	}
	return obj, nil
}

func (p StructuredValue) resolve() (map[string]any, error) {
	if p == nil {
		return map[string]any{}, nil
	}
	return p, nil
}

// IsEmpty reports whether p carries no parameters at all.
func IsEmpty(p UpdateParams) bool {
	switch v := p.(type) {
	case RawJSONText:
		return strings.TrimSpace(string(v)) == ""
	case StructuredValue:
		return len(v) == 0
	}
	return p == nil
}

// ChangeSet maps whitelisted field names to their new values.
type ChangeSet map[string]any

// NewChangeSet keeps the whitelisted, non-null entries of params.
func NewChangeSet(params map[string]any) ChangeSet {
	changes := ChangeSet{}
	for _, key := range FieldWhitelist {
		if v, ok := params[key]; ok && v != nil {
			changes[key] = v
		}
	}
	return changes
}

// BuildChangeSet resolves p and filters it to the whitelist.
func BuildChangeSet(p UpdateParams) (ChangeSet, error) {
	params, err := p.resolve()
	if err != nil {
		return nil, err
	}
	changes := NewChangeSet(params)
	if len(changes) == 0 {
		return nil, ErrNoChangesProvided
	}
	return changes, nil
}

func invalidParams(reason, received string) error {
	return ValidationError{
		Message: fmt.Sprintf("Invalid kwargs format: %s, received: %s", reason, received),
		Code:    "INVALID_PARAMETERS",
		Field:   "kwargs",
	}
}

func echo(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}
