package filter

import (
	"encoding/json"
	"errors"
	"fmt"
)

var errNativePredicate = errors.New("native predicate has no encoding")

// Marshal encodes a definition as a JSON object tagged with its "type".
func Marshal(def Definition) ([]byte, error) {
	switch d := def.(type) {
	case RangeFilter:
		return encode(KindRange, struct {
			Type Kind `json:"type"`
			RangeFilter
		}{KindRange, d})
	case TermsFilter:
		return encode(KindTerms, struct {
			Type Kind `json:"type"`
			TermsFilter
		}{KindTerms, d})
	case ScriptFilter:
		if d.Predicate != nil {
			return nil, &SerializationError{Kind: KindScript, Err: errNativePredicate}
		}
		return encode(KindScript, struct {
			Type Kind `json:"type"`
			ScriptFilter
		}{KindScript, d})
	case TopologicalFilter:
		return encode(KindTopological, struct {
			Type Kind `json:"type"`
			TopologicalFilter
		}{KindTopological, d})
	default:
		return nil, fmt.Errorf("marshal %T: %w", def, ErrUnknownKind)
	}
}

func encode(kind Kind, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &SerializationError{Kind: kind, Err: err}
	}
	return data, nil
}

// Unmarshal decodes a definition written by Marshal.
func Unmarshal(data []byte) (Definition, error) {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode filter: %w", err)
	}

	switch head.Type {
	case KindRange:
		var f RangeFilter
		return decodeInto(data, &f)
	case KindTerms:
		var f TermsFilter
		return decodeInto(data, &f)
	case KindScript:
		var f ScriptFilter
		return decodeInto(data, &f)
	case KindTopological:
		var f TopologicalFilter
		return decodeInto(data, &f)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, head.Type)
	}
}

func decodeInto[F Definition](data []byte, f *F) (Definition, error) {
	if err := json.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("decode %s filter: %w", (*f).Kind(), err)
	}
	return *f, nil
}

type stackJSON struct {
	Past   []json.RawMessage `json:"past"`
	Future []json.RawMessage `json:"future"`
}

// MarshalJSON encodes the stack as {"past": [...], "future": [...]}.
func (s Stack) MarshalJSON() ([]byte, error) {
	past, err := marshalAll(s.Past)
	if err != nil {
		return nil, err
	}
	future, err := marshalAll(s.Future)
	if err != nil {
		return nil, err
	}
	return json.Marshal(stackJSON{Past: past, Future: future})
}

// UnmarshalJSON decodes a stack written by MarshalJSON.
func (s *Stack) UnmarshalJSON(data []byte) error {
	var raw stackJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode filter stack: %w", err)
	}
	past, err := unmarshalAll(raw.Past)
	if err != nil {
		return fmt.Errorf("past: %w", err)
	}
	future, err := unmarshalAll(raw.Future)
	if err != nil {
		return fmt.Errorf("future: %w", err)
	}
	*s = Stack{Past: past, Future: future}
	return nil
}

func marshalAll(defs []Definition) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(defs))
	for i, def := range defs {
		data, err := Marshal(def)
		if err != nil {
			return nil, fmt.Errorf("filter %d: %w", i, err)
		}
		out = append(out, data)
	}
	return out, nil
}

func unmarshalAll(raw []json.RawMessage) ([]Definition, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]Definition, 0, len(raw))
	for i, data := range raw {
		def, err := Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("filter %d: %w", i, err)
		}
		out = append(out, def)
	}
	return out, nil
}
