package filter

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Decode builds a definition from a loosely typed map, as produced by YAML
// or JSON documents and by tool arguments. The "type" key selects the kind.
// Scalars are coerced ("15" becomes 15.0) and unknown keys are rejected.
// The result is validated.
func Decode(raw map[string]any) (Definition, error) {
	fields := maps.Clone(raw)
	kind, _ := fields["type"].(string)
	delete(fields, "type")

	var (
		def Definition
		err error
	)
	switch Kind(kind) {
	case KindRange:
		def, err = decodeMap[RangeFilter](fields)
	case KindTerms:
		def, err = decodeMap[TermsFilter](fields)
	case KindScript:
		def, err = decodeMap[ScriptFilter](fields)
	case KindTopological:
		def, err = decodeMap[TopologicalFilter](fields)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s filter: %v", ErrInvalidFilter, kind, err)
	}
	if err := Validate(def); err != nil {
		return nil, err
	}
	return def, nil
}

func decodeMap[F Definition](fields map[string]any) (F, error) {
	var out F
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &out,
	})
	if err != nil {
		return out, err
	}
	err = decoder.Decode(fields)
	return out, err
}

// DecodeList decodes a list of filter maps.
func DecodeList(items []any) ([]Definition, error) {
	if len(items) == 0 {
		return nil, nil
	}
	out := make([]Definition, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("filter %d: %w: expected a mapping, got %T", i, ErrInvalidFilter, item)
		}
		def, err := Decode(m)
		if err != nil {
			return nil, fmt.Errorf("filter %d: %w", i, err)
		}
		out = append(out, def)
	}
	return out, nil
}

// DecodeStack accepts either a plain list, which becomes the active chain,
// or a mapping with "past" and "future" lists.
func DecodeStack(doc any) (Stack, error) {
	switch v := doc.(type) {
	case nil:
		return Stack{}, nil
	case []any:
		past, err := DecodeList(v)
		if err != nil {
			return Stack{}, err
		}
		return Stack{Past: past}, nil
	case map[string]any:
		past, _ := v["past"].([]any)
		future, _ := v["future"].([]any)
		p, err := DecodeList(past)
		if err != nil {
			return Stack{}, fmt.Errorf("past: %w", err)
		}
		f, err := DecodeList(future)
		if err != nil {
			return Stack{}, fmt.Errorf("future: %w", err)
		}
		return Stack{Past: p, Future: f}, nil
	default:
		return Stack{}, fmt.Errorf("%w: unexpected document %T", ErrInvalidFilter, doc)
	}
}

// LoadFile reads a filter stack from a YAML or JSON file. The format is
// chosen by extension; anything but .json is read as YAML.
func LoadFile(path string) (Stack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Stack{}, fmt.Errorf("failed to read filters: %w", err)
	}

	var doc any
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &doc); err != nil {
			return Stack{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Stack{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	stack, err := DecodeStack(doc)
	if err != nil {
		return Stack{}, fmt.Errorf("%s: %w", path, err)
	}
	return stack, nil
}
