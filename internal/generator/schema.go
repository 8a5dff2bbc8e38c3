package generator

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/joluben/sigsim/internal/model"
	"github.com/joluben/sigsim/internal/simerrors"
)

const randomStringAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Schema is a Generator backed by an ordered list of field specs, the Go
// equivalent of the original's visual JSON builder.
type Schema struct {
	fields []model.FieldSpec
}

// NewSchema validates every field spec against its declared type before
// returning a usable Generator.
func NewSchema(fields []model.FieldSpec) (*Schema, error) {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return nil, simerrors.New(simerrors.ConfigInvalid, "schema field missing a name")
		}
		if seen[f.Name] {
			return nil, simerrors.New(simerrors.ConfigInvalid, fmt.Sprintf("schema field %q declared twice", f.Name))
		}
		seen[f.Name] = true
		if err := validateGenerator(f); err != nil {
			return nil, err
		}
	}
	return &Schema{fields: fields}, nil
}

// validateGenerator only rejects a field whose declared type itself is
// unknown. An unknown or omitted generator variant for a known type is
// not a construction error: json_builder.py falls back to a
// type-appropriate default at generation time (generator_config.get
// ("type", "fixed"), else branches returning "default"/0/True), and
// spec.md §4.3 requires the same — generateString/Number/Boolean below
// implement the fallback.
func validateGenerator(f model.FieldSpec) error {
	switch f.Type {
	case model.FieldTypeString, model.FieldTypeNumber, model.FieldTypeBoolean, model.FieldTypeUUID, model.FieldTypeTimestamp:
		return nil
	default:
		return simerrors.New(simerrors.ConfigInvalid, fmt.Sprintf("field %q: unknown type %q", f.Name, f.Type))
	}
}

// Generate walks the fields in declaration order, then applies
// deviceMetadata over the result, mirroring json_builder.py's
// result.update(device_metadata).
func (s *Schema) Generate(deviceMetadata model.Payload) (model.Payload, error) {
	result := make(model.Payload, len(s.fields)+len(deviceMetadata))
	for _, f := range s.fields {
		v, err := generateField(f)
		if err != nil {
			return nil, err
		}
		result[f.Name] = v
	}
	for k, v := range deviceMetadata {
		result[k] = v
	}
	return result, nil
}

func generateField(f model.FieldSpec) (any, error) {
	switch f.Type {
	case model.FieldTypeUUID:
		return uuid.NewString(), nil
	case model.FieldTypeTimestamp:
		return time.Now().UTC().Format(time.RFC3339Nano), nil
	case model.FieldTypeString:
		return generateString(f)
	case model.FieldTypeNumber:
		return generateNumber(f)
	case model.FieldTypeBoolean:
		return generateBoolean(f)
	default:
		return nil, simerrors.New(simerrors.PayloadGenerationFail, fmt.Sprintf("field %q: unreachable type %q", f.Name, f.Type))
	}
}

func generateString(f model.FieldSpec) (any, error) {
	g := f.Generator
	switch g.Variant {
	case model.GeneratorFixed:
		if g.Value == nil {
			return "default", nil
		}
		return fmt.Sprintf("%v", g.Value), nil
	case model.GeneratorRandomChoice:
		if len(g.Choices) == 0 {
			return nil, simerrors.New(simerrors.PayloadGenerationFail, fmt.Sprintf("field %q: random_choice with no choices configured", f.Name))
		}
		return g.Choices[rand.Intn(len(g.Choices))], nil
	case model.GeneratorRandomString:
		length := g.Length
		if length <= 0 {
			length = 10
		}
		b := make([]byte, length)
		for i := range b {
			b[i] = randomStringAlphabet[rand.Intn(len(randomStringAlphabet))]
		}
		return string(b), nil
	default:
		return "default", nil
	}
}

func generateNumber(f model.FieldSpec) (any, error) {
	g := f.Generator
	switch g.Variant {
	case model.GeneratorFixed:
		if g.Value == nil {
			return 0, nil
		}
		return g.Value, nil
	case model.GeneratorRandomInt:
		min, max := int(g.Min), int(g.Max)
		if max < min {
			return nil, simerrors.New(simerrors.PayloadGenerationFail, fmt.Sprintf("field %q: random_int max below min", f.Name))
		}
		return min + rand.Intn(max-min+1), nil
	case model.GeneratorRandomFloat:
		if g.Max < g.Min {
			return nil, simerrors.New(simerrors.PayloadGenerationFail, fmt.Sprintf("field %q: random_float max below min", f.Name))
		}
		v := g.Min + rand.Float64()*(g.Max-g.Min)
		scale := math.Pow(10, float64(g.Decimals))
		return math.Round(v*scale) / scale, nil
	default:
		return 0, nil
	}
}

func generateBoolean(f model.FieldSpec) (any, error) {
	g := f.Generator
	switch g.Variant {
	case model.GeneratorFixed:
		if b, ok := g.Value.(bool); ok {
			return b, nil
		}
		return true, nil
	case model.GeneratorRandomBool:
		return rand.Intn(2) == 1, nil
	default:
		return true, nil
	}
}
