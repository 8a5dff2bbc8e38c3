package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joluben/sigsim/internal/model"
	"github.com/joluben/sigsim/internal/simerrors"
)

func exampleSchema() []model.FieldSpec {
	return []model.FieldSpec{
		{Name: "device_id", Type: model.FieldTypeString, Generator: model.GeneratorSpec{Variant: model.GeneratorFixed, Value: "device-001"}},
		{Name: "temperature", Type: model.FieldTypeNumber, Generator: model.GeneratorSpec{Variant: model.GeneratorRandomFloat, Min: 18.0, Max: 25.0, Decimals: 1}},
		{Name: "humidity", Type: model.FieldTypeNumber, Generator: model.GeneratorSpec{Variant: model.GeneratorRandomInt, Min: 30, Max: 80}},
		{Name: "status", Type: model.FieldTypeString, Generator: model.GeneratorSpec{Variant: model.GeneratorRandomChoice, Choices: []string{"online", "offline", "maintenance"}}},
		{Name: "session_id", Type: model.FieldTypeUUID},
		{Name: "recorded_at", Type: model.FieldTypeTimestamp},
		{Name: "active", Type: model.FieldTypeBoolean, Generator: model.GeneratorSpec{Variant: model.GeneratorRandomBool}},
	}
}

func TestSchema_GenerateProducesAllDeclaredFields(t *testing.T) {
	s, err := NewSchema(exampleSchema())
	require.NoError(t, err)

	payload, err := s.Generate(nil)
	require.NoError(t, err)

	assert.Equal(t, "device-001", payload["device_id"])
	assert.Contains(t, []string{"online", "offline", "maintenance"}, payload["status"])
	assert.IsType(t, "", payload["session_id"])
	assert.IsType(t, "", payload["recorded_at"])

	temp, ok := payload["temperature"].(float64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, temp, 18.0)
	assert.LessOrEqual(t, temp, 25.0)

	humidity, ok := payload["humidity"].(int)
	require.True(t, ok)
	assert.GreaterOrEqual(t, humidity, 30)
	assert.LessOrEqual(t, humidity, 80)
}

func TestSchema_DeviceMetadataWinsOnCollision(t *testing.T) {
	fields := []model.FieldSpec{
		{Name: "location", Type: model.FieldTypeString, Generator: model.GeneratorSpec{Variant: model.GeneratorFixed, Value: "schema-default"}},
	}
	s, err := NewSchema(fields)
	require.NoError(t, err)

	payload, err := s.Generate(model.Payload{"location": "warehouse-12"})
	require.NoError(t, err)
	assert.Equal(t, "warehouse-12", payload["location"])
}

func TestSchema_RejectsDuplicateFieldNames(t *testing.T) {
	fields := []model.FieldSpec{
		{Name: "x", Type: model.FieldTypeNumber, Generator: model.GeneratorSpec{Variant: model.GeneratorFixed, Value: 1}},
		{Name: "x", Type: model.FieldTypeNumber, Generator: model.GeneratorSpec{Variant: model.GeneratorFixed, Value: 2}},
	}
	_, err := NewSchema(fields)
	require.Error(t, err)
	kind, ok := simerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, simerrors.ConfigInvalid, kind)
}

func TestSchema_UnknownGeneratorVariantFallsBackToTypeDefault(t *testing.T) {
	fields := []model.FieldSpec{
		{Name: "flag", Type: model.FieldTypeBoolean, Generator: model.GeneratorSpec{Variant: model.GeneratorRandomChoice, Choices: []string{"a"}}},
		{Name: "count", Type: model.FieldTypeNumber},
		{Name: "label", Type: model.FieldTypeString},
	}
	s, err := NewSchema(fields)
	require.NoError(t, err)

	payload, err := s.Generate(nil)
	require.NoError(t, err)
	assert.Equal(t, true, payload["flag"])
	assert.Equal(t, 0, payload["count"])
	assert.Equal(t, "default", payload["label"])
}

func TestSchema_RejectsUnknownFieldType(t *testing.T) {
	fields := []model.FieldSpec{
		{Name: "x", Type: model.FieldType("bogus")},
	}
	_, err := NewSchema(fields)
	require.Error(t, err)
	kind, ok := simerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, simerrors.ConfigInvalid, kind)
}

func TestSchema_RandomChoiceWithNoChoicesFailsAtGenerate(t *testing.T) {
	fields := []model.FieldSpec{
		{Name: "status", Type: model.FieldTypeString, Generator: model.GeneratorSpec{Variant: model.GeneratorRandomChoice}},
	}
	s, err := NewSchema(fields)
	require.NoError(t, err)

	_, err = s.Generate(nil)
	require.Error(t, err)
	kind, _ := simerrors.KindOf(err)
	assert.Equal(t, simerrors.PayloadGenerationFail, kind)
}

func TestSchema_RandomStringDefaultsToLengthTen(t *testing.T) {
	fields := []model.FieldSpec{
		{Name: "token", Type: model.FieldTypeString, Generator: model.GeneratorSpec{Variant: model.GeneratorRandomString}},
	}
	s, err := NewSchema(fields)
	require.NoError(t, err)

	payload, err := s.Generate(nil)
	require.NoError(t, err)
	assert.Len(t, payload["token"].(string), 10)
}
