package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata_Marshal(t *testing.T) {
	t.Run("Marshal empty metadata", func(t *testing.T) {
		m := Metadata{}

		bytes, err := m.Marshal()

		require.NoError(t, err)
		assert.Equal(t, []byte("{}"), bytes)
	})

	t.Run("Marshal metadata with simple values", func(t *testing.T) {
		m := Metadata{
			"source_resource": "res_session_1",
			"turn_index":      12,
			"curated":         true,
		}

		bytes, err := m.Marshal()

		require.NoError(t, err)

		var result map[string]interface{}
		err = json.Unmarshal(bytes, &result)
		require.NoError(t, err)
		assert.Equal(t, "res_session_1", result["source_resource"])
		assert.Equal(t, float64(12), result["turn_index"]) // JSON numbers become float64
		assert.Equal(t, true, result["curated"])
	})

	t.Run("Marshal metadata with nested objects", func(t *testing.T) {
		m := Metadata{
			"provenance": map[string]interface{}{
				"extracted_by": "default_pipeline",
			},
			"aliases": []string{"the Siren", "Aria", "Fenwick"},
		}

		bytes, err := m.Marshal()

		require.NoError(t, err)
		assert.Contains(t, string(bytes), "provenance")
		assert.Contains(t, string(bytes), "aliases")
	})

	t.Run("Marshal nil metadata", func(t *testing.T) {
		var m Metadata = nil

		bytes, err := m.Marshal()

		require.NoError(t, err)
		assert.Equal(t, []byte("null"), bytes)
	})
}

func TestMetadata_Unmarshal(t *testing.T) {
	t.Run("Unmarshal valid JSON bytes", func(t *testing.T) {
		jsonBytes := []byte(`{"source_resource":"res_session_1","turn_index":12,"curated":true}`)
		var m Metadata

		err := m.Unmarshal(jsonBytes)

		require.NoError(t, err)
		assert.Equal(t, "res_session_1", m["source_resource"])
		assert.Equal(t, float64(12), m["turn_index"])
		assert.Equal(t, true, m["curated"])
	})

	t.Run("Unmarshal empty JSON object", func(t *testing.T) {
		var m Metadata

		err := m.Unmarshal([]byte(`{}`))

		require.NoError(t, err)
		assert.NotNil(t, m)
		assert.Len(t, m, 0)
	})

	t.Run("Unmarshal nil value", func(t *testing.T) {
		var m Metadata

		err := m.Unmarshal(nil)

		require.NoError(t, err)
		assert.NotNil(t, m)
		assert.Len(t, m, 0)
	})

	t.Run("Unmarshal Metadata directly", func(t *testing.T) {
		source := Metadata{"faction": "sea_princes"}
		var m Metadata

		err := m.Unmarshal(source)

		require.NoError(t, err)
		assert.Equal(t, "sea_princes", m["faction"])
	})

	t.Run("Unmarshal invalid JSON", func(t *testing.T) {
		var m Metadata

		err := m.Unmarshal([]byte(`{not json}`))

		require.Error(t, err)
	})

	t.Run("Unmarshal invalid type", func(t *testing.T) {
		var m Metadata

		err := m.Unmarshal(12345)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "type assertion")
	})

	t.Run("Unmarshal nested structures", func(t *testing.T) {
		jsonBytes := []byte(`{
			"provenance": {
				"extracted_by": "default_pipeline"
			},
			"aliases": ["the Siren", "Aria"]
		}`)
		var m Metadata

		err := m.Unmarshal(jsonBytes)

		require.NoError(t, err)
		provenance, ok := m["provenance"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "default_pipeline", provenance["extracted_by"])
	})
}

func TestMetadata_Value(t *testing.T) {
	t.Run("Value returns marshaled JSON", func(t *testing.T) {
		m := Metadata{"faction": "sea_princes"}

		value, err := m.Value()

		require.NoError(t, err)
		bytes, ok := value.([]byte)
		require.True(t, ok)

		var result map[string]interface{}
		err = json.Unmarshal(bytes, &result)
		require.NoError(t, err)
		assert.Equal(t, "sea_princes", result["faction"])
	})

	t.Run("Value handles empty metadata", func(t *testing.T) {
		m := Metadata{}

		value, err := m.Value()

		require.NoError(t, err)
		assert.Equal(t, []byte("{}"), value)
	})
}

func TestMetadata_Scan(t *testing.T) {
	t.Run("Scan from JSON bytes", func(t *testing.T) {
		var m Metadata

		err := m.Scan([]byte(`{"faction":"sea_princes"}`))

		require.NoError(t, err)
		assert.Equal(t, "sea_princes", m["faction"])
	})

	t.Run("Scan from nil", func(t *testing.T) {
		var m Metadata

		err := m.Scan(nil)

		require.NoError(t, err)
		assert.NotNil(t, m)
		assert.Len(t, m, 0)
	})

	t.Run("Scan from Metadata", func(t *testing.T) {
		source := Metadata{"faction": "sea_princes"}
		var m Metadata

		err := m.Scan(source)

		require.NoError(t, err)
		assert.Equal(t, "sea_princes", m["faction"])
	})
}

func TestMetadata_RoundTrip(t *testing.T) {
	t.Run("Marshal then Unmarshal preserves data", func(t *testing.T) {
		original := Metadata{
			"source_resource": "res_session_1",
			"turn_index":      12,
			"curated":         true,
			"provenance": map[string]interface{}{
				"extracted_by": "default_pipeline",
			},
		}

		bytes, err := original.Marshal()
		require.NoError(t, err)

		var restored Metadata
		err = restored.Unmarshal(bytes)
		require.NoError(t, err)

		assert.Equal(t, "res_session_1", restored["source_resource"])
		assert.Equal(t, float64(12), restored["turn_index"])
		assert.Equal(t, true, restored["curated"])

		provenance, ok := restored["provenance"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "default_pipeline", provenance["extracted_by"])
	})

	t.Run("Value then Scan preserves data", func(t *testing.T) {
		original := Metadata{"faction": "sea_princes"}

		value, err := original.Value()
		require.NoError(t, err)

		var restored Metadata
		err = restored.Scan(value)
		require.NoError(t, err)

		assert.Equal(t, "sea_princes", restored["faction"])
	})
}
