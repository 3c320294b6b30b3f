package privacy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapping_JSONKeepsOrder(t *testing.T) {
	m := NewMapping(
		Entry{Placeholder: "<<SSN_1>>", Original: "123-45-6789"},
		Entry{Placeholder: "<<EMAIL_1>>", Original: "a@x.com"},
		Entry{Placeholder: "<<EMAIL_2>>", Original: "b@y.com"},
	)

	data, err := m.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"<<SSN_1>>":"123-45-6789","<<EMAIL_1>>":"a@x.com","<<EMAIL_2>>":"b@y.com"}`, string(data))

	var decoded Mapping
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, m.Entries(), decoded.Entries())

	// encoding/json escapes angle brackets when the mapping is nested; order survives
	nested, err := json.Marshal(struct {
		Mapping Mapping `json:"mapping"`
	}{m})
	require.NoError(t, err)
	var back struct {
		Mapping Mapping `json:"mapping"`
	}
	require.NoError(t, json.Unmarshal(nested, &back))
	assert.Equal(t, m.Placeholders(), back.Mapping.Placeholders())
}

func TestMapping_UnmarshalJSON(t *testing.T) {
	t.Run("null is empty", func(t *testing.T) {
		var m Mapping
		require.NoError(t, json.Unmarshal([]byte(`null`), &m))
		assert.Equal(t, 0, m.Len())
	})

	t.Run("not an object", func(t *testing.T) {
		var m Mapping
		assert.Error(t, json.Unmarshal([]byte(`["<<EMAIL_1>>"]`), &m))
	})

	t.Run("non-string value", func(t *testing.T) {
		var m Mapping
		assert.Error(t, json.Unmarshal([]byte(`{"<<EMAIL_1>>": 4}`), &m))
	})

	t.Run("null value", func(t *testing.T) {
		var m Mapping
		err := json.Unmarshal([]byte(`{"<<EMAIL_1>>": null}`), &m)
		assert.ErrorContains(t, err, "got null")
	})

	t.Run("empty string value is kept", func(t *testing.T) {
		var m Mapping
		require.NoError(t, json.Unmarshal([]byte(`{"<<EMAIL_1>>": ""}`), &m))
		v, ok := m.Get("<<EMAIL_1>>")
		assert.True(t, ok)
		assert.Equal(t, "", v)
	})

	t.Run("embedded in a request", func(t *testing.T) {
		var req struct {
			Text    string  `json:"text"`
			Mapping Mapping `json:"mapping"`
		}
		body := `{"text":"hi <<NAME_1>>","mapping":{"<<NAME_1>>":"Jane Doe"}}`
		require.NoError(t, json.Unmarshal([]byte(body), &req))

		original, ok := req.Mapping.Get("<<NAME_1>>")
		require.True(t, ok)
		assert.Equal(t, "Jane Doe", original)
		assert.Equal(t, "hi Jane Doe", Restore(req.Text, req.Mapping))
	})
}

func TestMapping_Set(t *testing.T) {
	var m Mapping
	m.Set("<<A_1>>", "one")
	m.Set("<<B_1>>", "two")
	m.Set("<<A_1>>", "uno")

	assert.Equal(t, []string{"<<A_1>>", "<<B_1>>"}, m.Placeholders())
	assert.Equal(t, map[string]string{"<<A_1>>": "uno", "<<B_1>>": "two"}, m.ToMap())

	entries := m.Entries()
	entries[0].Original = "changed"
	v, _ := m.Get("<<A_1>>")
	assert.Equal(t, "uno", v)
}

func TestProcessResult_DoesNotSerializeMapping(t *testing.T) {
	r := newDefaultRedactor(t)
	result := r.Process("reach me at a@x.com")

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "a@x.com")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "reach me at <<EMAIL_1>>", decoded["sanitised_text"])
	assert.NotContains(t, decoded, "mapping")
}
