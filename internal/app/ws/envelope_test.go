package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeCredentialDecoding(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		id   string
	}{
		{"string id", `{"name":"x","id":"abc","token":"t"}`, "abc"},
		{"number sentinel", `{"name":"x","id":-1,"token":-1}`, "-1"},
		{"string sentinel", `{"name":"x","id":"-1","token":"-1"}`, "-1"},
		{"null id", `{"name":"x","id":null}`, ""},
		{"missing id", `{"name":"x"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var env Envelope
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &env))
			assert.Equal(t, tt.id, string(env.ID))
		})
	}
}

func TestEnvelopeKeepsMessageRaw(t *testing.T) {
	var env Envelope
	raw := `{"name":"receiveMarkers","handle":"h7","id":"-1","token":"-1","message":{"longitude":-97.7,"latitude":30.2}}`
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	assert.Equal(t, "receiveMarkers", env.Name)
	assert.Equal(t, "h7", env.Handle)

	var pos struct {
		Longitude float64 `json:"longitude"`
		Latitude  float64 `json:"latitude"`
	}
	require.NoError(t, json.Unmarshal(env.Message, &pos))
	assert.Equal(t, -97.7, pos.Longitude)
}
