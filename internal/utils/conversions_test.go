package utils_test

import (
	"encoding/json"
	"testing"

	"github.com/jrsteele09/go-session-guard/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "user-1", "user-1"},
		{"padded string", "  user-1  ", "user-1"},
		{"float from json", float64(42), "42"},
		{"large float", float64(1234567890123), "1234567890123"},
		{"fractional float", 4.5, "4.5"},
		{"int", 7, "7"},
		{"int64", int64(9000000000), "9000000000"},
		{"json number", json.Number("314"), "314"},
		{"bool falls through", true, "true"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, utils.NormalizeID(tc.in))
		})
	}
}

func TestNormalizeIDJSONRoundTrip(t *testing.T) {
	// A backend that serialises {"id": 42} and one that serialises
	// {"id": "42"} must normalize to the same value.
	var numeric, quoted map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"id": 42}`), &numeric))
	require.NoError(t, json.Unmarshal([]byte(`{"id": "42"}`), &quoted))
	require.Equal(t, utils.NormalizeID(numeric["id"]), utils.NormalizeID(quoted["id"]))
}
