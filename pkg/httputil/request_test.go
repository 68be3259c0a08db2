package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePathString(t *testing.T) {
	t.Run("present", func(t *testing.T) {
		r := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"period": "2024-05"})
		val, err := ParsePathString(r, "period")
		require.NoError(t, err)
		assert.Equal(t, "2024-05", val)
	})

	t.Run("missing writes invalid_input", func(t *testing.T) {
		w := httptest.NewRecorder()
		_, ok := ParsePathStringOrError(w, httptest.NewRequest(http.MethodGet, "/", nil), "period")
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "invalid_input")
	})
}

func TestReadPayload(t *testing.T) {
	tests := []struct {
		name   string
		target string
		body   string
		want   interface{}
	}{
		{
			name:   "json body",
			target: "/billing/webhook",
			body:   `{"type":"payment","data":{"id":"123"}}`,
			want:   map[string]interface{}{"type": "payment", "data": map[string]interface{}{"id": "123"}},
		},
		{
			name:   "empty body falls back to query",
			target: "/billing/webhook?topic=payment&id=123",
			body:   "  ",
			want:   map[string]string{"topic": "payment", "id": "123"},
		},
		{
			name:   "non json body kept as text",
			target: "/billing/webhook",
			body:   "id=123",
			want:   "id=123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, tt.target, strings.NewReader(tt.body))
			got, err := ReadPayload(r, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadPayload_Limit(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("abcdefgh"))
	got, err := ReadPayload(r, 4)
	require.NoError(t, err)
	assert.Equal(t, "abcd", got)
}
