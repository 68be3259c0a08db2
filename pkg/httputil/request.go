package httputil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
)

// DefaultMaxPayload bounds request bodies read by ReadPayload
const DefaultMaxPayload = 1 << 20

// ParsePathString extracts a string path parameter
func ParsePathString(r *http.Request, key string) (string, error) {
	str := mux.Vars(r)[key]
	if str == "" {
		return "", fmt.Errorf("missing path parameter: %s", key)
	}
	return str, nil
}

// ParsePathStringOrError extracts a string path parameter and writes
// invalid_input on failure
func ParsePathStringOrError(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	val, err := ParsePathString(r, key)
	if err != nil {
		WriteDetailedError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return "", false
	}
	return val, true
}

// ReadPayload returns the request body decoded as JSON. A body that is not
// JSON is returned as a string. An empty body yields the query parameters
// instead, flattened to their first value.
func ReadPayload(r *http.Request, limit int64) (interface{}, error) {
	if limit <= 0 {
		limit = DefaultMaxPayload
	}

	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(io.LimitReader(r.Body, limit))
		if err != nil {
			return nil, fmt.Errorf("reading body: %w", err)
		}
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		query := make(map[string]string, len(r.URL.Query()))
		for key, values := range r.URL.Query() {
			if len(values) > 0 {
				query[key] = values[0]
			}
		}
		return query, nil
	}

	var payload interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return string(body), nil
	}
	return payload, nil
}
