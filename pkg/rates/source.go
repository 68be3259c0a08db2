package rates

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultPrimaryURL is the CriptoYa dollar quotes endpoint
	DefaultPrimaryURL = "https://criptoya.com/api/dolar"
	// DefaultSecondaryURL is the DolarAPI crypto dollar endpoint
	DefaultSecondaryURL = "https://dolarapi.com/v1/dolares/cripto"
	// DefaultTimeout bounds a single source lookup
	DefaultTimeout = 5 * time.Second

	maxBodyBytes = 1 << 20
)

var (
	// ErrNoRate is returned by a source whose document holds no valid rate
	ErrNoRate = errors.New("no valid rate in response")
	// ErrBadResponse is returned for non-2xx or non-JSON responses
	ErrBadResponse = errors.New("bad rate source response")
)

// Source is a single FX rate provider
type Source interface {
	Name() string
	Fetch(ctx context.Context) (float64, error)
}

// HTTPSource fetches a JSON document over HTTP and extracts a rate from it
type HTTPSource struct {
	name       string
	url        string
	timeout    time.Duration
	client     *http.Client
	extractors []Extractor
}

// NewHTTPSource creates a source. A nil client uses http.DefaultClient and a
// zero timeout uses DefaultTimeout.
func NewHTTPSource(name, url string, client *http.Client, timeout time.Duration, extractors ...Extractor) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPSource{
		name:       name,
		url:        url,
		timeout:    timeout,
		client:     client,
		extractors: extractors,
	}
}

// Name returns the source name recorded on quotes
func (s *HTTPSource) Name() string {
	return s.name
}

// Fetch performs one bounded GET and runs the extractors in order
func (s *HTTPSource) Fetch(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch rate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("%w: status %d", ErrBadResponse, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}

	doc, err := decode(body)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	for _, extract := range s.extractors {
		if rate, ok := extract(doc); ok {
			return rate, nil
		}
	}
	return 0, ErrNoRate
}

func decode(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON document")
	}
	return doc, nil
}
