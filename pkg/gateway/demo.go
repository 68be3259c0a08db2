package gateway

import (
	"context"
	"net/url"
	"strings"
)

// Demo is used when no gateway credentials are configured. It always succeeds
// and returns a deterministic, non-functional link.
type Demo struct {
	backURLBase string
}

// NewDemo creates a demo adapter
func NewDemo(backURLBase string) *Demo {
	return &Demo{backURLBase: strings.TrimRight(backURLBase, "/")}
}

// Name implements Gateway
func (d *Demo) Name() string {
	return "demo"
}

// CreatePreference implements Gateway
func (d *Demo) CreatePreference(_ context.Context, req *PreferenceRequest) (*Preference, error) {
	id := "demo-" + req.ExternalReference
	link := d.backURLBase + "/billing/demo-checkout?preference_id=" + url.QueryEscape(id)
	return &Preference{
		ID:               id,
		InitPoint:        link,
		SandboxInitPoint: link,
	}, nil
}
