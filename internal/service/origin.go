package service

import (
	"strings"

	"github.com/passgate/passgate/pkg/config"
)

// ClientContext carries the request attributes used to decide which origin a
// ceremony response will be validated against.
type ClientContext struct {
	UserAgent string
}

// OriginResolver maps a client to the single expected origin for its
// ceremony. Native Android clients assert an apk-key-hash origin; everything
// else is held to the configured web origin. There is no permissive mode.
type OriginResolver struct {
	webOrigin       string
	androidOrigin   string
	androidUAMarker string
}

// NewOriginResolver creates a new OriginResolver
func NewOriginResolver(cfg *config.Config) *OriginResolver {
	r := &OriginResolver{
		webOrigin:       cfg.Server.RPOrigin,
		androidUAMarker: cfg.Server.AndroidUserAgent,
	}
	if cfg.Server.AndroidAPKKeyHash != "" {
		r.androidOrigin = "android:apk-key-hash:" + cfg.Server.AndroidAPKKeyHash
	}
	return r
}

// Resolve returns the one origin the client's ceremony response must carry.
func (r *OriginResolver) Resolve(client ClientContext) string {
	if r.androidOrigin != "" && r.androidUAMarker != "" &&
		strings.Contains(client.UserAgent, r.androidUAMarker) {
		return r.androidOrigin
	}
	return r.webOrigin
}
