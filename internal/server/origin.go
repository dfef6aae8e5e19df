package server

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/Tyrowin/gochat-rooms/internal/logger"
)

// Reasons a WebSocket handshake is refused by the origin policy.
var (
	errOriginMissing    = errors.New("missing Origin header")
	errOriginMalformed  = errors.New("malformed Origin header")
	errOriginNotAllowed = errors.New("origin not allowed")
)

// originPolicy is the compiled form of Config.AllowedOrigins. Entries are
// lower-cased scheme://host pairs; "*" admits any well-formed origin.
type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
}

// newOriginPolicy compiles origins and returns the normalized entries kept in
// the active config. Entries that are not http(s) URLs are dropped.
func newOriginPolicy(origins []string) (originPolicy, []string) {
	policy := originPolicy{allowed: make(map[string]struct{}, len(origins))}
	var normalized []string

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		switch {
		case trimmed == "":
			continue
		case trimmed == "*":
			policy.allowAll = true
			continue
		}

		entry, ok := normalizeOrigin(trimmed)
		if !ok {
			logger.Warn("Ignoring invalid origin in configuration", "origin", origin)
			continue
		}
		if _, dup := policy.allowed[entry]; dup {
			continue
		}
		policy.allowed[entry] = struct{}{}
		normalized = append(normalized, entry)
	}

	return policy, normalized
}

// verify returns nil when origin may open a WebSocket session, or the reason
// it may not.
func (p originPolicy) verify(origin string) error {
	if origin == "" {
		return errOriginMissing
	}
	entry, ok := normalizeOrigin(origin)
	if !ok {
		return errOriginMalformed
	}
	if p.allowAll {
		return nil
	}
	if _, ok := p.allowed[entry]; !ok {
		return errOriginNotAllowed
	}
	return nil
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	scheme := strings.ToLower(parsed.Scheme)
	if (scheme != "http" && scheme != "https") || parsed.Host == "" {
		return "", false
	}

	return scheme + "://" + strings.ToLower(parsed.Host), true
}

// verifyOrigin checks r against the active origin policy and logs refusals
// with enough context to tell a misconfigured client from a hostile page.
func verifyOrigin(r *http.Request) error {
	configMu.RLock()
	policy := activeOrigins
	configMu.RUnlock()

	origin := r.Header.Get("Origin")
	if err := policy.verify(origin); err != nil {
		logger.Warn("Blocked WebSocket handshake",
			"origin", origin, "reason", err, "remote", r.RemoteAddr, "userAgent", r.UserAgent())
		return err
	}
	return nil
}

// checkOrigin adapts verifyOrigin to websocket.Upgrader.CheckOrigin.
func checkOrigin(r *http.Request) bool {
	return verifyOrigin(r) == nil
}
