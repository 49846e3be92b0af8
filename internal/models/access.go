package models

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// OriginKind tells apart the two browser clients the API serves.
type OriginKind string

const (
	// OriginDashboard is a web page: https, or http on a loopback host.
	OriginDashboard OriginKind = "dashboard"
	// OriginExtension is the browser extension's background page.
	OriginExtension OriginKind = "extension"
)

// AllowedOrigin is one origin permitted to call the API from a browser.
type AllowedOrigin struct {
	Origin    string     `json:"origin"`
	Kind      OriginKind `json:"kind"`
	CreatedAt time.Time  `json:"created_at"`
}

var (
	chromeExtensionID  = regexp.MustCompile(`^[a-p]{32}$`)
	firefoxExtensionID = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

// ParseOrigin normalizes raw to scheme://host[:port] and classifies it.
// Chrome extension ids are 32 letters a-p and Firefox ids are UUIDs.
func ParseOrigin(raw string) (AllowedOrigin, error) {
	s := strings.TrimSuffix(strings.TrimSpace(raw), "/")
	u, err := url.Parse(s)
	if err != nil || u.Host == "" || u.Path != "" || u.RawQuery != "" || u.Fragment != "" || u.User != nil {
		return AllowedOrigin{}, fmt.Errorf("invalid origin %q: want scheme://host[:port]", raw)
	}
	host := strings.ToLower(u.Host)
	origin := u.Scheme + "://" + host

	switch u.Scheme {
	case "chrome-extension":
		if !chromeExtensionID.MatchString(host) {
			return AllowedOrigin{}, fmt.Errorf("invalid origin %q: chrome extension ids are 32 letters a-p", raw)
		}
		return AllowedOrigin{Origin: origin, Kind: OriginExtension}, nil
	case "moz-extension":
		if !firefoxExtensionID.MatchString(host) {
			return AllowedOrigin{}, fmt.Errorf("invalid origin %q: firefox extension ids are UUIDs", raw)
		}
		return AllowedOrigin{Origin: origin, Kind: OriginExtension}, nil
	case "https":
		return AllowedOrigin{Origin: origin, Kind: OriginDashboard}, nil
	case "http":
		if !isLoopback(u.Hostname()) {
			return AllowedOrigin{}, fmt.Errorf("invalid origin %q: plain http is only allowed for localhost", raw)
		}
		return AllowedOrigin{Origin: origin, Kind: OriginDashboard}, nil
	default:
		return AllowedOrigin{}, fmt.Errorf("invalid origin %q: unsupported scheme %q", raw, u.Scheme)
	}
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// RateLimitScope names a group of routes sharing one request budget per client.
type RateLimitScope string

const (
	// ScopeAPI covers the reflection, stats and settings routes.
	ScopeAPI RateLimitScope = "api"
	// ScopeAI covers the /ai routes, each of which costs a model call.
	ScopeAI RateLimitScope = "ai"
)

// RateLimitScopes lists every scope in display order.
var RateLimitScopes = []RateLimitScope{ScopeAPI, ScopeAI}

// ParseRateLimitScope accepts a scope name in any case.
func ParseRateLimitScope(s string) (RateLimitScope, error) {
	scope := RateLimitScope(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range RateLimitScopes {
		if scope == known {
			return scope, nil
		}
	}
	return "", fmt.Errorf("unknown rate limit scope %q (want api or ai)", s)
}

// DefaultRate is the budget used until one is stored, as "<limit>-<period>".
// A companion challenge makes one embed and one rag call.
func (s RateLimitScope) DefaultRate() string {
	if s == ScopeAI {
		return "30-M"
	}
	return "10-S"
}

// RateLimit is the stored request budget for one scope.
type RateLimit struct {
	Scope     RateLimitScope `json:"scope"`
	Rate      string         `json:"rate"`
	UpdatedAt time.Time      `json:"updated_at"`
}
