package session

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/roach88/mapsync/internal/feature"
)

const mapIDPlaceholder = "[MAPID]"

var mapIDPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// apiPrefix returns the map-scoped path prefix for an API version.
func apiPrefix(version int) string {
	if version >= 1 {
		return fmt.Sprintf("/api/v%d/map/%s/", version, mapIDPlaceholder)
	}
	return "/rest/"
}

// normalizeEndpoint applies the per-version endpoint casing: v1 class
// endpoints are capitalized, older versions lowercase. "since" polls are
// always lowercase.
func normalizeEndpoint(endpoint string, version int) string {
	endpoint = strings.Trim(endpoint, "/")
	if strings.HasPrefix(strings.ToLower(endpoint), "since") {
		return "since" + endpoint[len("since"):]
	}
	r, n := utf8.DecodeRuneInString(endpoint)
	if r == utf8.RuneError {
		return endpoint
	}
	if version >= 1 {
		return string(unicode.ToUpper(r)) + endpoint[n:]
	}
	return string(unicode.ToLower(r)) + endpoint[n:]
}

// accountScoped reports whether an endpoint is an absolute api path rather
// than relative to the map.
func accountScoped(endpoint string) bool {
	return strings.HasPrefix(strings.Trim(endpoint, "/"), "api/")
}

// buildPath returns the canonical request path, which is also the signed
// path. An id, when given, becomes the last segment.
func (s *Session) buildPath(endpoint, id string) (string, error) {
	var path string
	if accountScoped(endpoint) {
		path = "/" + strings.Trim(endpoint, "/")
	} else {
		if s.cfg.MapID == "" {
			return "", newError(ErrCodeConfig, "map-scoped request without a map id", nil)
		}
		prefix := strings.Replace(apiPrefix(s.cfg.APIVersion), mapIDPlaceholder, s.cfg.MapID, 1)
		path = prefix + normalizeEndpoint(endpoint, s.cfg.APIVersion)
	}
	if id != "" {
		path += "/" + id
	}
	return path, nil
}

// endpointClass returns the feature class named by a plain class endpoint
// such as "marker" or "Shape", or "" for anything else.
func endpointClass(endpoint string) feature.Class {
	endpoint = strings.Trim(endpoint, "/")
	if endpoint == "" || strings.Contains(endpoint, "/") || accountScoped(endpoint) {
		return ""
	}
	if strings.EqualFold(endpoint, "since") {
		return ""
	}
	return feature.Class(normalizeEndpoint(endpoint, 1))
}
