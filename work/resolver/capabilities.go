package resolver

import (
	"github.com/grafana/regexp"
)

// Runtime detection regexes, precompiled once. Apple runtimes play HLS
// manifests natively; Chromium-family browsers ship a Safari token in their
// User-Agent and have to be excluded explicitly.
var (
	appleMobileRe = regexp.MustCompile(`(?i)iphone|ipad|ipod`)
	safariRe      = regexp.MustCompile(`(?i)safari`)
	chromiumRe    = regexp.MustCompile(`(?i)chrome|chromium|crios|edg`)
)

// Capabilities describes what the requesting runtime can do. It is computed
// once per page view and handed to the resolver unchanged.
type Capabilities struct {
	PageSecure      bool // the page reached the client over a secure transport
	NativeHLS       bool // the runtime plays HLS manifests without an engine
	EngineAvailable bool // a client-side adaptive engine is shipped with the page
}

// DetectCapabilities derives runtime capabilities from a User-Agent string and
// the deployment facts (secure pages, engine shipped or not).
func DetectCapabilities(userAgent string, pageSecure, engineAvailable bool) Capabilities {
	return Capabilities{
		PageSecure:      pageSecure,
		NativeHLS:       nativeHLS(userAgent),
		EngineAvailable: engineAvailable,
	}
}

// nativeHLS reports whether the runtime behind the User-Agent supports HLS
// playback natively.
func nativeHLS(userAgent string) bool {
	if userAgent == "" {
		return false
	}
	if appleMobileRe.MatchString(userAgent) {
		return true
	}
	return safariRe.MatchString(userAgent) && !chromiumRe.MatchString(userAgent)
}
