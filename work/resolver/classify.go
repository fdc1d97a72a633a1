package resolver

import (
	"net/url"
	"strings"

	"github.com/grafana/regexp"
)

// placeholderRe matches a literal ${...} marker left over when server-side
// templating failed to substitute a value into the page.
var placeholderRe = regexp.MustCompile(`\$\{[^}]*\}`)

// Classification is derived from a reference URL, never stored.
type Classification struct {
	Ext          string // lower-cased file extension from the URL path, query stripped
	MixedContent bool   // secure page loading a plain-http stream
}

// Normalize resolves an injected reference against the page's query
// parameters. A url or title that is empty or still carries an unresolved
// template placeholder counts as unset and falls back, per field, to the
// "url"/"title" query parameters.
func Normalize(ref Reference, query url.Values) Reference {
	if isUnset(ref.URL) {
		ref.URL = ""
		if query != nil {
			ref.URL = query.Get("url")
		}
	}
	if isUnset(ref.Title) {
		ref.Title = ""
		if query != nil {
			ref.Title = query.Get("title")
		}
	}
	return ref
}

// isUnset reports whether an injected value is missing or was never
// substituted by the server-side template.
func isUnset(v string) bool {
	return v == "" || placeholderRe.MatchString(v)
}

// Classify computes the stream classification for a URL. The extension comes
// from the path component only; when the value is not a well-formed URI the
// split falls back to naive suffix handling on "?" then ".".
func Classify(rawURL string, pageSecure bool) Classification {
	return Classification{
		Ext:          Extension(rawURL),
		MixedContent: pageSecure && strings.HasPrefix(rawURL, "http://"),
	}
}

// Extension extracts the lower-cased extension from the URL path with the
// query string stripped. A path without a dot yields the whole path segment,
// which simply lands in the default delivery branch downstream.
func Extension(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		return lastDotPart(u.Path)
	}
	return lastDotPart(strings.SplitN(rawURL, "?", 2)[0])
}

func lastDotPart(path string) string {
	parts := strings.Split(path, ".")
	return strings.ToLower(parts[len(parts)-1])
}
