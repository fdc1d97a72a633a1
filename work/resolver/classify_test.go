package resolver

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
		want string
	}{
		{"query string is stripped before extraction", "http://x/movie.MP4?token=a.b", "mp4"},
		{"manifest extension", "https://cdn/live/index.m3u8", "m3u8"},
		{"relative path", "/local/movie.webm", "webm"},
		{"malformed url falls back to naive splitting", "http://bad host/file.ts?x=1", "ts"},
		{"dotless path yields the path itself", "http://x/live/stream", "/live/stream"},
		{"uppercase extension is lowered", "http://x/SHOW.TS", "ts"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Extension(tt.url))
		})
	}
}

func TestClassify_MixedContent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		url        string
		pageSecure bool
		want       bool
	}{
		{"insecure stream on secure page", "http://x/a.mp4", true, true},
		{"insecure stream on insecure page", "http://x/a.mp4", false, false},
		{"secure stream on secure page", "https://x/a.mp4", true, false},
		{"relative url is never mixed content", "/local/a.mp4", true, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Classify(tt.url, tt.pageSecure).MixedContent)
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	query := url.Values{"url": {"http://q/a.mp4"}, "title": {"Query Title"}}

	tests := []struct {
		name  string
		ref   Reference
		query url.Values
		want  Reference
	}{
		{
			name:  "set reference passes through",
			ref:   Reference{URL: "http://x/a.mp4", Title: "T"},
			query: query,
			want:  Reference{URL: "http://x/a.mp4", Title: "T"},
		},
		{
			name:  "placeholder url falls back to query",
			ref:   Reference{URL: "${url}", Title: "T"},
			query: query,
			want:  Reference{URL: "http://q/a.mp4", Title: "T"},
		},
		{
			name:  "placeholder title falls back independently",
			ref:   Reference{URL: "http://x/a.mp4", Title: "${title}"},
			query: query,
			want:  Reference{URL: "http://x/a.mp4", Title: "Query Title"},
		},
		{
			name: "unset with no query params stays unset",
			ref:  Reference{URL: "", Title: "${title}"},
			want: Reference{},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Normalize(tt.ref, tt.query))
		})
	}
}

func TestDetectCapabilities_NativeHLS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ua   string
		want bool
	}{
		{"safari on mac", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15", true},
		{"iphone", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15", true},
		{"chrome carries a safari token but is not safari", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36", false},
		{"edge", "Mozilla/5.0 (Windows NT 10.0) AppleWebKit/537.36 Chrome/120.0 Safari/537.36 Edg/120.0", false},
		{"firefox", "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			caps := DetectCapabilities(tt.ua, true, true)
			assert.Equal(t, tt.want, caps.NativeHLS)
			assert.True(t, caps.PageSecure)
			assert.True(t, caps.EngineAvailable)
		})
	}
}
