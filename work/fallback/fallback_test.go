package fallback

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClipboard struct {
	texts []string
	err   error
}

func (c *fakeClipboard) WriteText(text string) error {
	if c.err != nil {
		return c.err
	}
	c.texts = append(c.texts, text)
	return nil
}

func TestPresent_ReplacesPriorContents(t *testing.T) {
	t.Parallel()

	p := New(&fakeClipboard{}, time.Minute)

	p.Present("http://example.com/a.mkv")
	assert.Equal(t, "http://example.com/a.mkv", p.URL())
	assert.Equal(t, []byte("#EXTM3U\nhttp://example.com/a.mkv\n"), p.Playlist())

	p.Present("http://example.com/b.mkv")
	assert.Equal(t, "http://example.com/b.mkv", p.URL())
	assert.Equal(t, []byte("#EXTM3U\nhttp://example.com/b.mkv\n"), p.Playlist())
	assert.Equal(t, CopyLabelDefault, p.CopyLabel())
}

func TestCopy_ConfirmsThenReverts(t *testing.T) {
	t.Parallel()

	clip := &fakeClipboard{}
	p := New(clip, 20*time.Millisecond)
	p.Present("http://example.com/a.mkv")

	require.NoError(t, p.Copy())
	assert.Equal(t, []string{"http://example.com/a.mkv"}, clip.texts)
	assert.Equal(t, CopyLabelConfirm, p.CopyLabel())

	assert.Eventually(t, func() bool {
		return p.CopyLabel() == CopyLabelDefault
	}, time.Second, 5*time.Millisecond)
}

func TestCopy_ErrorKeepsDefaultLabel(t *testing.T) {
	t.Parallel()

	p := New(&fakeClipboard{err: errors.New("denied")}, time.Minute)
	p.Present("http://example.com/a.mkv")

	require.Error(t, p.Copy())
	assert.Equal(t, CopyLabelDefault, p.CopyLabel())
}

func TestPresent_CancelsPendingConfirmationRevert(t *testing.T) {
	t.Parallel()

	p := New(&fakeClipboard{}, 20*time.Millisecond)
	p.Present("http://example.com/a.mkv")
	require.NoError(t, p.Copy())

	// re-presenting supersedes the pending revert and resets the label
	p.Present("http://example.com/b.mkv")
	assert.Equal(t, CopyLabelDefault, p.CopyLabel())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, "http://example.com/b.mkv", p.URL())
	assert.Equal(t, CopyLabelDefault, p.CopyLabel())
}

func TestPlaylistBytes_AlwaysCarriesOriginalURL(t *testing.T) {
	t.Parallel()

	// the fallback offers the original stream location, never a rewritten
	// working URL; the exported playlist must match byte for byte
	got := PlaylistBytes("http://example.com/a.mkv")
	assert.Equal(t, "#EXTM3U\nhttp://example.com/a.mkv\n", string(got))
}
