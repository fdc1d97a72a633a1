package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegion struct {
	mu   sync.Mutex
	html string
}

func (r *fakeRegion) HTML() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.html
}

func (r *fakeRegion) SetHTML(html string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.html = html
}

type recordingFetcher struct {
	mu      sync.Mutex
	queries []string
	html    string
	err     error
}

func (f *recordingFetcher) fetch(_ context.Context, query string) (string, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.html, nil
}

func (f *recordingFetcher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func TestInput_BelowMinimumNeverFetches(t *testing.T) {
	t.Parallel()

	region := &fakeRegion{html: "<p>browse</p>"}
	fetcher := &recordingFetcher{html: "<p>results</p>"}
	c := New(region, fetcher.fetch, 10*time.Millisecond, 2)

	c.Input("a")
	time.Sleep(50 * time.Millisecond)

	assert.Empty(t, fetcher.calls())
	assert.Equal(t, "<p>browse</p>", region.HTML())
}

func TestInput_DebouncedSingleFetch(t *testing.T) {
	t.Parallel()

	region := &fakeRegion{html: "<p>browse</p>"}
	fetcher := &recordingFetcher{html: "<p>results</p>"}
	c := New(region, fetcher.fetch, 10*time.Millisecond, 2)

	c.Input("ab")

	assert.Eventually(t, func() bool {
		return region.HTML() == "<p>results</p>"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"ab"}, fetcher.calls())
}

func TestInput_RapidTypingCollapsesToLastQuery(t *testing.T) {
	t.Parallel()

	region := &fakeRegion{}
	fetcher := &recordingFetcher{html: "<p>results</p>"}
	c := New(region, fetcher.fetch, 20*time.Millisecond, 2)

	c.Input("ab")
	c.Input("abc")
	c.Input("abcd")

	assert.Eventually(t, func() bool {
		return len(fetcher.calls()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"abcd"}, fetcher.calls())
}

func TestShrinkingQueryRestoresSnapshot(t *testing.T) {
	t.Parallel()

	region := &fakeRegion{html: "<p>browse</p>"}
	fetcher := &recordingFetcher{html: "<p>results</p>"}
	c := New(region, fetcher.fetch, time.Millisecond, 2)

	c.Submit("ab")
	require.Equal(t, "<p>results</p>", region.HTML())

	// dropping below the minimum restores the pre-search content
	// without another request
	c.Submit("a")
	assert.Equal(t, "<p>browse</p>", region.HTML())
	assert.Equal(t, []string{"ab"}, fetcher.calls())
}

func TestFetchFailureFailsOpen(t *testing.T) {
	t.Parallel()

	region := &fakeRegion{html: "<p>browse</p>"}
	fetcher := &recordingFetcher{err: errors.New("boom")}
	c := New(region, fetcher.fetch, time.Millisecond, 2)

	c.Submit("ab")

	assert.Equal(t, "<p>browse</p>", region.HTML())
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	t.Parallel()

	region := &fakeRegion{html: "<p>browse</p>"}

	release := map[string]chan struct{}{
		"slow": make(chan struct{}),
		"fast": make(chan struct{}),
	}
	fetch := func(_ context.Context, query string) (string, error) {
		<-release[query]
		return "<p>" + query + "</p>", nil
	}

	c := New(region, fetch, time.Millisecond, 2)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.Submit("slow")
	}()
	time.Sleep(20 * time.Millisecond)
	go func() {
		defer wg.Done()
		c.Submit("fast")
	}()
	time.Sleep(20 * time.Millisecond)

	// the newer response lands first; the older one must not overwrite it
	close(release["fast"])
	assert.Eventually(t, func() bool {
		return region.HTML() == "<p>fast</p>"
	}, time.Second, 5*time.Millisecond)

	close(release["slow"])
	wg.Wait()
	assert.Equal(t, "<p>fast</p>", region.HTML())
}

func TestDismissRestoresSnapshot(t *testing.T) {
	t.Parallel()

	region := &fakeRegion{html: "<p>browse</p>"}
	fetcher := &recordingFetcher{html: "<p>results</p>"}
	c := New(region, fetcher.fetch, time.Millisecond, 2)

	c.Submit("ab")
	require.Equal(t, "<p>results</p>", region.HTML())

	c.Dismiss()
	assert.Equal(t, "<p>browse</p>", region.HTML())
}

func TestAttach_Idempotent(t *testing.T) {
	t.Parallel()

	c := New(&fakeRegion{}, (&recordingFetcher{}).fetch, time.Millisecond, 2)
	assert.True(t, c.Attach())
	assert.False(t, c.Attach())
}
