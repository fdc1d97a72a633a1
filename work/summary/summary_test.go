package summary

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakePopover struct {
	content  string
	disposed bool
}

func (p *fakePopover) Dispose() { p.disposed = true }

type popoverRecorder struct {
	mu       sync.Mutex
	popovers []*fakePopover
}

func (r *popoverRecorder) factory(content string) Popover {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := &fakePopover{content: content}
	r.popovers = append(r.popovers, p)
	return p
}

func (r *popoverRecorder) all() []*fakePopover {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*fakePopover(nil), r.popovers...)
}

type summaryFetcher struct {
	mu      sync.Mutex
	ids     []string
	summary Summary
	err     error
}

func (f *summaryFetcher) fetch(_ context.Context, id string) (Summary, error) {
	f.mu.Lock()
	f.ids = append(f.ids, id)
	f.mu.Unlock()
	return f.summary, f.err
}

func (f *summaryFetcher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

func TestHoverStart_UnusableIDsNeverFetch(t *testing.T) {
	t.Parallel()

	fetcher := &summaryFetcher{}
	c := New(fetcher.fetch, (&popoverRecorder{}).factory, time.Millisecond)

	c.HoverStart("")
	c.HoverStart("0")
	c.HoverStart("null")

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, fetcher.calls())
}

func TestHoverStart_DwellTriggersSingleFetch(t *testing.T) {
	t.Parallel()

	fetcher := &summaryFetcher{summary: Summary{Overview: "A hacker discovers reality."}}
	rec := &popoverRecorder{}
	c := New(fetcher.fetch, rec.factory, 10*time.Millisecond)

	c.HoverStart("603")

	assert.Eventually(t, func() bool {
		return len(rec.all()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"603"}, fetcher.calls())
	assert.Equal(t, "A hacker discovers reality.", rec.all()[0].content)
}

func TestHoverEnd_BeforeDwellCancelsFetch(t *testing.T) {
	t.Parallel()

	fetcher := &summaryFetcher{}
	c := New(fetcher.fetch, (&popoverRecorder{}).factory, 30*time.Millisecond)

	c.HoverStart("603")
	c.HoverEnd()

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, fetcher.calls())
}

func TestHoverEnd_DisposesPopover(t *testing.T) {
	t.Parallel()

	fetcher := &summaryFetcher{summary: Summary{Overview: "plot"}}
	rec := &popoverRecorder{}
	c := New(fetcher.fetch, rec.factory, time.Millisecond)

	c.HoverStart("603")
	assert.Eventually(t, func() bool {
		return len(rec.all()) == 1
	}, time.Second, 5*time.Millisecond)

	c.HoverEnd()
	assert.True(t, rec.all()[0].disposed)
}

func TestNewHoverDisposesPreviousPopover(t *testing.T) {
	t.Parallel()

	fetcher := &summaryFetcher{summary: Summary{Overview: "plot"}}
	rec := &popoverRecorder{}
	c := New(fetcher.fetch, rec.factory, time.Millisecond)

	c.HoverStart("603")
	assert.Eventually(t, func() bool {
		return len(rec.all()) == 1
	}, time.Second, 5*time.Millisecond)

	c.HoverStart("604")
	assert.Eventually(t, func() bool {
		return len(rec.all()) == 2
	}, time.Second, 5*time.Millisecond)

	popovers := rec.all()
	assert.True(t, popovers[0].disposed)
	assert.False(t, popovers[1].disposed)
}

func TestEmptyOverviewRendersPlaceholder(t *testing.T) {
	t.Parallel()

	fetcher := &summaryFetcher{summary: Summary{}}
	rec := &popoverRecorder{}
	c := New(fetcher.fetch, rec.factory, time.Millisecond)

	c.HoverStart("603")
	assert.Eventually(t, func() bool {
		return len(rec.all()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, NoSummaryText, rec.all()[0].content)
}

func TestFetchErrorDropsSilently(t *testing.T) {
	t.Parallel()

	fetcher := &summaryFetcher{err: errors.New("boom")}
	rec := &popoverRecorder{}
	c := New(fetcher.fetch, rec.factory, time.Millisecond)

	c.HoverStart("603")

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.all())
}

func TestStaleResponseAfterLeaveIsDropped(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	fetch := func(_ context.Context, id string) (Summary, error) {
		<-release
		return Summary{Overview: "late"}, nil
	}
	rec := &popoverRecorder{}
	c := New(fetch, rec.factory, time.Millisecond)

	c.HoverStart("603")
	time.Sleep(30 * time.Millisecond) // let the dwell expire into the fetch
	c.HoverEnd()
	close(release)

	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, rec.all())
}

func TestAttach_IdempotentPerCard(t *testing.T) {
	t.Parallel()

	c := New((&summaryFetcher{}).fetch, (&popoverRecorder{}).factory, time.Millisecond)
	assert.True(t, c.Attach("card-1"))
	assert.False(t, c.Attach("card-1"))
	assert.True(t, c.Attach("card-2"))
}
