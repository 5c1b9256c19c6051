package tasks

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/lysyi3m/rss-relay/app/database"
	"github.com/lysyi3m/rss-relay/app/events"
	"github.com/lysyi3m/rss-relay/app/queue"
)

type fakeSources struct {
	mu        sync.Mutex
	sources   map[string]database.Source
	listCalls int
}

func newFakeSources(urls ...string) *fakeSources {
	f := &fakeSources{sources: make(map[string]database.Source)}
	for _, u := range urls {
		f.sources[u] = database.Source{URL: u}
	}
	return f
}

func (f *fakeSources) ListSources(ctx context.Context, after string, limit int) ([]database.Source, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++

	var urls []string
	for u := range f.sources {
		if u > after {
			urls = append(urls, u)
		}
	}
	sort.Strings(urls)

	var next string
	if len(urls) > limit {
		urls = urls[:limit]
		next = urls[limit-1]
	}

	page := make([]database.Source, len(urls))
	for i, u := range urls {
		page[i] = f.sources[u]
	}
	return page, next, nil
}

func (f *fakeSources) GetSource(ctx context.Context, url string) (*database.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sources[url]; ok {
		return &s, nil
	}
	return nil, nil
}

func (f *fakeSources) GetSourceCount(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sources), nil
}

func (f *fakeSources) UpsertSource(ctx context.Context, source database.Source) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources[source.URL] = source
	return nil
}

func (f *fakeSources) DeleteSource(ctx context.Context, url string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sources[url]
	delete(f.sources, url)
	return ok, nil
}

// fakeLedger keeps entries in memory. failDeletes makes the next n delete
// attempts of a guid report it as unprocessed.
type fakeLedger struct {
	mu          sync.Mutex
	entries     map[database.LedgerKey]database.LedgerEntry
	failDeletes map[string]int
	deleteCalls int
	putErr      error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		entries:     make(map[database.LedgerKey]database.LedgerEntry),
		failDeletes: make(map[string]int),
	}
}

func (f *fakeLedger) GetEntry(ctx context.Context, source, guid string) (*database.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entries[database.LedgerKey{Source: source, GUID: guid}]; ok {
		return &e, nil
	}
	return nil, nil
}

func (f *fakeLedger) ListEntries(ctx context.Context, query database.LedgerQuery) ([]database.LedgerEntry, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var page []database.LedgerEntry
	for key, e := range f.entries {
		if key.Source == query.Source && key.GUID > query.After {
			page = append(page, e)
		}
	}
	sort.Slice(page, func(i, j int) bool { return page[i].GUID < page[j].GUID })

	var next string
	if len(page) > query.Limit {
		page = page[:query.Limit]
		next = page[query.Limit-1].GUID
	}
	return page, next, nil
}

func (f *fakeLedger) GetEntryCount(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries), nil
}

func (f *fakeLedger) PutEntry(ctx context.Context, entry database.LedgerEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.entries[database.LedgerKey{Source: entry.Source, GUID: entry.GUID}] = entry
	return nil
}

func (f *fakeLedger) DeleteEntries(ctx context.Context, keys []database.LedgerKey) ([]database.LedgerKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++

	if len(keys) > database.MaxDeleteBatch {
		return nil, database.ErrBatchTooLarge
	}

	var unprocessed []database.LedgerKey
	for _, key := range keys {
		if f.failDeletes[key.GUID] > 0 {
			f.failDeletes[key.GUID]--
			unprocessed = append(unprocessed, key)
			continue
		}
		delete(f.entries, key)
	}
	return unprocessed, nil
}

func (f *fakeLedger) guids(source string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for key := range f.entries {
		if key.Source == source {
			out = append(out, key.GUID)
		}
	}
	slices.Sort(out)
	return out
}

type fakeBus struct {
	mu        sync.Mutex
	published []events.Event
	err       error
}

func (b *fakeBus) Publish(ctx context.Context, event events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.published = append(b.published, event)
	return nil
}

func (b *fakeBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

// flakySender fails the sends whose 1-based index is listed in failOn.
type flakySender struct {
	next   queue.Sender
	calls  int
	failOn map[int]bool
}

func (s *flakySender) Send(ctx context.Context, msg queue.Message) error {
	s.calls++
	if s.failOn[s.calls] {
		return errors.New("send failed")
	}
	return s.next.Send(ctx, msg)
}

// feedServer serves whatever body is currently set.
type feedServer struct {
	*httptest.Server
	mu   sync.Mutex
	body string
}

func newFeedServer(t *testing.T, body string) *feedServer {
	t.Helper()
	fs := &feedServer{body: body}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(fs.body))
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *feedServer) set(body string) {
	fs.mu.Lock()
	fs.body = body
	fs.mu.Unlock()
}

func rssWithItems(guids ...string) string {
	body := `<?xml version="1.0"?><rss version="2.0"><channel><title>Scenario</title><link>https://example.com</link>`
	for _, g := range guids {
		body += `<item><title>` + g + `</title><guid>` + g + `</guid></item>`
	}
	return body + `</channel></rss>`
}

func drain(t *testing.T, q queue.Queue) []*queue.Delivery {
	t.Helper()
	var out []*queue.Delivery
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		d, err := q.Receive(ctx)
		cancel()
		if err != nil {
			return out
		}
		out = append(out, d)
	}
}

func noSleep(recorded *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*recorded = append(*recorded, d)
		return nil
	}
}
