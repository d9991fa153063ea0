package scraper

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeFetcher serves canned pages keyed by URL.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string][]byte
	errs  map[string]error
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	page, ok := f.pages[url]
	if !ok {
		return nil, &FetchError{URL: url, Attempts: 1, Err: fmt.Errorf("no such page")}
	}
	return page, nil
}

func indexPage(hrefs ...string) []byte {
	page := "<html><body>"
	for _, href := range hrefs {
		page += fmt.Sprintf(`<a class="m-link-ticket" href=%q>ad</a>`, href)
	}
	return []byte(page + "</body></html>")
}

const startURL = "https://auto.ria.com/uk/car/used/"

func collect(t *testing.T, d *Discoverer) []string {
	t.Helper()
	out := make(chan string)
	go d.Run(context.Background(), out)
	var urls []string
	for u := range out {
		urls = append(urls, u)
	}
	return urls
}

func TestDiscoverer_WalksUntilEmptyPage(t *testing.T) {
	t.Parallel()

	ff := &fakeFetcher{pages: map[string][]byte{
		startURL + "?page=1": indexPage("/uk/auto_a_1.html", "/uk/auto_b_2.html"),
		startURL + "?page=2": indexPage("/uk/auto_c_3.html"),
		startURL + "?page=3": indexPage(),
	}}
	d := NewDiscoverer(ff, startURL, 100, zap.NewNop())

	urls := collect(t, d)
	require.Equal(t, []string{
		"https://auto.ria.com/uk/auto_a_1.html",
		"https://auto.ria.com/uk/auto_b_2.html",
		"https://auto.ria.com/uk/auto_c_3.html",
	}, urls)
}

func TestDiscoverer_RepeatedLinksEndDiscovery(t *testing.T) {
	t.Parallel()

	// Page 2 repeats page 1's ads, so it contributes nothing new and the
	// walk stops there.
	ff := &fakeFetcher{pages: map[string][]byte{
		startURL + "?page=1": indexPage("/uk/auto_a_1.html"),
		startURL + "?page=2": indexPage("/uk/auto_a_1.html"),
		startURL + "?page=3": indexPage("/uk/auto_z_9.html"),
	}}
	d := NewDiscoverer(ff, startURL, 100, zap.NewNop())

	urls := collect(t, d)
	require.Equal(t, []string{"https://auto.ria.com/uk/auto_a_1.html"}, urls)
	require.Len(t, ff.calls, 2)
}

func TestDiscoverer_PageBoundStopsPagination(t *testing.T) {
	t.Parallel()

	ff := &fakeFetcher{pages: map[string][]byte{
		startURL + "?page=1": indexPage("/uk/auto_a_1.html"),
		startURL + "?page=2": indexPage("/uk/auto_b_2.html"),
		startURL + "?page=3": indexPage("/uk/auto_c_3.html"),
	}}
	d := NewDiscoverer(ff, startURL, 2, zap.NewNop())

	urls := collect(t, d)
	require.Len(t, urls, 2)
	require.Len(t, ff.calls, 2)
}

func TestDiscoverer_IndexFetchFailureEndsDiscovery(t *testing.T) {
	t.Parallel()

	ff := &fakeFetcher{
		pages: map[string][]byte{
			startURL + "?page=1": indexPage("/uk/auto_a_1.html"),
		},
		errs: map[string]error{
			startURL + "?page=2": &FetchError{URL: startURL + "?page=2", Attempts: 3, Err: fmt.Errorf("boom")},
		},
	}
	d := NewDiscoverer(ff, startURL, 100, zap.NewNop())

	urls := collect(t, d)
	require.Equal(t, []string{"https://auto.ria.com/uk/auto_a_1.html"}, urls)
}

func TestDiscoverer_IgnoresNonAdLinks(t *testing.T) {
	t.Parallel()

	ff := &fakeFetcher{pages: map[string][]byte{
		startURL + "?page=1": []byte(`<html><body>
			<a class="m-link-ticket" href="/uk/auto_real_1.html">ad</a>
			<a class="m-link-ticket" href="/uk/news/some-article.html">news</a>
			<a class="address" href="/uk/auto_real_1.html">same ad again</a>
		</body></html>`),
		startURL + "?page=2": indexPage(),
	}}
	d := NewDiscoverer(ff, startURL, 100, zap.NewNop())

	urls := collect(t, d)
	require.Equal(t, []string{"https://auto.ria.com/uk/auto_real_1.html"}, urls)
}

func TestDiscoverer_StartURLWithQueryKeepsParams(t *testing.T) {
	t.Parallel()

	withQuery := "https://auto.ria.com/uk/search/?brand=audi"
	ff := &fakeFetcher{pages: map[string][]byte{
		withQuery + "&page=1": indexPage("/uk/auto_a_1.html"),
		withQuery + "&page=2": indexPage(),
	}}
	d := NewDiscoverer(ff, withQuery, 100, zap.NewNop())

	urls := collect(t, d)
	require.Len(t, urls, 1)
}
