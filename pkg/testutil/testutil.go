// Package testutil provides test doubles of the Shopify Admin API.
package testutil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/shopsync/pkg/clients"
	"github.com/ajitpratap0/shopsync/pkg/errors"
)

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a context with a 30-second timeout that is cancelled
// when the test completes.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// Call is one request seen by a FakeClient.
type Call struct {
	Kind   string
	Path   string
	Params url.Values
	Query  string
}

// pageSet serves scripted pages of one path. Page n links to page n+1 with
// a page_info of "page-<n+1>".
type pageSet []string

func (p pageSet) page(params url.Values) (int, bool) {
	info := params.Get("page_info")
	if info == "" {
		return 0, true
	}
	n, err := strconv.Atoi(strings.TrimPrefix(info, "page-"))
	return n, err == nil && n < len(p)
}

func (p pageSet) link(base, path string, n int) string {
	if n+1 >= len(p) {
		return ""
	}
	return fmt.Sprintf(`<%s/%s?limit=250&page_info=page-%d>; rel="next"`, base, path, n+1)
}

// FakeClient is an in-memory extract.Client.
type FakeClient struct {
	mu      sync.Mutex
	pages   map[string]pageSet
	fails   map[string]error
	files   map[string]string
	graphql func(query string) (string, error)
	calls   []Call
}

// NewFakeClient creates an empty fake.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		pages: make(map[string]pageSet),
		fails: make(map[string]error),
		files: make(map[string]string),
	}
}

// AddPages scripts the pages of path. Every page but the last carries a
// Link header to its successor.
func (f *FakeClient) AddPages(path string, bodies ...string) *FakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[path] = pageSet(bodies)
	return f
}

// Fail makes every request of path return err.
func (f *FakeClient) Fail(path string, err error) *FakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fails[path] = err
	return f
}

// AddFile serves body at rawURL for Download.
func (f *FakeClient) AddFile(rawURL, body string) *FakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[rawURL] = body
	return f
}

// OnGraphQL sets the GraphQL responder; it returns the response body.
func (f *FakeClient) OnGraphQL(fn func(query string) (string, error)) *FakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.graphql = fn
	return f
}

// Get serves a scripted page.
func (f *FakeClient) Get(ctx context.Context, path string, params url.Values) (*clients.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Kind: "get", Path: path, Params: params})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := f.fails[path]; ok {
		return nil, err
	}
	pages, ok := f.pages[path]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "no pages for %s", path)
	}
	n, ok := pages.page(params)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeValidation, "bad page_info %q", params.Get("page_info"))
	}

	header := http.Header{}
	if link := pages.link("https://test.myshopify.com/admin/api/2024-04", path, n); link != "" {
		header.Set("Link", link)
	}
	return &clients.Response{StatusCode: http.StatusOK, Header: header, Body: []byte(pages[n])}, nil
}

// GraphQL forwards to the responder set with OnGraphQL.
func (f *FakeClient) GraphQL(ctx context.Context, query string) (*clients.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Kind: "graphql", Query: query})
	fn := f.graphql
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, errors.New(errors.ErrorTypeQuery, "no graphql responder")
	}
	body, err := fn(query)
	if err != nil {
		return nil, err
	}
	return &clients.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: []byte(body)}, nil
}

// Download streams a file added with AddFile.
func (f *FakeClient) Download(ctx context.Context, rawURL string, handle func(io.Reader) error) error {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Kind: "download", Path: rawURL})
	body, ok := f.files[rawURL]
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if !ok {
		return errors.Newf(errors.ErrorTypeNotFound, "no file at %s", rawURL)
	}
	return handle(strings.NewReader(body))
}

// Calls returns the requests of one kind ("get", "graphql", "download"),
// or all requests when kind is empty.
func (f *FakeClient) Calls(kind string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if kind == "" || c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}
