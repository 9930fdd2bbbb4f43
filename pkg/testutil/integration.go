package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/ajitpratap0/shopsync/pkg/clients"
)

// APIVersion is the version served by ShopServer.
const APIVersion = "2024-04"

// ShopServer is an HTTP fake of one shop's Admin API, used to exercise the
// real client end to end.
type ShopServer struct {
	*httptest.Server

	mu       sync.Mutex
	rest     map[string]pageSet
	files    map[string]string
	graphql  func(query string) string
	requests []string
}

// NewShopServer starts a server that is closed when the test completes.
func NewShopServer(t *testing.T) *ShopServer {
	t.Helper()
	s := &ShopServer{
		rest:  make(map[string]pageSet),
		files: make(map[string]string),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// BaseURL returns the API root to configure the client with.
func (s *ShopServer) BaseURL() string {
	return s.URL + "/admin/api/" + APIVersion
}

// FileURL returns the download URL of a file added with AddFile.
func (s *ShopServer) FileURL(name string) string {
	return s.URL + "/files/" + name
}

// AddPages scripts the pages of a REST path such as "orders.json".
func (s *ShopServer) AddPages(path string, bodies ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rest[path] = pageSet(bodies)
}

// AddFile serves a bulk result file.
func (s *ShopServer) AddFile(name, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = body
}

// OnGraphQL sets the GraphQL responder.
func (s *ShopServer) OnGraphQL(fn func(query string) string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graphql = fn
}

// Requests returns "METHOD path?query" of every request served.
func (s *ShopServer) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *ShopServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, r.Method+" "+r.URL.RequestURI())

	if name, ok := strings.CutPrefix(r.URL.Path, "/files/"); ok {
		body, found := s.files[name]
		if !found {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, body)
		return
	}

	path, ok := strings.CutPrefix(r.URL.Path, "/admin/api/"+APIVersion+"/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	if path == "graphql.json" {
		raw, _ := io.ReadAll(r.Body)
		if s.graphql == nil {
			_, _ = io.WriteString(w, `{"errors":[{"message":"no responder"}]}`)
			return
		}
		_, _ = io.WriteString(w, s.graphql(gjson.GetBytes(raw, "query").String()))
		return
	}

	pages, found := s.rest[path]
	if !found {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"errors":"Not Found"}`)
		return
	}
	n, valid := pages.page(r.URL.Query())
	if !valid {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if link := pages.link(s.BaseURL(), path, n); link != "" {
		w.Header().Set("Link", link)
	}
	w.Header().Set(clients.CallLimitHeader, "1/40")
	_, _ = io.WriteString(w, pages[n])
}

// RequireRequest fails the test unless a request with the given prefix
// ("GET /admin/api/2024-04/orders.json") was served.
func (s *ShopServer) RequireRequest(t *testing.T, prefix string) {
	t.Helper()
	for _, r := range s.Requests() {
		if strings.HasPrefix(r, prefix) {
			return
		}
	}
	require.Failf(t, "request not served", "no request with prefix %q in %v", prefix, s.Requests())
}
