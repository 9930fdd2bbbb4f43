package shopify

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/ajitpratap0/shopsync/pkg/config"
	"github.com/ajitpratap0/shopsync/pkg/connector/core"
	"github.com/ajitpratap0/shopsync/pkg/connector/registry"
	"github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/extract/bulk"
	"github.com/ajitpratap0/shopsync/pkg/models"
	"github.com/ajitpratap0/shopsync/pkg/testutil"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testConfig(streams ...string) *config.SourceConfig {
	cfg := config.Default()
	cfg.Shop = "test-shop"
	cfg.Credentials.AccessToken = "shpat_test"
	cfg.StartDate = "2024-01-01"
	cfg.Streams = streams
	cfg.Reliability.RetryAttempts = 1
	return cfg
}

type messages []models.Message

func (m *messages) writer() core.MessageWriter {
	return core.MessageWriterFunc(func(msg models.Message) error {
		*m = append(*m, msg)
		return nil
	})
}

func (m messages) ofType(typ models.MessageType) []models.Message {
	var out []models.Message
	for _, msg := range m {
		if msg.Type == typ {
			out = append(out, msg)
		}
	}
	return out
}

func newFakeSource(t *testing.T, cfg *config.SourceConfig, client *testutil.FakeClient) *Source {
	t.Helper()
	src, err := NewSource(cfg, testutil.TestLogger(t), WithClient(client), WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return src
}

func TestRead_EmitsRecordsThenState(t *testing.T) {
	client := testutil.NewFakeClient().
		AddPages("customers.json",
			`{"customers":[{"id":1,"updated_at":"2024-02-01T00:00:00+00:00"},{"id":2,"updated_at":"2024-02-03T00:00:00+00:00"}]}`).
		AddPages("locations.json", `{"locations":[{"id":10,"name":"Main"}]}`)
	src := newFakeSource(t, testConfig("customers", "locations"), client)

	var out messages
	require.NoError(t, src.Read(testutil.TestContext(t), models.State{}, out.writer()))

	require.Len(t, out, 4)
	assert.Equal(t, models.MessageTypeRecord, out[0].Type)
	assert.Equal(t, "customers", out[0].Record.Stream)
	assert.Equal(t, "test-shop.myshopify.com", out[0].Record.Data["shop_url"])
	assert.Equal(t, fixedNow.UnixMilli(), out[0].Record.EmittedAt)

	assert.Equal(t, models.MessageTypeState, out[2].Type)
	assert.Equal(t, "customers", out[2].State.Stream)
	assert.Equal(t, "2024-02-03T00:00:00+00:00", out[2].State.Data["updated_at"])

	// full refresh streams keep no state
	assert.Equal(t, models.MessageTypeRecord, out[3].Type)
	assert.Equal(t, "locations", out[3].Record.Stream)

	calls := client.Calls("get")
	require.Len(t, calls, 2)
	assert.Equal(t, "2024-01-01T00:00:00+00:00", calls[0].Params.Get("updated_at_min"))
	assert.Empty(t, calls[1].Params.Get("updated_at_min"))
}

func TestRead_ResumesFromState(t *testing.T) {
	client := testutil.NewFakeClient().
		AddPages("customers.json", `{"customers":[{"id":3,"updated_at":"2024-03-01T00:00:00+00:00"}]}`)
	src := newFakeSource(t, testConfig("customers"), client)

	state := models.State{"customers": {"updated_at": "2024-02-03T00:00:00+00:00"}}
	var out messages
	require.NoError(t, src.Read(testutil.TestContext(t), state, out.writer()))

	assert.Equal(t, "2024-02-03T00:00:00+00:00", client.Calls("get")[0].Params.Get("updated_at_min"))
	states := out.ofType(models.MessageTypeState)
	require.Len(t, states, 1)
	assert.Equal(t, "2024-03-01T00:00:00+00:00", states[0].State.Data["updated_at"])
}

func TestRead_FailingStreamDoesNotStopOthers(t *testing.T) {
	client := testutil.NewFakeClient().
		Fail("customers.json", errors.New(errors.ErrorTypeAuthentication, "invalid token")).
		AddPages("countries.json", `{"countries":[{"id":1,"code":"DE"}]}`)
	src := newFakeSource(t, testConfig("customers", "countries"), client)

	var out messages
	err := src.Read(testutil.TestContext(t), nil, out.writer())
	require.Error(t, err)
	require.Len(t, multierr.Errors(err), 1)
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication))

	logs := out.ofType(models.MessageTypeLog)
	require.Len(t, logs, 1)
	assert.Equal(t, "ERROR", logs[0].Log.Level)
	assert.Contains(t, logs[0].Log.Message, "customers")

	records := out.ofType(models.MessageTypeRecord)
	require.Len(t, records, 1)
	assert.Equal(t, "countries", records[0].Record.Stream)
}

func TestRead_WriterErrorStopsRead(t *testing.T) {
	client := testutil.NewFakeClient().
		AddPages("countries.json", `{"countries":[{"id":1},{"id":2}]}`).
		AddPages("shop.json", `{"shop":{"id":1}}`)
	src := newFakeSource(t, testConfig("shop", "countries"), client)

	writeErr := fmt.Errorf("broken pipe")
	err := src.Read(testutil.TestContext(t), nil, core.MessageWriterFunc(func(models.Message) error {
		return writeErr
	}))
	assert.ErrorIs(t, err, writeErr)
	assert.Len(t, client.Calls("get"), 1)
}

func TestRead_UnknownStreamIsConfigError(t *testing.T) {
	src := newFakeSource(t, testConfig("no_such_stream"), testutil.NewFakeClient())

	err := src.Read(testutil.TestContext(t), nil, core.MessageWriterFunc(func(models.Message) error { return nil }))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestRead_BulkStream(t *testing.T) {
	client := testutil.NewFakeClient().
		AddFile("https://storage.test/result.jsonl", `{"__typename":"InventoryLevel","id":"gid://shopify/InventoryLevel/1","updatedAt":"2024-05-02T00:00:00Z","item":{"inventory_item_id":"gid://shopify/InventoryItem/42"},"__parentId":"gid://shopify/Location/5"}
{"__typename":"Location","id":"gid://shopify/Location/5"}
`).
		OnGraphQL(func(query string) (string, error) {
			if strings.Contains(query, "bulkOperationRunQuery") {
				return `{"data":{"bulkOperationRunQuery":{"bulkOperation":{"id":"gid://shopify/BulkOperation/1","status":"CREATED"},"userErrors":[]}}}`, nil
			}
			return `{"data":{"node":{"id":"gid://shopify/BulkOperation/1","status":"COMPLETED","objectCount":"2","url":"https://storage.test/result.jsonl"}}}`, nil
		})

	cfg := testConfig("inventory_levels")
	cfg.StartDate = "2024-05-01"
	engine := bulk.NewEngine(bulk.Config{PollInterval: time.Millisecond, MaxPollInterval: time.Millisecond, PollTimeout: time.Minute}, nil)
	src, err := NewSource(cfg, testutil.TestLogger(t), WithClient(client), WithBulkEngine(engine))
	require.NoError(t, err)

	var out messages
	require.NoError(t, src.Read(testutil.TestContext(t), nil, out.writer()))

	records := out.ofType(models.MessageTypeRecord)
	require.Len(t, records, 1)
	rec := records[0].Record.Data
	assert.Equal(t, "5|42", rec["id"])
	assert.NotContains(t, rec, "__parentId")
	assert.NotContains(t, rec, "__typename")

	states := out.ofType(models.MessageTypeState)
	require.Len(t, states, 1)
	assert.Equal(t, "2024-05-02T00:00:00+00:00", states[0].State.Data["updated_at"])
}

func TestDiscover_ListsCatalogWithSchemas(t *testing.T) {
	src := newFakeSource(t, testConfig(), testutil.NewFakeClient())

	catalog, err := src.Discover(testutil.TestContext(t))
	require.NoError(t, err)
	require.Len(t, catalog.Streams, len(Catalog()))

	byName := make(map[string]models.CatalogStream)
	for _, s := range catalog.Streams {
		byName[s.Name] = s
	}

	orders := byName["orders"]
	assert.Equal(t, []string{"full_refresh", "incremental"}, orders.SupportedSyncModes)
	assert.Equal(t, []string{"updated_at"}, orders.DefaultCursorField)
	assert.Equal(t, [][]string{{"id"}}, orders.SourceDefinedPrimaryKey)
	assert.Contains(t, orders.JSONSchema["properties"], "line_items")

	locations := byName["locations"]
	assert.Equal(t, []string{"full_refresh"}, locations.SupportedSyncModes)
	assert.Empty(t, locations.DefaultCursorField)
}

func TestCheck_AgainstShopServer(t *testing.T) {
	server := testutil.NewShopServer(t)
	server.AddPages("shop.json", `{"shop":{"id":99,"name":"Test"}}`)

	src, err := NewSource(testConfig(), testutil.TestLogger(t), WithBaseURL(server.BaseURL()))
	require.NoError(t, err)
	require.NoError(t, src.Check(testutil.TestContext(t)))
	server.RequireRequest(t, "GET /admin/api/"+testutil.APIVersion+"/shop.json")
}

func TestCheck_FailsWithoutShop(t *testing.T) {
	server := testutil.NewShopServer(t)

	src, err := NewSource(testConfig(), testutil.TestLogger(t), WithBaseURL(server.BaseURL()))
	require.NoError(t, err)
	assert.Error(t, src.Check(testutil.TestContext(t)))
}

func TestRead_EndToEndAgainstShopServer(t *testing.T) {
	server := testutil.NewShopServer(t)
	server.AddPages("orders.json",
		`{"orders":[{"id":1,"updated_at":"2024-02-01T00:00:00+00:00","refunds":[{"id":11,"created_at":"2024-02-02T00:00:00+00:00"}]}]}`,
		`{"orders":[{"id":2,"updated_at":"2024-02-05T00:00:00+00:00","refunds":[]}]}`)

	src, err := NewSource(testConfig("order_refunds"), testutil.TestLogger(t), WithBaseURL(server.BaseURL()))
	require.NoError(t, err)

	var out messages
	require.NoError(t, src.Read(testutil.TestContext(t), nil, out.writer()))

	records := out.ofType(models.MessageTypeRecord)
	require.Len(t, records, 1)
	assert.Equal(t, "order_refunds", records[0].Record.Stream)

	states := out.ofType(models.MessageTypeState)
	require.Len(t, states, 1)
	assert.Equal(t, "2024-02-02T00:00:00+00:00", states[0].State.Data["created_at"])
	parent, ok := states[0].State.Data["orders"].(models.StreamState)
	require.True(t, ok)
	assert.Equal(t, "2024-02-05T00:00:00+00:00", parent["updated_at"])

	server.RequireRequest(t, "GET /admin/api/"+testutil.APIVersion+"/orders.json?")
	for _, r := range server.Requests() {
		assert.NotContains(t, r, "events.json")
	}
}

func TestNewSource_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Shop = ""
	_, err := NewSource(cfg, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestRegistry_CreatesShopifySource(t *testing.T) {
	assert.Contains(t, registry.ListSources(), Name)

	src, err := registry.CreateSource(Name, testConfig(), nil)
	require.NoError(t, err)
	assert.NotNil(t, src.Spec()["connectionSpecification"])
}
