package transform

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/models"
)

func TestToRFC3339(t *testing.T) {
	tests := []struct {
		in   any
		want any
	}{
		{"2023-05-01T10:11:12Z", "2023-05-01T10:11:12+00:00"},
		{"2023-05-01T10:11:12.5Z", "2023-05-01T10:11:12.5+00:00"},
		{"2023-05-01T10:11:12-04:00", "2023-05-01T10:11:12-04:00"},
		{"2023-05-01T10:11:12", "2023-05-01T10:11:12+00:00"},
		{"2023-05-01", "2023-05-01T00:00:00+00:00"},
		{nil, nil},
		{"", ""},
	}
	for _, tt := range tests {
		got, err := ToRFC3339(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "input %v", tt.in)
	}

	_, err := ToRFC3339("yesterday")
	assert.Error(t, err)
}

func TestToRFC3339_IsIdempotent(t *testing.T) {
	for _, in := range []string{
		"2023-05-01T10:11:12Z",
		"2023-05-01T10:11:12.123456789+02:00",
		"2023-12-31T23:59:59-0800",
	} {
		once, err := ToRFC3339(in)
		require.NoError(t, err)
		twice, err := ToRFC3339(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice)
	}
}

func TestResolveID(t *testing.T) {
	tests := []struct {
		in   any
		want any
	}{
		{"gid://shopify/Product/123", int64(123)},
		{"gid://shopify/InventoryLevel/7?inventory_item_id=9", int64(7)},
		{"456", int64(456)},
		{int64(5), int64(5)},
		{7, int64(7)},
		{float64(8), int64(8)},
		{json.Number("9"), int64(9)},
		{nil, nil},
	}
	for _, tt := range tests {
		got, err := ResolveID(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)

		again, err := ResolveID(got)
		require.NoError(t, err)
		assert.Equal(t, got, again, "resolving twice must be stable")
	}

	_, err := ResolveID("gid://shopify/Product/abc")
	assert.Error(t, err)
}

func TestGlobalIDType(t *testing.T) {
	assert.Equal(t, "Order", GlobalIDType("gid://shopify/Order/1"))
	assert.Equal(t, "", GlobalIDType("42"))
}

func TestCompositeKey(t *testing.T) {
	out, err := CompositeKey("id", "location_id", "inventory_item_id")(models.Record{
		"location_id":       int64(5),
		"inventory_item_id": int64(42),
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "5|42", out[0]["id"])
}

func TestPromoteAndFloat(t *testing.T) {
	fn := Chain(
		Promote("unit_cost", map[string]string{"amount": "cost", "currency_code": "currency_code"}),
		Float("cost"),
		DefaultList("country_harmonized_system_codes"),
	)
	out, err := fn(models.Record{
		"id":        int64(1),
		"unit_cost": map[string]any{"amount": "12.50", "currency_code": "USD"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	rec := out[0]
	assert.Equal(t, 12.5, rec["cost"])
	assert.Equal(t, "USD", rec["currency_code"])
	assert.Equal(t, []any{}, rec["country_harmonized_system_codes"])
	assert.NotContains(t, rec, "unit_cost")
}

func TestChain_FanOut(t *testing.T) {
	split := func(r models.Record) ([]models.Record, error) {
		return []models.Record{{"n": 1}, {"n": 2}}, nil
	}
	out, err := Chain(split, Rename("n", "m"))(models.Record{})
	require.NoError(t, err)
	assert.Equal(t, []models.Record{{"m": 1}, {"m": 2}}, out)

	out, err = Chain(func(models.Record) ([]models.Record, error) { return nil, nil }, Rename("n", "m"))(models.Record{})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestTimestamps_MalformedRecord(t *testing.T) {
	_, err := Timestamps("updated_at")(models.Record{"updated_at": "not a date"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeMalformedRecord))
}

func TestNestedTimestamps(t *testing.T) {
	rec := models.Record{"delivery_method": map[string]any{"min_delivery_date_time": "2024-01-02T03:04:05Z"}}
	_, err := NestedTimestamps("delivery_method", "min_delivery_date_time", "max_delivery_date_time")(rec)
	require.NoError(t, err)
	dm := rec["delivery_method"].(map[string]any)
	assert.Equal(t, "2024-01-02T03:04:05+00:00", dm["min_delivery_date_time"])
	assert.NotContains(t, dm, "max_delivery_date_time")
}

func TestSnakeKeys_KeepsMarkers(t *testing.T) {
	in := map[string]any{
		"__parentId": "gid://shopify/Order/1",
		"updatedAt":  "x",
		"unitCost":   map[string]any{"currencyCode": "USD"},
		"lineItems":  []any{map[string]any{"variantId": 1}},
	}
	got := SnakeKeys(in).(map[string]any)
	assert.Equal(t, "gid://shopify/Order/1", got["__parentId"])
	assert.Equal(t, "x", got["updated_at"])
	assert.Equal(t, "USD", got["unit_cost"].(map[string]any)["currency_code"])
	assert.Equal(t, 1, got["line_items"].([]any)[0].(map[string]any)["variant_id"])
}

func TestSnakeKeys_DigitsStayAttached(t *testing.T) {
	got := SnakeKeys(models.Record{
		"address1":            "a",
		"address2":            "b",
		"countryCodeOfOrigin": "c",
		"countryCodeV2":       "d",
		"__parentId":          "x",
	}).(models.Record)

	assert.Equal(t, models.Record{
		"address1":               "a",
		"address2":               "b",
		"country_code_of_origin": "c",
		"country_code_v2":        "d",
		"__parentId":             "x",
	}, got)
}

func TestSnakeCase(t *testing.T) {
	tests := map[string]string{
		"address1":       "address1",
		"updatedAt":      "updated_at",
		"ProductVariant": "product_variant",
		"line_2":         "line_2",
		"id":             "id",
	}
	for in, want := range tests {
		assert.Equal(t, want, SnakeCase(in), in)
	}
}

func TestRegistry_LookupDefaultsToIdentity(t *testing.T) {
	reg := NewRegistry()
	reg.Register("orders", Drop("secret"))

	out, err := reg.Lookup("orders")(models.Record{"id": 1, "secret": "x"})
	require.NoError(t, err)
	assert.Equal(t, []models.Record{{"id": 1}}, out)

	out, err = reg.Lookup("unknown")(models.Record{"id": 2})
	require.NoError(t, err)
	assert.Equal(t, []models.Record{{"id": 2}}, out)
}
