package shopify

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/models"
)

func transformOne(t *testing.T, stream string, rec models.Record) []models.Record {
	t.Helper()
	out, err := Transforms().Lookup(stream)(rec)
	require.NoError(t, err)
	return out
}

func TestInventoryLevel_CompositeID(t *testing.T) {
	out := transformOne(t, "inventory_levels", models.Record{
		"id":         "gid://shopify/InventoryLevel/9?inventory_item_id=42",
		"__parentId": "gid://shopify/Location/5",
		"item":       map[string]any{"inventory_item_id": "gid://shopify/InventoryItem/42"},
		"updated_at": "2024-01-02T03:04:05Z",
		"quantities": []any{map[string]any{"name": "available", "quantity": json.Number("7")}},
	})
	require.Len(t, out, 1)
	rec := out[0]

	assert.Equal(t, "5|42", rec["id"])
	assert.Equal(t, int64(5), rec["location_id"])
	assert.Equal(t, int64(42), rec["inventory_item_id"])
	assert.Equal(t, json.Number("7"), rec["available"])
	assert.Equal(t, "2024-01-02T03:04:05+00:00", rec["updated_at"])
	assert.Equal(t, "gid://shopify/InventoryLevel/9?inventory_item_id=42", rec["admin_graphql_api_id"])
	assert.NotContains(t, rec, "item")
}

func TestMetafield_OwnerFromParentMarker(t *testing.T) {
	out := transformOne(t, "metafield_product_variants", models.Record{
		"id":         "gid://shopify/Metafield/77",
		"__parentId": "gid://shopify/ProductVariant/123",
		"namespace":  "custom",
		"key":        "size",
		"created_at": "2024-03-01T10:00:00Z",
		"updated_at": "2024-03-02T10:00:00-02:00",
	})
	require.Len(t, out, 1)
	rec := out[0]

	assert.Equal(t, int64(77), rec["id"])
	assert.Equal(t, int64(123), rec["owner_id"])
	assert.Equal(t, "product_variant", rec["owner_resource"])
	assert.Equal(t, "gid://shopify/Metafield/77", rec["admin_graphql_api_id"])
	assert.Equal(t, "2024-03-02T10:00:00-02:00", rec["updated_at"])
}

func TestInventoryItem_PromotesCostAndDefaultsCodes(t *testing.T) {
	out := transformOne(t, "inventory_items", models.Record{
		"id":         "gid://shopify/InventoryItem/42",
		"unit_cost":  map[string]any{"cost": "12.50", "currency_code": "USD"},
		"updated_at": "2024-01-01T00:00:00Z",
	})
	require.Len(t, out, 1)
	rec := out[0]

	assert.Equal(t, int64(42), rec["id"])
	assert.Equal(t, 12.5, rec["cost"])
	assert.Equal(t, "USD", rec["currency_code"])
	assert.Equal(t, []any{}, rec["country_harmonized_system_codes"])
	assert.NotContains(t, rec, "unit_cost")
}

func TestInventoryItem_BadCostIsMalformed(t *testing.T) {
	_, err := Transforms().Lookup("inventory_items")(models.Record{
		"id":        "gid://shopify/InventoryItem/42",
		"unit_cost": map[string]any{"cost": "n/a"},
	})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeMalformedRecord))
}

func TestDiscountCodes_OneRecordPerCode(t *testing.T) {
	out := transformOne(t, "discount_codes", models.Record{
		"id": "gid://shopify/DiscountCodeNode/900",
		"code_discount": map[string]any{
			"created_at":    "2024-01-01T00:00:00Z",
			"updated_at":    "2024-01-05T00:00:00Z",
			"summary":       "10% off",
			"discount_type": "DiscountCodeBasic",
		},
		"codes": []any{
			map[string]any{"id": "gid://shopify/DiscountRedeemCode/1", "code": "TEN", "usage_count": json.Number("3")},
			map[string]any{"id": "gid://shopify/DiscountRedeemCode/2", "code": "TENNER", "usage_count": json.Number("0")},
		},
	})
	require.Len(t, out, 2)

	assert.Equal(t, int64(1), out[0]["id"])
	assert.Equal(t, "TEN", out[0]["code"])
	assert.Equal(t, int64(900), out[0]["price_rule_id"])
	assert.Equal(t, "2024-01-05T00:00:00+00:00", out[0]["updated_at"])
	assert.Equal(t, "10% off", out[0]["summary"])
	assert.Equal(t, int64(2), out[1]["id"])
	assert.NotContains(t, out[0], "code_discount")
}

func TestDiscountCodes_NoCodesNoRecords(t *testing.T) {
	out := transformOne(t, "discount_codes", models.Record{
		"id":    "gid://shopify/DiscountCodeNode/900",
		"codes": []any{},
	})
	assert.Empty(t, out)
}

func TestTransactionsGraphQL_ExpandsOrder(t *testing.T) {
	out := transformOne(t, "transactions_graphql", models.Record{
		"id":       "gid://shopify/Order/5000",
		"currency": "EUR",
		"transactions": []any{
			map[string]any{
				"id":                 "gid://shopify/OrderTransaction/1",
				"amount":             "20.00",
				"kind":               "SALE",
				"created_at":         "2024-02-01T00:00:00Z",
				"receipt":            `{"paid":true}`,
				"parent_transaction": nil,
				"total_unsettled_set": map[string]any{
					"shop_money": map[string]any{"amount": "0.0", "currency": "EUR"},
				},
			},
			map[string]any{
				"id":                 "gid://shopify/OrderTransaction/2",
				"amount":             "5",
				"kind":               "REFUND",
				"created_at":         "2024-02-03T00:00:00Z",
				"parent_transaction": map[string]any{"parent_id": "gid://shopify/OrderTransaction/1"},
			},
		},
	})
	require.Len(t, out, 2)

	first := out[0]
	assert.Equal(t, int64(1), first["id"])
	assert.Equal(t, int64(5000), first["order_id"])
	assert.Equal(t, "EUR", first["currency"])
	assert.Equal(t, 20.0, first["amount"])
	assert.Equal(t, map[string]any{"paid": true}, first["receipt"])
	assert.Equal(t, "2024-02-01T00:00:00+00:00", first["created_at"])
	shop := first["total_unsettled_set"].(map[string]any)["shop_money"].(map[string]any)
	assert.Equal(t, 0.0, shop["amount"])

	assert.Equal(t, int64(1), out[1]["parent_id"])
	assert.NotContains(t, out[1], "parent_transaction")
}

func TestFulfillmentOrders_NestedTimestampsAndIDs(t *testing.T) {
	out := transformOne(t, "fulfillment_orders", models.Record{
		"id":         "gid://shopify/FulfillmentOrder/3",
		"updated_at": "2024-04-01T00:00:00Z",
		"fulfill_at": nil,
		"delivery_method": map[string]any{
			"min_delivery_date_time": "2024-04-02T00:00:00Z",
			"max_delivery_date_time": nil,
		},
		"assigned_location": map[string]any{
			"name":     "Warehouse",
			"location": map[string]any{"location_id": "gid://shopify/Location/8"},
		},
		"order": map[string]any{"order_id": "gid://shopify/Order/5000"},
	})
	require.Len(t, out, 1)
	rec := out[0]

	assert.Equal(t, int64(3), rec["id"])
	assert.Nil(t, rec["fulfill_at"])
	assert.Equal(t, "2024-04-02T00:00:00+00:00", rec["delivery_method"].(map[string]any)["min_delivery_date_time"])
	assert.Equal(t, int64(8), rec["location_id"])
	assert.Equal(t, map[string]any{"name": "Warehouse"}, rec["assigned_location"])
	assert.Equal(t, int64(5000), rec["order_id"])
	assert.NotContains(t, rec, "order")
}

func TestCollections_FlattensProductCount(t *testing.T) {
	out := transformOne(t, "collections", models.Record{
		"id":             "gid://shopify/Collection/4",
		"products_count": map[string]any{"count": json.Number("12")},
		"published_at":   "2024-01-01T00:00:00Z",
	})
	require.Len(t, out, 1)
	assert.Equal(t, int64(4), out[0]["id"])
	assert.Equal(t, json.Number("12"), out[0]["products_count"])
	assert.Equal(t, "2024-01-01T00:00:00+00:00", out[0]["published_at"])
}

func TestRESTStreamsHaveNoHook(t *testing.T) {
	rec := models.Record{"id": json.Number("1"), "updated_at": "2024-01-01T00:00:00Z"}
	out := transformOne(t, "orders", rec)
	require.Len(t, out, 1)
	assert.Equal(t, rec, out[0])
}
