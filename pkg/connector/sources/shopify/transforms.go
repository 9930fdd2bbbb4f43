package shopify

import (
	"strings"

	"github.com/goccy/go-json"

	"github.com/ajitpratap0/shopsync/pkg/extract/bulk"
	"github.com/ajitpratap0/shopsync/pkg/models"
	"github.com/ajitpratap0/shopsync/pkg/transform"
)

// Transforms returns the entity hooks of every stream that needs one. REST
// streams are emitted as the API returns them.
func Transforms() *transform.Registry {
	r := transform.NewRegistry()

	for _, name := range []string{
		"metafield_customers",
		"metafield_orders",
		"metafield_draft_orders",
		"metafield_products",
		"metafield_product_images",
		"metafield_product_variants",
		"metafield_collections",
		"metafield_locations",
	} {
		r.Register(name, metafield)
	}

	r.Register("collections", transform.Chain(
		transform.IDs("id"),
		transform.Timestamps("published_at", "updated_at"),
		flattenCount("products_count"),
	))
	r.Register("discount_codes", discountCodes)
	r.Register("inventory_levels", inventoryLevel)
	r.Register("inventory_items", transform.Chain(
		transform.IDs("id"),
		transform.Promote("unit_cost", map[string]string{"cost": "cost", "currency_code": "currency_code"}),
		transform.Float("cost"),
		transform.DefaultList("country_harmonized_system_codes"),
		transform.Timestamps("created_at", "updated_at"),
	))
	r.Register("fulfillment_orders", transform.Chain(
		transform.IDs("id"),
		transform.Timestamps("fulfill_at", "fulfill_by", "created_at", "updated_at"),
		transform.NestedTimestamps("delivery_method", "min_delivery_date_time", "max_delivery_date_time"),
		nestedID("location_id", "assigned_location", "location"),
		nestedID("order_id", "order"),
	))
	r.Register("transactions_graphql", orderTransactions)
	return r
}

// metafield resolves the owner of a bulk metafield from its parent marker.
var metafield = transform.Chain(
	transform.Each(func(r models.Record) error {
		parent, _ := r[bulk.ParentIDKey].(string)
		if parent == "" {
			return nil
		}
		owner, err := transform.ResolveID(parent)
		if err != nil {
			return transform.Malformed(bulk.ParentIDKey, err)
		}
		r["owner_id"] = owner
		r["owner_resource"] = transform.SnakeCase(transform.GlobalIDType(parent))
		r["admin_graphql_api_id"] = r["id"]
		return nil
	}),
	transform.IDs("id"),
	transform.Timestamps("created_at", "updated_at"),
)

// inventoryLevel keys a level by "<location_id>|<inventory_item_id>".
var inventoryLevel = transform.Chain(
	transform.Each(func(r models.Record) error {
		r["admin_graphql_api_id"] = r["id"]
		if item, ok := r["item"].(map[string]any); ok {
			r["inventory_item_id"] = item["inventory_item_id"]
		}
		delete(r, "item")
		r["location_id"] = r[bulk.ParentIDKey]
		flattenQuantities(r)
		return nil
	}),
	transform.IDs("inventory_item_id", "location_id"),
	transform.CompositeKey("id", "location_id", "inventory_item_id"),
	transform.Timestamps("created_at", "updated_at"),
)

// flattenQuantities copies the "available" quantity to the top level.
func flattenQuantities(r models.Record) {
	list, _ := r["quantities"].([]any)
	for _, q := range list {
		m, ok := q.(map[string]any)
		if !ok {
			continue
		}
		if name, _ := m["name"].(string); name != "" {
			r[name] = m["quantity"]
		}
	}
}

// discountCodes fans a discount node out to one record per redeem code.
func discountCodes(r models.Record) ([]models.Record, error) {
	ruleID, err := transform.ResolveID(r["id"])
	if err != nil {
		return nil, transform.Malformed("id", err)
	}
	discount, _ := r["code_discount"].(map[string]any)
	codes, _ := r["codes"].([]any)

	out := make([]models.Record, 0, len(codes))
	for _, c := range codes {
		code, ok := c.(map[string]any)
		if !ok {
			continue
		}
		rec := models.Record{
			"price_rule_id":        ruleID,
			"code":                 code["code"],
			"usage_count":          code["usage_count"],
			"admin_graphql_api_id": code["id"],
		}
		for _, f := range []string{"created_at", "updated_at", "summary", "discount_type"} {
			if v, ok := discount[f]; ok {
				rec[f] = v
			}
		}
		rec["id"] = code["id"]
		out = append(out, rec)
	}

	step := transform.Chain(
		transform.IDs("id"),
		transform.Timestamps("created_at", "updated_at"),
	)
	var normalized []models.Record
	for _, rec := range out {
		recs, err := step(rec)
		if err != nil {
			return nil, err
		}
		normalized = append(normalized, recs...)
	}
	return normalized, nil
}

// orderTransactions expands an order into its transactions.
func orderTransactions(r models.Record) ([]models.Record, error) {
	orderID, err := transform.ResolveID(r["id"])
	if err != nil {
		return nil, transform.Malformed("id", err)
	}
	list, _ := r["transactions"].([]any)

	out := make([]models.Record, 0, len(list))
	for _, t := range list {
		txn, ok := t.(map[string]any)
		if !ok {
			continue
		}
		rec := models.Record(txn)
		rec["order_id"] = orderID
		rec["currency"] = r["currency"]
		recs, err := prepTransaction(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

var prepTransaction = transform.Chain(
	transform.Each(func(r models.Record) error {
		r["admin_graphql_api_id"] = r["id"]
		if parent, ok := r["parent_transaction"].(map[string]any); ok {
			r["parent_id"] = parent["parent_id"]
		}
		delete(r, "parent_transaction")
		if details, ok := r["payment_details"].(map[string]any); ok && len(details) == 0 {
			r["payment_details"] = nil
		}
		return decodeReceipt(r)
	}),
	transform.IDs("id", "parent_id"),
	transform.Float("amount"),
	unsettledAmounts,
	transform.Timestamps("created_at", "processed_at"),
)

// decodeReceipt parses the receipt JSON string into an object.
func decodeReceipt(r models.Record) error {
	s, ok := r["receipt"].(string)
	if !ok || s == "" {
		return nil
	}
	var receipt map[string]any
	if err := json.Unmarshal([]byte(s), &receipt); err != nil {
		return transform.Malformed("receipt", err)
	}
	r["receipt"] = receipt
	return nil
}

// unsettledAmounts converts the money amounts of total_unsettled_set.
var unsettledAmounts = transform.Each(func(r models.Record) error {
	set, ok := r["total_unsettled_set"].(map[string]any)
	if !ok {
		return nil
	}
	for _, key := range []string{"presentment_money", "shop_money"} {
		money, ok := set[key].(map[string]any)
		if !ok {
			continue
		}
		if _, err := transform.Float("amount")(money); err != nil {
			return err
		}
	}
	return nil
})

// flattenCount replaces {"count": n} with n.
func flattenCount(field string) transform.Func {
	return transform.Each(func(r models.Record) error {
		if m, ok := r[field].(map[string]any); ok {
			r[field] = m["count"]
		}
		return nil
	})
}

// nestedID moves the id found at path.field to the top level as field.
// Objects left empty along the path are removed.
func nestedID(field string, path ...string) transform.Func {
	return transform.Each(func(r models.Record) error {
		chain := []map[string]any{r}
		for _, p := range path {
			m, ok := chain[len(chain)-1][p].(map[string]any)
			if !ok {
				return nil
			}
			chain = append(chain, m)
		}
		leaf := chain[len(chain)-1]
		v, ok := leaf[field]
		if !ok {
			return nil
		}
		id, err := transform.ResolveID(v)
		if err != nil {
			return transform.Malformed(strings.Join(path, ".")+"."+field, err)
		}
		delete(leaf, field)
		for i := len(chain) - 1; i > 0 && len(chain[i]) == 0; i-- {
			delete(chain[i-1], path[i-1])
		}
		r[field] = id
		return nil
	})
}
