package shopify

import (
	"net/url"

	"github.com/ajitpratap0/shopsync/pkg/extract"
)

// rest declares a REST collection read incrementally on updated_at.
func rest(name string) extract.Descriptor {
	return extract.Descriptor{
		Name:        name,
		Mode:        extract.ModeREST,
		DataField:   name,
		PrimaryKey:  []string{"id"},
		CursorField: "updated_at",
		OrderField:  "updated_at",
		FilterField: "updated_at_min",
	}
}

// sinceID declares a REST collection that only supports since_id filtering.
func sinceID(name string) extract.Descriptor {
	d := rest(name)
	d.CursorField = "id"
	d.OrderField = "id"
	d.FilterField = "since_id"
	return d
}

// fullRefresh declares a REST collection without filtering.
func fullRefresh(name string) extract.Descriptor {
	return extract.Descriptor{
		Name:        name,
		Mode:        extract.ModeREST,
		DataField:   name,
		PrimaryKey:  []string{"id"},
		FullRefresh: true,
	}
}

func withDeleted(d extract.Descriptor, entity string) extract.Descriptor {
	d.DeletedEntity = entity
	return d
}

func withStatusAny(d extract.Descriptor) extract.Descriptor {
	d.FirstRequestParams = url.Values{"status": {"any"}}
	return d
}

// nested declares a stream projected from an array field of parent.
func nested(name string, parent *extract.Descriptor, field, cursor string, mutations map[string]string) extract.Descriptor {
	return extract.Descriptor{
		Name:        name,
		Mode:        extract.ModeNested,
		DataField:   field,
		NestedField: field,
		PrimaryKey:  []string{"id"},
		CursorField: cursor,
		Parent:      parent,
		Mutations:   mutations,
	}
}

// perParent declares a REST collection requested once per parent record.
func perParent(name string, parent *extract.Descriptor, dataField, cursor string) extract.Descriptor {
	return extract.Descriptor{
		Name:         name,
		Mode:         extract.ModeREST,
		DataField:    dataField,
		PrimaryKey:   []string{"id"},
		CursorField:  cursor,
		Parent:       parent,
		SliceKey:     "id",
		PathTemplate: parent.DataField + "/{id}/" + dataField + ".json",
	}
}

func metafieldsOf(parent *extract.Descriptor) extract.Descriptor {
	return perParent("metafield_"+parent.Name, parent, "metafields", "updated_at")
}

// bulkStream declares a bulk GraphQL stream filtered on updated_at.
func bulkStream(name string, spec *extract.BulkSpec) extract.Descriptor {
	return extract.Descriptor{
		Name:        name,
		Mode:        extract.ModeBulk,
		PrimaryKey:  []string{"id"},
		CursorField: "updated_at",
		FilterField: "updated_at",
		Bulk:        spec,
	}
}

// Catalog returns the descriptors of every stream in read order. Parents
// come before the streams derived from them.
func Catalog() []extract.Descriptor {
	articles := withDeleted(sinceID("articles"), "Article")
	blogs := withDeleted(sinceID("blogs"), "Blog")
	customers := rest("customers")
	orders := withDeleted(withStatusAny(rest("orders")), "Order")
	products := withDeleted(rest("products"), "Product")
	pages := withDeleted(rest("pages"), "Page")
	smartCollections := rest("smart_collections")

	disputes := sinceID("disputes")
	disputes.Path = "shopify_payments/disputes.json"

	balance := sinceID("balance_transactions")
	balance.DataField = "transactions"
	balance.Path = "shopify_payments/balance/transactions.json"

	checkouts := withStatusAny(rest("abandoned_checkouts"))
	checkouts.DataField = "checkouts"

	tender := rest("tender_transactions")
	tender.CursorField = "processed_at"
	tender.OrderField = "processed_at"
	tender.FilterField = "processed_at_min"

	metafieldShops := rest("metafield_shops")
	metafieldShops.DataField = "metafields"

	metafieldLocations := bulkStream("metafield_locations", metafieldSpec("locations", "", false))
	metafieldLocations.FilterField = ""

	transactions := bulkStream("transactions_graphql", transactionsSpec())
	transactions.CursorField = "created_at"

	return []extract.Descriptor{
		articles,
		metafieldsOf(&articles),
		blogs,
		metafieldsOf(&blogs),
		customers,
		bulkStream("metafield_customers", metafieldSpec("customers", "UPDATED_AT", true)),
		nested("customer_address", &customers, "addresses", "id", map[string]string{"customer_id": "id"}),
		sinceID("customer_saved_searches"),
		orders,
		bulkStream("metafield_orders", metafieldSpec("orders", "UPDATED_AT", true)),
		nested("order_refunds", &orders, "refunds", "created_at", nil),
		nested("fulfillments", &orders, "fulfillments", "updated_at", nil),
		perParent("order_risks", &orders, "risks", "id"),
		perParent("transactions", &orders, "transactions", "created_at"),
		transactions,
		disputes,
		rest("draft_orders"),
		bulkStream("metafield_draft_orders", metafieldSpec("draftOrders", "UPDATED_AT", true)),
		products,
		bulkStream("metafield_products", metafieldSpec("products", "UPDATED_AT", true)),
		nested("product_images", &products, "images", "updated_at", map[string]string{"product_id": "id"}),
		bulkStream("metafield_product_images", metafieldSpec("products", "UPDATED_AT", true, "images")),
		nested("product_variants", &products, "variants", "updated_at", map[string]string{"product_id": "id"}),
		bulkStream("metafield_product_variants", metafieldSpec("products", "UPDATED_AT", true, "variants")),
		checkouts,
		withDeleted(rest("custom_collections"), "Collection"),
		smartCollections,
		metafieldsOf(&smartCollections),
		sinceID("collects"),
		bulkStream("collections", collectionsSpec()),
		bulkStream("metafield_collections", metafieldSpec("collections", "UPDATED_AT", true)),
		balance,
		tender,
		pages,
		metafieldsOf(&pages),
		withDeleted(rest("price_rules"), "PriceRule"),
		bulkStream("discount_codes", discountCodesSpec()),
		fullRefresh("locations"),
		metafieldLocations,
		bulkStream("inventory_levels", inventoryLevelsSpec()),
		bulkStream("inventory_items", inventoryItemsSpec()),
		bulkStream("fulfillment_orders", fulfillmentOrdersSpec()),
		fullRefresh("shop"),
		metafieldShops,
		fullRefresh("countries"),
	}
}

// Lookup returns the descriptor of stream.
func Lookup(stream string) (extract.Descriptor, bool) {
	for _, d := range Catalog() {
		if d.Name == stream {
			return d, true
		}
	}
	return extract.Descriptor{}, false
}
