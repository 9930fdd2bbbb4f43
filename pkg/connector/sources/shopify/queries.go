package shopify

import (
	"time"

	"github.com/ajitpratap0/shopsync/pkg/extract"
	"github.com/ajitpratap0/shopsync/pkg/extract/bulk"
)

var metafieldFields = []string{
	"namespace",
	"value",
	"key",
	"description",
	"createdAt",
	"updatedAt",
	"type",
}

func metafieldsNode() bulk.Node {
	return bulk.Node{Field: "metafields", Connection: true, Fields: metafieldFields}
}

// rootArgs filters a root connection on updated_at within the window.
func rootArgs(start, end time.Time, sortKey string) string {
	return bulk.ConnectionArgs(bulk.SearchFilter("updated_at", bulk.Window{Start: start, End: end}), sortKey)
}

// metafieldQuery selects the metafields of every owner in root, reached
// through path (e.g. products -> variants).
func metafieldQuery(root string, sortKey string, filtered bool, path ...string) func(start, end time.Time) string {
	return func(start, end time.Time) string {
		leaf := metafieldsNode()
		for i := len(path) - 1; i >= 0; i-- {
			leaf = bulk.Node{Field: path[i], Connection: true, Children: []bulk.Node{leaf}}
		}
		node := bulk.Node{Field: root, Connection: true, Children: []bulk.Node{leaf}}
		if filtered {
			node.Args = rootArgs(start, end, sortKey)
		}
		return bulk.Query(node)
	}
}

func metafieldSpec(root, sortKey string, filtered bool, path ...string) *extract.BulkSpec {
	return &extract.BulkSpec{
		Query:      metafieldQuery(root, sortKey, filtered, path...),
		RecordType: "Metafield",
	}
}

func collectionsSpec() *extract.BulkSpec {
	return &extract.BulkSpec{
		RecordType: "Collection",
		Query: func(start, end time.Time) string {
			return bulk.Query(bulk.Node{
				Field:      "collections",
				Args:       rootArgs(start, end, "UPDATED_AT"),
				Connection: true,
				Fields: []string{
					"handle",
					"title",
					"updatedAt",
					"body_html: descriptionHtml",
					"published_at: publishedOnCurrentPublication",
					"sortOrder",
					"templateSuffix",
					"products_count: productsCount { count }",
				},
			})
		},
	}
}

func discountCodesSpec() *extract.BulkSpec {
	return &extract.BulkSpec{
		RecordType: "DiscountCodeNode",
		Components: map[string]string{"DiscountRedeemCode": "codes"},
		Query: func(start, end time.Time) string {
			return bulk.Query(bulk.Node{
				Field:      "codeDiscountNodes",
				Args:       rootArgs(start, end, "UPDATED_AT"),
				Connection: true,
				Children: []bulk.Node{{
					Field:  "codeDiscount",
					Fields: []string{"... on DiscountCodeBasic { createdAt updatedAt summary discountType: __typename }"},
				}, {
					Field:      "codes",
					Connection: true,
					Fields:     []string{"code", "usage_count: asyncUsageCount"},
				}},
			})
		},
	}
}

func inventoryLevelsSpec() *extract.BulkSpec {
	return &extract.BulkSpec{
		RecordType: "InventoryLevel",
		Query: func(start, end time.Time) string {
			return bulk.Query(bulk.Node{
				Field:      "locations",
				Args:       "includeLegacy: true, includeInactive: true",
				Connection: true,
				Children: []bulk.Node{{
					Field:      "inventoryLevels",
					Args:       bulk.ConnectionArgs(bulk.SearchFilter("updated_at", bulk.Window{Start: start, End: end}), ""),
					Connection: true,
					Fields: []string{
						"canDeactivate",
						"createdAt",
						"updatedAt",
						"item { inventory_item_id: id }",
						`quantities(names: ["available"]) { name quantity }`,
					},
				}},
			})
		},
	}
}

func inventoryItemsSpec() *extract.BulkSpec {
	return &extract.BulkSpec{
		RecordType: "InventoryItem",
		Components: map[string]string{"CountryHarmonizedSystemCode": "country_harmonized_system_codes"},
		Query: func(start, end time.Time) string {
			return bulk.Query(bulk.Node{
				Field:      "inventoryItems",
				Args:       rootArgs(start, end, ""),
				Connection: true,
				Fields: []string{
					"unitCost { cost: amount currencyCode }",
					"countryCodeOfOrigin",
					"harmonizedSystemCode",
					"provinceCodeOfOrigin",
					"updatedAt",
					"createdAt",
					"sku",
					"tracked",
					"requiresShipping",
				},
				Children: []bulk.Node{{
					Field:      "countryHarmonizedSystemCodes",
					Connection: true,
					WithoutID:  true,
					Fields:     []string{"harmonizedSystemCode", "countryCode"},
				}},
			})
		},
	}
}

func fulfillmentOrdersSpec() *extract.BulkSpec {
	return &extract.BulkSpec{
		RecordType: "FulfillmentOrder",
		Query: func(start, end time.Time) string {
			args := rootArgs(start, end, "")
			if args != "" {
				args = "includeClosed: true, " + args
			}
			return bulk.Query(bulk.Node{
				Field:      "fulfillmentOrders",
				Args:       args,
				Connection: true,
				Fields: []string{
					"assignedLocation { address1 address2 city countryCode name phone province zip location { location_id: id } }",
					"destination { id address1 address2 city company countryCode email firstName lastName phone province zip }",
					"deliveryMethod { id methodType minDeliveryDateTime maxDeliveryDateTime }",
					"fulfillAt",
					"fulfillBy",
					"internationalDuties { incoterm }",
					"fulfillmentHolds { reason reasonNotes }",
					"createdAt",
					"updatedAt",
					"requestStatus",
					"status",
					"supportedActions { action externalUrl }",
					"order { order_id: id }",
				},
			})
		},
	}
}

func transactionsSpec() *extract.BulkSpec {
	return &extract.BulkSpec{
		RecordType: "Order",
		Query: func(start, end time.Time) string {
			return bulk.Query(bulk.Node{
				Field:      "orders",
				Args:       rootArgs(start, end, "UPDATED_AT"),
				Connection: true,
				Fields: []string{
					"currency: currencyCode",
					"transactions {" +
						" id errorCode parentTransaction { parent_id: id } test kind amount receipt: receiptJson gateway" +
						" authorization: authorizationCode createdAt status processedAt" +
						" totalUnsettledSet { presentmentMoney { amount currency: currencyCode } shopMoney { amount currency: currencyCode } }" +
						" paymentId" +
						" paymentDetails { ... on CardPaymentDetails { avsResultCode creditCardBin: bin cvvResultCode creditCardNumber: number creditCardCompany: company } }" +
						" }",
				},
			})
		},
	}
}
