// Package catalog declares the Jaffle Shop REST API source: one client and
// the orders, customers and products resources.
package catalog

import (
	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/models"
	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/utils"
)

const (
	SourceName = "jaffle_shop"
	BaseURL    = "https://jaffle-shop.scalevector.ai/api/v1"

	// OrdersInitialValue is the orders cursor on a first run.
	OrdersInitialValue = "2017-08-01T00:00:00"
	// LargeOrderThreshold is the order_total an order must exceed to be kept.
	LargeOrderThreshold = 500

	pageSize = 100
)

// KeepLargeOrders keeps only orders with an order_total above 500. A missing
// or non-numeric total counts as 0, and a string is never numeric, so "900"
// is dropped.
func KeepLargeOrders(record models.Record) bool {
	v := record["order_total"]
	if !utils.IsNumeric(v) {
		return false
	}
	total, err := utils.ConvertToFloat(v)
	if err != nil {
		total = 0
	}
	return total > LargeOrderThreshold
}

func pageParams() map[string]any {
	return map[string]any{
		"page":      1,
		"page_size": pageSize,
	}
}

// JaffleShopConfig builds the declarative source description. It has no
// side effects and returns an equal value on every call.
func JaffleShopConfig() models.RESTAPIConfig {
	orderParams := pageParams()
	orderParams["from"] = models.StartValueTemplate

	return models.RESTAPIConfig{
		Client: models.ClientConfig{
			BaseURL: BaseURL,
			Paginator: models.PaginatorConfig{
				Type: models.HeaderLink,
			},
		},
		Resources: []models.ResourceConfig{
			{
				Name:         "orders",
				Parallelized: true,
				ProcessingSteps: []models.ProcessingStep{
					{Name: "keep_large_orders", Filter: KeepLargeOrders},
				},
				Endpoint: models.EndpointConfig{
					Path:   "orders",
					Params: orderParams,
					Incremental: &models.IncrementalConfig{
						CursorPath:   "ordered_at",
						InitialValue: OrdersInitialValue,
					},
				},
			},
			{
				Name:             "customers",
				Parallelized:     true,
				PrimaryKey:       []string{"id"},
				WriteDisposition: models.Merge,
				Endpoint: models.EndpointConfig{
					Path:   "customers",
					Params: pageParams(),
				},
			},
			{
				Name:             "products",
				Parallelized:     true,
				PrimaryKey:       []string{"sku"},
				WriteDisposition: models.Merge,
				Endpoint: models.EndpointConfig{
					Path:   "products",
					Params: pageParams(),
				},
			},
		},
	}
}

// JaffleShopSource wraps JaffleShopConfig as a named source.
func JaffleShopSource() *models.Source {
	return &models.Source{Name: SourceName, Config: JaffleShopConfig()}
}
