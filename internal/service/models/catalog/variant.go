package catalog

import (
	"github.com/corray333/backend-labs/checkout/internal/service/models/currency"
	"github.com/google/uuid"
)

// Variant is the catalog's current price and availability for a sellable variant.
type Variant struct {
	VariantID      uuid.UUID
	ProductID      uuid.UUID
	ProductTitle   string
	VariantTitle   string
	SKU            string
	UnitPriceCents int64
	Currency       currency.Currency
	TaxCode        string
	ProductActive  bool
}

// DisplayTitle is the line title shown to the buyer and stored on the order item.
func (v Variant) DisplayTitle() string {
	if v.VariantTitle == "" {
		return v.ProductTitle
	}

	return v.ProductTitle + " - " + v.VariantTitle
}
