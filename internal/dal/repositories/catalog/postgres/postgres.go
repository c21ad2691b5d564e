package postgresrepo

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/corray333/backend-labs/checkout/internal/dal/postgres"
	"github.com/corray333/backend-labs/checkout/internal/service/apperr"
	"github.com/corray333/backend-labs/checkout/internal/service/models/catalog"
	"github.com/corray333/backend-labs/checkout/internal/service/models/currency"
	"github.com/google/uuid"
)

const productStatusActive = "active"

// VariantDal is a product_variants row joined with its product.
type VariantDal struct {
	VariantId      uuid.UUID `db:"variant_id"`
	ProductId      uuid.UUID `db:"product_id"`
	ProductTitle   string    `db:"product_title"`
	VariantTitle   string    `db:"variant_title"`
	Sku            string    `db:"sku"`
	UnitPriceCents int64     `db:"price_cents"`
	Currency       string    `db:"currency"`
	TaxCode        *string   `db:"tax_code"`
	ProductStatus  string    `db:"product_status"`
}

// ToModel converts VariantDal to service layer Variant model.
func (v *VariantDal) ToModel() (catalog.Variant, error) {
	cur, err := currency.ParseCurrency(v.Currency)
	if err != nil {
		return catalog.Variant{}, fmt.Errorf("variant %s: %w", v.VariantId, err)
	}

	var taxCode string
	if v.TaxCode != nil {
		taxCode = *v.TaxCode
	}

	return catalog.Variant{
		VariantID:      v.VariantId,
		ProductID:      v.ProductId,
		ProductTitle:   v.ProductTitle,
		VariantTitle:   v.VariantTitle,
		SKU:            v.Sku,
		UnitPriceCents: v.UnitPriceCents,
		Currency:       cur,
		TaxCode:        taxCode,
		ProductActive:  v.ProductStatus == productStatusActive,
	}, nil
}

// PostgresCatalogRepository reads variant prices from the catalog tables.
type PostgresCatalogRepository struct {
	conn postgres.GenericConn
	sb   sq.StatementBuilderType
}

// NewPostgresCatalogRepository creates a new Postgres catalog repository.
func NewPostgresCatalogRepository(conn postgres.GenericConn) *PostgresCatalogRepository {
	return &PostgresCatalogRepository{
		conn: conn,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// LookupVariants returns the variants among ids that exist. Unknown ids are skipped.
func (r *PostgresCatalogRepository) LookupVariants(ctx context.Context, ids []uuid.UUID) ([]catalog.Variant, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	sql, args, err := r.sb.
		Select(
			"v.id",
			"p.id",
			"p.title",
			"v.title",
			"v.sku",
			"v.price_cents",
			"v.currency",
			"p.tax_code",
			"p.status",
		).
		From("product_variants v").
		Join("products p ON p.id = v.product_id").
		Where(sq.Eq{"v.id": ids}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, apperr.Storage("failed to look up variants", err)
	}
	defer rows.Close()

	var result []catalog.Variant
	for rows.Next() {
		var dal VariantDal
		err := rows.Scan(
			&dal.VariantId,
			&dal.ProductId,
			&dal.ProductTitle,
			&dal.VariantTitle,
			&dal.Sku,
			&dal.UnitPriceCents,
			&dal.Currency,
			&dal.TaxCode,
			&dal.ProductStatus,
		)
		if err != nil {
			return nil, apperr.Storage("failed to scan variant", err)
		}

		v, err := dal.ToModel()
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}

	if err = rows.Err(); err != nil {
		return nil, apperr.Storage("rows iteration error", err)
	}

	return result, nil
}
