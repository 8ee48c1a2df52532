package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/poppyflores/checkout-backend/api/responses"
	"github.com/poppyflores/checkout-backend/api/validators"
	"github.com/poppyflores/checkout-backend/pkg/backend"
	pkgerrors "github.com/poppyflores/checkout-backend/pkg/errors"
	"github.com/poppyflores/checkout-backend/pkg/logger"
)

// ProductLister proxies the commerce backend's catalogue.
type ProductLister interface {
	ListProducts(ctx context.Context, query backend.ProductQuery) ([]backend.Product, error)
}

// CatalogProducts is a thin proxy over the backend catalogue listing. No
// decision logic lives here; the storefront renders whatever comes back.
func CatalogProducts(lister ProductLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if lister == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalogue unavailable"))
			return
		}

		page, err := validators.ParseQueryInt(r, "page", 1, 1, 10000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pageSize, err := validators.ParseQueryInt(r, "page_size", 24, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		products, err := lister.ListProducts(r.Context(), backend.ProductQuery{
			Categoria: strings.TrimSpace(r.URL.Query().Get("categoria")),
			Page:      page,
			PageSize:  pageSize,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"products": products,
			"page":     page,
		})
	}
}
