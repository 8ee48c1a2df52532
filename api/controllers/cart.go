package controllers

import (
	"context"
	"net/http"

	"github.com/poppyflores/checkout-backend/api/middleware"
	"github.com/poppyflores/checkout-backend/api/responses"
	"github.com/poppyflores/checkout-backend/api/validators"
	"github.com/poppyflores/checkout-backend/internal/cart"
	"github.com/poppyflores/checkout-backend/internal/pricing"
	pkgerrors "github.com/poppyflores/checkout-backend/pkg/errors"
	"github.com/poppyflores/checkout-backend/pkg/logger"
)

// CartWriter persists session cart snapshots.
type CartWriter interface {
	Put(ctx context.Context, sessionID string, snapshot cart.Snapshot) error
}

type cartItemRequest struct {
	ProductID string  `json:"product_id" validate:"required,max=64"`
	Name      string  `json:"name" validate:"required,max=200"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
	Quantity  int     `json:"quantity" validate:"gte=1,lte=99"`
	ImageURL  string  `json:"image_url" validate:"omitempty,url"`
}

type cartPutRequest struct {
	Items []cartItemRequest `json:"items" validate:"required,max=100,dive"`
}

type cartPutResponse struct {
	Items    int    `json:"items"`
	Subtotal string `json:"subtotal"`
}

// CartPut replaces the session's cart snapshot and feeds the new subtotal
// into the checkout orchestrator.
func CartPut(store CartWriter, sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart store unavailable"))
			return
		}
		sessionID := middleware.SessionIDFromContext(r.Context())
		if sessionID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "missing session header"))
			return
		}

		var payload cartPutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		snapshot := cart.Snapshot{Items: make([]cart.Item, 0, len(payload.Items))}
		for _, item := range payload.Items {
			snapshot.Items = append(snapshot.Items, cart.Item{
				ProductID: item.ProductID,
				Name:      item.Name,
				UnitPrice: item.UnitPrice,
				Quantity:  item.Quantity,
				ImageURL:  item.ImageURL,
			})
		}

		if err := store.Put(r.Context(), sessionID, snapshot); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		subtotal := snapshot.Subtotal()
		if orch, err := sessionOrchestrator(r, sessions); err == nil {
			orch.SetCartTotal(subtotal)
		}

		responses.WriteSuccess(w, cartPutResponse{
			Items:    len(snapshot.Items),
			Subtotal: pricing.Display(subtotal),
		})
	}
}
