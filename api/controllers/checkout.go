package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/poppyflores/checkout-backend/api/middleware"
	"github.com/poppyflores/checkout-backend/api/responses"
	"github.com/poppyflores/checkout-backend/api/validators"
	"github.com/poppyflores/checkout-backend/internal/checkout"
	"github.com/poppyflores/checkout-backend/internal/preference"
	"github.com/poppyflores/checkout-backend/internal/pricing"
	pkgerrors "github.com/poppyflores/checkout-backend/pkg/errors"
	"github.com/poppyflores/checkout-backend/pkg/logger"
)

// Sessions resolves a storefront session to its orchestrator.
type Sessions interface {
	Get(sessionID string) (*checkout.Orchestrator, error)
}

func sessionOrchestrator(r *http.Request, sessions Sessions) (*checkout.Orchestrator, error) {
	if sessions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout sessions unavailable")
	}
	sessionID := middleware.SessionIDFromContext(r.Context())
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "missing session header")
	}
	orch, err := sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	orch.SetIdentity(middleware.UserEmailFromContext(r.Context()))
	return orch, nil
}

type couponValidateRequest struct {
	Codigo      string  `json:"codigo" validate:"max=40"`
	MontoCompra float64 `json:"monto_compra" validate:"omitempty,gte=0"`
}

type couponValidateResponse struct {
	Valido     bool   `json:"valido"`
	Error      string `json:"error,omitempty"`
	Descuento  string `json:"descuento"`
	MontoFinal string `json:"monto_final"`
}

// CouponValidate resolves a coupon code for the session's purchase amount.
func CouponValidate(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orch, err := sessionOrchestrator(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload couponValidateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result := orch.ApplyCoupon(r.Context(), payload.Codigo, decimal.NewFromFloat(payload.MontoCompra))

		responses.WriteSuccess(w, couponValidateResponse{
			Valido:     result.Valid,
			Error:      result.Error,
			Descuento:  pricing.Display(result.DiscountAmount),
			MontoFinal: pricing.Display(result.FinalAmount),
		})
	}
}

type submitRequest struct {
	Nombre    string `json:"nombre" validate:"required,max=120"`
	Email     string `json:"email" validate:"required,email"`
	Telefono  string `json:"telefono" validate:"required,max=32"`
	Direccion string `json:"direccion" validate:"required,max=240"`
	Ciudad    string `json:"ciudad" validate:"omitempty,max=120"`
	Provincia string `json:"provincia" validate:"omitempty,max=120"`
}

// CheckoutSubmit runs the submission flow and returns the redirect or widget
// instruction.
func CheckoutSubmit(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orch, err := sessionOrchestrator(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload submitRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		instr, err := orch.Submit(r.Context(), preference.Customer{
			Name:    payload.Nombre,
			Email:   payload.Email,
			Phone:   payload.Telefono,
			Address: payload.Direccion,
			City:    payload.Ciudad,
			State:   payload.Provincia,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, instr)
	}
}

type widgetPaymentRequest struct {
	Token           string `json:"token" validate:"required"`
	IssuerID        string `json:"issuer_id"`
	PaymentMethodID string `json:"payment_method_id" validate:"required"`
	Installments    int    `json:"installments" validate:"omitempty,gte=1,lte=24"`
	PayerEmail      string `json:"payer_email" validate:"required,email"`
}

// WidgetPayment forwards the payment widget's form data for capture.
func WidgetPayment(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orch, err := sessionOrchestrator(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload widgetPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome, err := orch.HandleWidgetSubmit(r.Context(), checkout.WidgetForm{
			Token:           payload.Token,
			IssuerID:        payload.IssuerID,
			PaymentMethodID: payload.PaymentMethodID,
			Installments:    payload.Installments,
			PayerEmail:      payload.PayerEmail,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, outcome)
	}
}

// WidgetReady records that the storefront finished mounting the widget.
func WidgetReady(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orch, err := sessionOrchestrator(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orch.HandleWidgetReady(r.Context())
		responses.WriteSuccess(w, orch.View())
	}
}

type widgetErrorRequest struct {
	Message string `json:"message" validate:"required,max=500"`
}

// WidgetError records a widget-side failure reported by the storefront.
func WidgetError(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orch, err := sessionOrchestrator(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload widgetErrorRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orch.HandleWidgetError(r.Context(), payload.Message)
		responses.WriteSuccess(w, orch.View())
	}
}

// WidgetClose dismisses the payment widget, discarding whatever was in
// flight, and returns the session snapshot.
func WidgetClose(sessions Sessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orch, err := sessionOrchestrator(r, sessions)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orch.CloseWidget(r.Context())
		responses.WriteSuccess(w, orch.View())
	}
}
