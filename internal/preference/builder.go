package preference

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/poppyflores/checkout-backend/internal/cart"
	"github.com/poppyflores/checkout-backend/pkg/backend"
	"github.com/poppyflores/checkout-backend/pkg/config"
	pkgerrors "github.com/poppyflores/checkout-backend/pkg/errors"
	"github.com/poppyflores/checkout-backend/pkg/mercadopago"
)

// Mode selects how the customer pays.
type Mode string

const (
	// ModeHosted redirects the customer to Checkout Pro.
	ModeHosted Mode = config.PaymentModeHosted
	// ModeWidget renders the Payment Brick in place.
	ModeWidget Mode = config.PaymentModeWidget
)

var (
	errHostedClientRequired = errors.New("hosted mode requires the commerce backend client")
	errWidgetClientRequired = errors.New("widget mode requires the mercado pago client")

	// ErrMissingInitPoint marks a hosted preference that came back without a
	// redirect URL. There is nowhere to send the customer, so checkout aborts.
	ErrMissingInitPoint = pkgerrors.New(pkgerrors.CodeDependency, "hosted preference has no redirect url")
)

// Customer is the delivery form data echoed into the preference.
type Customer struct {
	Name    string
	Email   string
	Phone   string
	Address string
	City    string
	State   string
}

// BuildParams is one preference creation request.
type BuildParams struct {
	SessionID  string
	Items      []cart.Item
	Customer   Customer
	CouponCode string
	Total      decimal.Decimal
}

// Result is the mode-specific handle the storefront needs to continue:
// a redirect URL in hosted mode, a preference id plus amount in widget mode.
type Result struct {
	Mode         Mode
	RedirectURL  string
	PreferenceID string
	Amount       decimal.Decimal
	Locale       string
}

type hostedCreator interface {
	CreateHostedPreference(ctx context.Context, params backend.HostedPreferenceParams) (*backend.HostedPreference, error)
}

type widgetCreator interface {
	CreatePreference(ctx context.Context, params mercadopago.PreferenceParams) (*mercadopago.Preference, error)
	Locale() string
}

// Builder creates payment preferences in the configured mode. Hosted mode
// delegates to the commerce backend, which owns the Mercado Pago credentials
// for Checkout Pro; widget mode talks to Mercado Pago directly.
type Builder struct {
	mode    Mode
	hosted  hostedCreator
	widget  widgetCreator
	success string
	failure string
	pending string
}

func NewBuilder(cfg config.PaymentsConfig, hosted hostedCreator, widget widgetCreator) (*Builder, error) {
	mode := Mode(cfg.Mode)
	switch mode {
	case ModeHosted:
		if hosted == nil {
			return nil, errHostedClientRequired
		}
	case ModeWidget:
		if widget == nil {
			return nil, errWidgetClientRequired
		}
	default:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "unknown payment mode "+cfg.Mode)
	}

	return &Builder{
		mode:    mode,
		hosted:  hosted,
		widget:  widget,
		success: cfg.SuccessURL,
		failure: cfg.FailureURL,
		pending: cfg.PendingURL,
	}, nil
}

// Mode returns the configured payment mode.
func (b *Builder) Mode() Mode {
	return b.mode
}

// Build creates the preference for the given checkout.
func (b *Builder) Build(ctx context.Context, params BuildParams) (*Result, error) {
	if b.mode == ModeHosted {
		return b.buildHosted(ctx, params)
	}
	return b.buildWidget(ctx, params)
}

func (b *Builder) buildHosted(ctx context.Context, params BuildParams) (*Result, error) {
	items := make([]backend.PreferenceItem, 0, len(params.Items))
	for _, item := range params.Items {
		items = append(items, backend.PreferenceItem{
			ID:         item.ProductID,
			Titulo:     item.Name,
			PrecioUnit: item.UnitPrice,
			Cantidad:   item.Quantity,
			ImagenURL:  item.ImageURL,
		})
	}

	pref, err := b.hosted.CreateHostedPreference(ctx, backend.HostedPreferenceParams{
		Items: items,
		Payer: backend.PreferencePayer{
			Nombre:    params.Customer.Name,
			Email:     params.Customer.Email,
			Telefono:  params.Customer.Phone,
			Direccion: params.Customer.Address,
			Ciudad:    params.Customer.City,
			Provincia: params.Customer.State,
		},
		CuponCode:  params.CouponCode,
		SuccessURL: b.success,
		FailureURL: b.failure,
		PendingURL: b.pending,
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(pref.InitPoint) == "" {
		return nil, ErrMissingInitPoint
	}

	return &Result{
		Mode:         ModeHosted,
		RedirectURL:  pref.InitPoint,
		PreferenceID: pref.PreferenceID,
	}, nil
}

func (b *Builder) buildWidget(ctx context.Context, params BuildParams) (*Result, error) {
	items := make([]mercadopago.PreferenceItem, 0, len(params.Items))
	for _, item := range params.Items {
		items = append(items, mercadopago.PreferenceItem{
			ID:         item.ProductID,
			Title:      item.Name,
			UnitPrice:  item.UnitPrice,
			Quantity:   item.Quantity,
			PictureURL: item.ImageURL,
		})
	}

	pref, err := b.widget.CreatePreference(ctx, mercadopago.PreferenceParams{
		Items:             items,
		PayerName:         params.Customer.Name,
		PayerEmail:        params.Customer.Email,
		ExternalReference: params.SessionID,
		TotalAmount:       params.Total.InexactFloat64(),
		BackURLs: mercadopago.PreferenceBackURLs{
			Success: b.success,
			Failure: b.failure,
			Pending: b.pending,
		},
		ExcludedTypes: []string{"ticket"},
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		Mode:         ModeWidget,
		PreferenceID: pref.ID,
		Amount:       params.Total,
		Locale:       b.widget.Locale(),
	}, nil
}
