package checkout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/poppyflores/checkout-backend/internal/cart"
	"github.com/poppyflores/checkout-backend/internal/coupons"
	"github.com/poppyflores/checkout-backend/internal/preference"
	"github.com/poppyflores/checkout-backend/internal/pricing"
	pkgerrors "github.com/poppyflores/checkout-backend/pkg/errors"
	"github.com/poppyflores/checkout-backend/pkg/logger"
	"github.com/poppyflores/checkout-backend/pkg/mercadopago"
	"github.com/poppyflores/checkout-backend/pkg/metrics"
)

// State is a checkout session's position in the submission flow.
type State string

const (
	StateIdle               State = "idle"
	StateValidatingCoupon   State = "validating_coupon"
	StateCouponInvalid      State = "coupon_invalid"
	StateCouponValid        State = "coupon_valid"
	StateCreatingPreference State = "creating_preference"
	StateRedirectPending    State = "redirect_pending"
	StateWidgetVisible      State = "widget_visible"
	StateSubmitting         State = "submitting"
	StateSucceeded          State = "succeeded"
	StateFailed             State = "failed"
)

// Submit instruction kinds returned to the storefront.
const (
	ActionRedirect = "redirect"
	ActionWidget   = "widget"
)

var errDepsIncomplete = errors.New("checkout orchestrator dependencies are incomplete")

type couponValidator interface {
	Validate(ctx context.Context, code string, purchaseAmount decimal.Decimal, userEmail string) coupons.Result
}

type preferenceBuilder interface {
	Build(ctx context.Context, params preference.BuildParams) (*preference.Result, error)
	Mode() preference.Mode
}

type paymentProcessor interface {
	ProcessPayment(ctx context.Context, params mercadopago.PaymentParams) (*mercadopago.Payment, error)
}

type cartSource interface {
	Get(ctx context.Context, sessionID string) (*cart.Snapshot, error)
	Clear(ctx context.Context, sessionID string) error
}

// Deps are the orchestrator's collaborators. Payments may be nil in hosted
// mode, where Mercado Pago captures on its own pages.
type Deps struct {
	Validator couponValidator
	Builder   preferenceBuilder
	Payments  paymentProcessor
	Carts     cartSource
	Logger    *logger.Logger
	Metrics   *metrics.CheckoutMetrics
}

// Config carries the per-session tunables.
type Config struct {
	DebounceDelay time.Duration
	ReservedCode  string
	SuccessURL    string
	FailureURL    string
}

// SubmitInstruction tells the storefront how to continue after Submit:
// navigate to RedirectURL, or mount the payment widget for PreferenceID.
type SubmitInstruction struct {
	Action       string `json:"action"`
	RedirectURL  string `json:"redirect_url,omitempty"`
	PreferenceID string `json:"preference_id,omitempty"`
	Amount       string `json:"amount,omitempty"`
	Locale       string `json:"locale,omitempty"`
}

// WidgetForm is the payment form data the widget hands over on submit.
type WidgetForm struct {
	Token           string
	IssuerID        string
	PaymentMethodID string
	Installments    int
	PayerEmail      string
}

// PaymentInstruction is the navigation outcome of a widget payment. A
// rejected payment is an outcome, not an error: the storefront navigates to
// the failure page.
type PaymentInstruction struct {
	Approved     bool   `json:"approved"`
	PaymentID    int64  `json:"payment_id,omitempty"`
	StatusDetail string `json:"status_detail,omitempty"`
	RedirectURL  string `json:"redirect_url"`
}

// View is the session snapshot rendered to the storefront.
type View struct {
	State       State  `json:"state"`
	CouponCode  string `json:"coupon_code,omitempty"`
	CouponValid bool   `json:"coupon_valid"`
	CouponError string `json:"coupon_error,omitempty"`
	Discount    string `json:"discount"`
	Total       string `json:"total"`
	WidgetError string `json:"widget_error,omitempty"`
}

// Orchestrator drives one checkout session through the submission flow. All
// mutation goes through its mutex; network calls happen outside the lock so a
// slow provider never blocks the session's other events.
type Orchestrator struct {
	sessionID string
	deps      Deps
	cfg       Config
	scheduler *coupons.Scheduler

	mu         sync.Mutex
	state      State
	couponCode string
	coupon     coupons.Result
	userEmail  string
	subtotal   decimal.Decimal
	total      decimal.Decimal
	loading    bool
	widgetErr  string
	lastSeen   time.Time
}

func New(sessionID string, deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Validator == nil || deps.Builder == nil || deps.Carts == nil || deps.Logger == nil {
		return nil, errDepsIncomplete
	}

	o := &Orchestrator{
		sessionID: sessionID,
		deps:      deps,
		cfg:       cfg,
		state:     StateIdle,
		lastSeen:  time.Now(),
	}
	o.scheduler = coupons.NewScheduler(cfg.DebounceDelay, cfg.ReservedCode, o.revalidate)
	return o, nil
}

// SessionID returns the storefront session this orchestrator belongs to.
func (o *Orchestrator) SessionID() string {
	return o.sessionID
}

// Touch refreshes the session's idle deadline.
func (o *Orchestrator) Touch() {
	o.mu.Lock()
	o.lastSeen = time.Now()
	o.mu.Unlock()
}

// LastSeen returns the last time the session received an event.
func (o *Orchestrator) LastSeen() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastSeen
}

// Stop cancels pending validations. The orchestrator accepts no further
// scheduled work afterwards.
func (o *Orchestrator) Stop() {
	o.scheduler.Stop()
}

// View renders the session snapshot.
func (o *Orchestrator) View() View {
	o.mu.Lock()
	defer o.mu.Unlock()
	return View{
		State:       o.state,
		CouponCode:  o.couponCode,
		CouponValid: o.coupon.Valid,
		CouponError: o.coupon.Error,
		Discount:    pricing.Display(o.coupon.DiscountAmount),
		Total:       pricing.Display(pricing.Total(o.subtotal, o.coupon.DiscountAmount)),
		WidgetError: o.widgetErr,
	}
}

// ApplyCoupon validates a coupon code immediately and records the verdict.
// An empty code clears the applied coupon without any network traffic.
func (o *Orchestrator) ApplyCoupon(ctx context.Context, code string, purchaseAmount decimal.Decimal) coupons.Result {
	normalized := coupons.NormalizeCode(code)

	o.mu.Lock()
	o.couponCode = normalized
	if purchaseAmount.IsPositive() {
		o.subtotal = purchaseAmount
	}
	subtotal := o.subtotal
	email := o.userEmail
	if normalized == "" {
		o.coupon = coupons.Result{FinalAmount: subtotal}
		if o.inCouponPhase() {
			o.state = StateIdle
		}
		cleared := o.coupon
		o.mu.Unlock()
		return cleared
	}
	if o.inCouponPhase() {
		o.state = StateValidatingCoupon
	}
	o.mu.Unlock()

	result := o.deps.Validator.Validate(ctx, normalized, subtotal, email)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.couponCode == normalized {
		o.applyCouponLocked(result)
	}
	return result
}

// SetCartTotal records a new cart subtotal and schedules re-validation of
// the entered coupon against it.
func (o *Orchestrator) SetCartTotal(subtotal decimal.Decimal) {
	o.mu.Lock()
	o.subtotal = subtotal
	code := o.couponCode
	email := o.userEmail
	o.mu.Unlock()

	if code != "" {
		o.scheduler.Trigger(coupons.Input{Code: code, Subtotal: subtotal, Email: email})
	}
}

// SetIdentity records the authenticated user's email. A newly known identity
// re-validates immediately when the reserved coupon is waiting on it.
func (o *Orchestrator) SetIdentity(email string) {
	email = strings.TrimSpace(email)

	o.mu.Lock()
	changed := o.userEmail != email
	o.userEmail = email
	code := o.couponCode
	subtotal := o.subtotal
	o.mu.Unlock()

	if changed && code != "" {
		o.scheduler.Trigger(coupons.Input{Code: code, Subtotal: subtotal, Email: email})
	}
}

// Submit runs the submission flow: customer validation, coupon double-check,
// preference creation, and the mode branch.
func (o *Orchestrator) Submit(ctx context.Context, customer preference.Customer) (*SubmitInstruction, error) {
	o.mu.Lock()
	if o.loading {
		o.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout already in progress")
	}
	o.loading = true
	o.mu.Unlock()
	defer o.clearLoading()

	if err := validateCustomer(customer); err != nil {
		return nil, err
	}

	snapshot, err := o.deps.Carts.Get(ctx, o.sessionID)
	if err != nil {
		return nil, err
	}
	if snapshot.Empty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "el carrito está vacío")
	}
	subtotal := snapshot.Subtotal()

	o.mu.Lock()
	o.subtotal = subtotal
	code := o.couponCode
	email := o.userEmail
	o.mu.Unlock()

	discount := decimal.Zero
	couponCode := ""
	if code != "" {
		o.setState(ctx, StateValidatingCoupon)
		result := o.deps.Validator.Validate(ctx, code, subtotal, email)
		o.mu.Lock()
		o.applyCouponLocked(result)
		o.mu.Unlock()
		if !result.Valid {
			o.deps.Metrics.IncCheckoutOutcome("coupon_rejected")
			return nil, pkgerrors.New(pkgerrors.CodeValidation, result.Error)
		}
		discount = result.DiscountAmount
		couponCode = code
	} else {
		o.setState(ctx, StateCouponValid)
	}

	total := pricing.Total(subtotal, discount)

	o.setState(ctx, StateCreatingPreference)
	result, err := o.deps.Builder.Build(ctx, preference.BuildParams{
		SessionID:  o.sessionID,
		Items:      snapshot.Items,
		Customer:   customer,
		CouponCode: couponCode,
		Total:      total,
	})
	if err != nil {
		o.setState(ctx, StateCouponValid)
		o.deps.Metrics.IncCheckoutOutcome("preference_error")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "no pudimos iniciar el pago")
	}

	o.mu.Lock()
	o.total = total
	o.widgetErr = ""
	o.mu.Unlock()

	switch result.Mode {
	case preference.ModeHosted:
		o.setState(ctx, StateRedirectPending)
		o.deps.Metrics.IncCheckoutOutcome("redirect")
		return &SubmitInstruction{
			Action:      ActionRedirect,
			RedirectURL: result.RedirectURL,
		}, nil
	default:
		o.setState(ctx, StateWidgetVisible)
		o.deps.Metrics.IncCheckoutOutcome("widget_open")
		return &SubmitInstruction{
			Action:       ActionWidget,
			PreferenceID: result.PreferenceID,
			Amount:       pricing.Display(total),
			Locale:       result.Locale,
		}, nil
	}
}

// HandleWidgetSubmit forwards the widget's payment form for capture and
// yields the navigation outcome.
func (o *Orchestrator) HandleWidgetSubmit(ctx context.Context, form WidgetForm) (*PaymentInstruction, error) {
	if o.deps.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payments are handled on the hosted checkout")
	}

	o.mu.Lock()
	if o.state != StateWidgetVisible {
		o.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no payment widget is open")
	}
	o.loading = true
	o.state = StateSubmitting
	total := o.total
	o.mu.Unlock()
	defer o.clearLoading()

	payment, err := o.deps.Payments.ProcessPayment(ctx, mercadopago.PaymentParams{
		Token:             form.Token,
		IssuerID:          form.IssuerID,
		PaymentMethodID:   form.PaymentMethodID,
		TransactionAmount: total.InexactFloat64(),
		Installments:      form.Installments,
		PayerEmail:        form.PayerEmail,
		Description:       "Compra Poppy Flores",
		ExternalReference: o.sessionID,
	})
	if err != nil {
		o.setState(ctx, StateFailed)
		o.deps.Metrics.IncCheckoutOutcome("failure")
		o.deps.Logger.Error(ctx, "widget payment failed", err)
		return &PaymentInstruction{Approved: false, RedirectURL: o.cfg.FailureURL}, nil
	}
	if !payment.Approved() {
		o.setState(ctx, StateFailed)
		o.deps.Metrics.IncCheckoutOutcome("failure")
		return &PaymentInstruction{
			Approved:     false,
			PaymentID:    payment.ID,
			StatusDetail: payment.StatusDetail,
			RedirectURL:  o.cfg.FailureURL,
		}, nil
	}

	o.setState(ctx, StateSucceeded)
	o.deps.Metrics.IncCheckoutOutcome("success")
	if err := o.deps.Carts.Clear(ctx, o.sessionID); err != nil {
		o.deps.Logger.Warn(ctx, "cart clear after payment failed")
	}
	return &PaymentInstruction{
		Approved:     true,
		PaymentID:    payment.ID,
		StatusDetail: payment.StatusDetail,
		RedirectURL:  o.cfg.SuccessURL,
	}, nil
}

// HandleWidgetReady records that the widget finished mounting.
func (o *Orchestrator) HandleWidgetReady(ctx context.Context) {
	o.deps.Logger.Info(o.deps.Logger.WithSessionID(ctx, o.sessionID), "payment widget ready")
}

// HandleWidgetError records a widget-side error. The widget stays visible;
// the customer can retry or close it.
func (o *Orchestrator) HandleWidgetError(ctx context.Context, message string) {
	o.mu.Lock()
	o.widgetErr = message
	o.mu.Unlock()
	o.deps.Logger.Warn(o.deps.Logger.WithSessionID(ctx, o.sessionID), "payment widget error: "+message)
}

// CloseWidget dismisses the open widget and returns the session to the
// coupon-applied state. Results of anything still in flight are discarded.
func (o *Orchestrator) CloseWidget(ctx context.Context) State {
	o.mu.Lock()
	if o.state == StateWidgetVisible {
		o.state = StateCouponValid
		o.widgetErr = ""
		o.deps.Metrics.IncCheckoutOutcome("widget_closed")
	}
	state := o.state
	o.mu.Unlock()

	o.deps.Logger.Info(o.deps.Logger.WithCheckoutState(ctx, string(state)), "payment widget closed")
	return state
}

// revalidate is the scheduler's run function. The result is dropped when the
// input it belongs to is no longer current.
func (o *Orchestrator) revalidate(ctx context.Context, in coupons.Input) {
	result := o.deps.Validator.Validate(ctx, in.Code, in.Subtotal, in.Email)
	if ctx.Err() != nil {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if coupons.NormalizeCode(o.couponCode) != coupons.NormalizeCode(in.Code) {
		return
	}
	o.applyCouponLocked(result)
}

func (o *Orchestrator) applyCouponLocked(result coupons.Result) {
	o.coupon = result
	if !o.inCouponPhase() {
		return
	}
	if result.Valid {
		o.state = StateCouponValid
	} else {
		o.state = StateCouponInvalid
	}
}

// inCouponPhase reports whether coupon verdicts may move the state. Once a
// preference exists or a payment is running, verdicts only update the stored
// result.
func (o *Orchestrator) inCouponPhase() bool {
	switch o.state {
	case StateIdle, StateValidatingCoupon, StateCouponValid, StateCouponInvalid:
		return true
	default:
		return false
	}
}

func (o *Orchestrator) setState(ctx context.Context, state State) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
	o.deps.Logger.Info(o.deps.Logger.WithCheckoutState(ctx, string(state)), "checkout state change")
}

func (o *Orchestrator) clearLoading() {
	o.mu.Lock()
	o.loading = false
	o.mu.Unlock()
}

func validateCustomer(c preference.Customer) error {
	missing := make([]string, 0, 4)
	for _, field := range []struct {
		name  string
		value string
	}{
		{"nombre", c.Name},
		{"email", c.Email},
		{"telefono", c.Phone},
		{"direccion", c.Address},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "completá los datos de entrega").
		WithDetails(map[string]any{"missing": missing})
}
