package mercadopago

// Preference is the created checkout preference handle.
type Preference struct {
	ID        string
	InitPoint string
}

// Payment is the outcome of a Payment Brick submission.
type Payment struct {
	ID           int64
	Status       string
	StatusDetail string
}

// PreferenceItem is one line of the preference request.
type PreferenceItem struct {
	ID         string
	Title      string
	UnitPrice  float64
	Quantity   int
	PictureURL string
}

// PreferenceBackURLs configures the hosted checkout return URLs.
type PreferenceBackURLs struct {
	Success string
	Failure string
	Pending string
}

// PreferenceParams describes a preference creation request.
type PreferenceParams struct {
	Items             []PreferenceItem
	PayerName         string
	PayerEmail        string
	ExternalReference string
	TotalAmount       float64
	BackURLs          PreferenceBackURLs
	ExcludedTypes     []string
}

type preferenceRequest struct {
	Items             []preferenceItemRequest `json:"items"`
	Payer             preferencePayerRequest  `json:"payer"`
	BackURLs          *backURLsRequest        `json:"back_urls,omitempty"`
	AutoReturn        string                  `json:"auto_return,omitempty"`
	ExternalReference string                  `json:"external_reference,omitempty"`
	PaymentMethods    *paymentMethodsRequest  `json:"payment_methods,omitempty"`
	Locale            string                  `json:"locale,omitempty"`
}

type preferenceItemRequest struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	UnitPrice  float64 `json:"unit_price"`
	Quantity   int     `json:"quantity"`
	PictureURL string  `json:"picture_url,omitempty"`
	CurrencyID string  `json:"currency_id,omitempty"`
}

type preferencePayerRequest struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type backURLsRequest struct {
	Success string `json:"success,omitempty"`
	Failure string `json:"failure,omitempty"`
	Pending string `json:"pending,omitempty"`
}

type paymentMethodsRequest struct {
	ExcludedPaymentTypes []excludedType `json:"excluded_payment_types,omitempty"`
}

type excludedType struct {
	ID string `json:"id"`
}

func (p PreferenceParams) toRequest(locale string) preferenceRequest {
	items := make([]preferenceItemRequest, 0, len(p.Items))
	for _, item := range p.Items {
		items = append(items, preferenceItemRequest{
			ID:         item.ID,
			Title:      item.Title,
			UnitPrice:  item.UnitPrice,
			Quantity:   item.Quantity,
			PictureURL: item.PictureURL,
		})
	}

	req := preferenceRequest{
		Items: items,
		Payer: preferencePayerRequest{
			Name:  p.PayerName,
			Email: p.PayerEmail,
		},
		ExternalReference: p.ExternalReference,
		Locale:            locale,
	}

	if p.BackURLs != (PreferenceBackURLs{}) {
		req.BackURLs = &backURLsRequest{
			Success: p.BackURLs.Success,
			Failure: p.BackURLs.Failure,
			Pending: p.BackURLs.Pending,
		}
		if p.BackURLs.Success != "" {
			req.AutoReturn = "approved"
		}
	}

	if len(p.ExcludedTypes) > 0 {
		excluded := make([]excludedType, 0, len(p.ExcludedTypes))
		for _, id := range p.ExcludedTypes {
			excluded = append(excluded, excludedType{ID: id})
		}
		req.PaymentMethods = &paymentMethodsRequest{ExcludedPaymentTypes: excluded}
	}

	return req
}

type preferenceResponse struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

type paymentResponse struct {
	ID           int64  `json:"id"`
	Status       string `json:"status"`
	StatusDetail string `json:"status_detail"`
}

// PaymentParams carries the Payment Brick form data forwarded on submit.
type PaymentParams struct {
	Token             string
	IssuerID          string
	PaymentMethodID   string
	TransactionAmount float64
	Installments      int
	PayerEmail        string
	Description       string
	ExternalReference string
}

type paymentRequest struct {
	Token             string              `json:"token,omitempty"`
	IssuerID          string              `json:"issuer_id,omitempty"`
	PaymentMethodID   string              `json:"payment_method_id"`
	TransactionAmount float64             `json:"transaction_amount"`
	Installments      int                 `json:"installments,omitempty"`
	Description       string              `json:"description,omitempty"`
	ExternalReference string              `json:"external_reference,omitempty"`
	Payer             paymentPayerRequest `json:"payer"`
}

type paymentPayerRequest struct {
	Email string `json:"email"`
}

func (p PaymentParams) toRequest() paymentRequest {
	return paymentRequest{
		Token:             p.Token,
		IssuerID:          p.IssuerID,
		PaymentMethodID:   p.PaymentMethodID,
		TransactionAmount: p.TransactionAmount,
		Installments:      p.Installments,
		Description:       p.Description,
		ExternalReference: p.ExternalReference,
		Payer:             paymentPayerRequest{Email: p.PayerEmail},
	}
}

// Approved reports whether the payment reached an approved status.
func (p *Payment) Approved() bool {
	if p == nil {
		return false
	}
	return p.Status == "approved"
}
