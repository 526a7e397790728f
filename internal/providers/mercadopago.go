package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const mpDefaultBaseURL = "https://api.mercadopago.com"

// MercadoPago creates checkout preferences via the Mercado Pago REST API.
type MercadoPago struct {
	accessToken string
	baseURL     string
	httpClient  *http.Client
}

func NewMercadoPago(accessToken string) *MercadoPago {
	return &MercadoPago{
		accessToken: strings.TrimSpace(accessToken),
		baseURL:     mpDefaultBaseURL,
		httpClient:  &http.Client{Timeout: 20 * time.Second},
	}
}

func (m *MercadoPago) Name() string  { return "mercadopago" }
func (m *MercadoPago) Enabled() bool { return m.accessToken != "" }

type mpPreferenceRequest struct {
	Items             []mpItem `json:"items"`
	Payer             mpPayer  `json:"payer"`
	ExternalReference string   `json:"external_reference"`
}

type mpItem struct {
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

type mpPayer struct {
	Email string `json:"email"`
}

type mpPreferenceResponse struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

func (m *MercadoPago) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	if !m.Enabled() {
		return nil, ErrProviderDisabled
	}

	body, err := json.Marshal(mpPreferenceRequest{
		Items: []mpItem{{
			Title:     req.Description,
			Quantity:  1,
			UnitPrice: req.Amount,
		}},
		Payer:             mpPayer{Email: req.PayerEmail},
		ExternalReference: req.Reference,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/checkout/preferences", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+m.accessToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("mercadopago: create preference: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("mercadopago: create preference: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var pref mpPreferenceResponse
	if err := json.Unmarshal(raw, &pref); err != nil {
		return nil, fmt.Errorf("mercadopago: decode preference: %w", err)
	}
	if pref.InitPoint == "" {
		return nil, fmt.Errorf("mercadopago: preference %s has no init_point", pref.ID)
	}
	return &Checkout{RedirectURL: pref.InitPoint}, nil
}
