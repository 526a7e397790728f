// Package providers creates hosted-checkout sessions with the supported
// payment processors. Each provider is an optional capability: when its
// credentials are absent the provider stays registered but disabled.
package providers

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrUnknownProvider  = errors.New("unknown payment provider")
	ErrProviderDisabled = errors.New("payment provider is not configured")
)

// CheckoutRequest describes the purchase to create a redirect URL for.
type CheckoutRequest struct {
	Amount      int64
	PayerEmail  string
	Reference   string
	Description string
}

type Checkout struct {
	RedirectURL string `json:"redirect_url"`
}

// Client creates a checkout session and returns the payer-facing URL.
type Client interface {
	Name() string
	Enabled() bool
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)
}

type Registry struct {
	clients map[string]Client
}

func NewRegistry(clients ...Client) *Registry {
	r := &Registry{clients: make(map[string]Client, len(clients))}
	for _, c := range clients {
		r.clients[c.Name()] = c
	}
	return r
}

// Create dispatches by processor name, as data: handlers never branch on
// provider-specific types.
func (r *Registry) Create(ctx context.Context, provider string, req CheckoutRequest) (*Checkout, error) {
	c, ok := r.clients[strings.ToLower(strings.TrimSpace(provider))]
	if !ok {
		return nil, ErrUnknownProvider
	}
	if !c.Enabled() {
		return nil, ErrProviderDisabled
	}
	return c.CreateCheckout(ctx, req)
}

// Enabled lists the providers that can currently create checkouts.
func (r *Registry) Enabled() []string {
	var out []string
	for name, c := range r.clients {
		if c.Enabled() {
			out = append(out, name)
		}
	}
	return out
}
