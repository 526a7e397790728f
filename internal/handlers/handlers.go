// Package handlers maps inbound HTTP traffic onto the benefit ledger and
// the checkout providers. Status-code convention: a payment whose status is
// not final gets 200 so the processor stops retrying; missing fields get
// 400; grant failures after confirmation are hard 500s.
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/credisol/paywebhook/internal/i18n"
	"github.com/credisol/paywebhook/internal/ledger"
	"github.com/credisol/paywebhook/internal/providers"
)

type Handlers struct {
	ledger      *ledger.Ledger
	registry    *providers.Registry
	defaultLang i18n.Lang
}

func NewHandlers(l *ledger.Ledger, registry *providers.Registry, defaultLang i18n.Lang) *Handlers {
	return &Handlers{ledger: l, registry: registry, defaultLang: defaultLang}
}

// Final payment states per processor; anything else means "not confirmed
// yet" and must be answered 200 without granting.
var finalStates = map[string]map[string]bool{
	"mercadopago": {"approved": true, "pagado": true},
	"flow":        {"paid": true, "pagado": true},
}

func (h *Handlers) RegisterRoutes(app *fiber.App) {
	app.Post("/webhook/mercadopago", h.webhook("mercadopago"))
	app.Post("/webhook/flow", h.webhook("flow"))
	app.Post("/checkout/:provider", h.createCheckout)
	app.Get("/", h.health)
}

func (h *Handlers) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"providers": h.registry.Enabled(),
	})
}
