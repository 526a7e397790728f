package handlers

import (
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/credisol/paywebhook/internal/providers"
)

type checkoutPayload struct {
	Monto       int64  `json:"monto"`
	Email       string `json:"email"`
	Referencia  string `json:"referencia"`
	Descripcion string `json:"descripcion"`
}

func (h *Handlers) createCheckout(c *fiber.Ctx) error {
	provider := c.Params("provider")

	var p checkoutPayload
	if err := c.BodyParser(&p); err != nil || p.Monto <= 0 || strings.TrimSpace(p.Referencia) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "monto and referencia are required",
		})
	}

	checkout, err := h.registry.Create(c.UserContext(), provider, providers.CheckoutRequest{
		Amount:      p.Monto,
		PayerEmail:  strings.TrimSpace(p.Email),
		Reference:   strings.TrimSpace(p.Referencia),
		Description: strings.TrimSpace(p.Descripcion),
	})
	if err != nil {
		switch {
		case errors.Is(err, providers.ErrUnknownProvider):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, providers.ErrProviderDisabled):
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
		default:
			log.Printf("Checkout %s: %v", provider, err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "checkout creation failed"})
		}
	}

	return c.JSON(fiber.Map{"ok": true, "redirect_url": checkout.RedirectURL})
}
