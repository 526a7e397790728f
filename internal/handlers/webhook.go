package handlers

import (
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/credisol/paywebhook/internal/i18n"
	"github.com/credisol/paywebhook/internal/ledger"
	"github.com/credisol/paywebhook/internal/messages"
	"github.com/credisol/paywebhook/types"
)

type webhookPayload struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	Monto      int64  `json:"monto"`
	Estado     string `json:"estado"`
	Referencia string `json:"referencia"`
	Lang       string `json:"lang"`
}

func (h *Handlers) webhook(provider string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var p webhookPayload
		if err := c.BodyParser(&p); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": messages.MissingFields(h.defaultLang),
			})
		}

		lang := h.defaultLang
		if strings.TrimSpace(p.Lang) != "" {
			lang = i18n.Parse(p.Lang)
		}

		if (strings.TrimSpace(p.UserID) == "" && strings.TrimSpace(p.Email) == "") ||
			p.Monto <= 0 || strings.TrimSpace(p.Referencia) == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": messages.MissingFields(lang),
			})
		}

		// Non-final states are answered 200 so the processor does not retry
		// forever; nothing is granted.
		if !finalStates[provider][strings.ToLower(strings.TrimSpace(p.Estado))] {
			return c.JSON(fiber.Map{"message": messages.NotConfirmed(lang)})
		}

		grant, err := h.ledger.Grant(c.UserContext(), ledger.GrantRequest{
			PayerID:   p.UserID,
			Email:     p.Email,
			Amount:    p.Monto,
			Reference: p.Referencia,
			Provider:  provider,
			Lang:      lang,
		})
		if err != nil {
			return h.grantError(c, provider, err)
		}

		return c.JSON(fiber.Map{"ok": true, "result": grant})
	}
}

func (h *Handlers) grantError(c *fiber.Ctx, provider string, err error) error {
	log.Printf("Webhook %s: grant failed: %v", provider, err)
	if errors.Is(err, types.ErrMissingIdentifier) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	// Confirmed payment that could not be credited: a hard error the
	// operator has to look at, never a silent 200.
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}
