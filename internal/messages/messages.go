// Package messages builds the user-facing confirmation texts for grant
// results. Pure formatting: no side effects and no failure modes.
package messages

import (
	"fmt"
	"strings"
	"time"

	"github.com/credisol/paywebhook/internal/i18n"
	"github.com/credisol/paywebhook/types"
)

// Escape neutralizes HTML-sensitive characters for sinks that render HTML
// (the Telegram audit channel).
func Escape(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&#39;",
	)
	return replacer.Replace(strings.TrimSpace(s))
}

// Greeting picks a salutation by local hour of day.
func Greeting(lang i18n.Lang, now time.Time) string {
	h := now.Hour()
	if lang == i18n.EN {
		switch {
		case h < 12:
			return "Good morning"
		case h < 19:
			return "Good afternoon"
		default:
			return "Good evening"
		}
	}
	switch {
	case h < 12:
		return "Buenos días"
	case h < 19:
		return "Buenas tardes"
	default:
		return "Buenas noches"
	}
}

// Compose selects a template by grant kind and interpolates the result.
// Unknown kinds fall through to the duplicate template; that is a
// programming error upstream, not something to surface to payers.
func Compose(lang i18n.Lang, g types.Grant, now time.Time) types.Message {
	switch g.Kind {
	case types.GrantCredits:
		return creditsMessage(lang, g, now)
	case types.GrantUnlimited:
		return unlimitedMessage(lang, g, now)
	default:
		return duplicateMessage(lang)
	}
}

func creditsMessage(lang i18n.Lang, g types.Grant, now time.Time) types.Message {
	if lang == i18n.EN {
		return types.Message{
			Title: "Purchase confirmed",
			Body: fmt.Sprintf("%s! Your credits are active and your balance is up to date.\nCredits granted: %d\nTotal balance: %d",
				Greeting(lang, now), g.CreditsGranted, g.NewBalance),
		}
	}
	return types.Message{
		Title: "Compra confirmada",
		Body: fmt.Sprintf("%s! Créditos activados y saldo actualizado correctamente.\nCréditos otorgados: %d\nSaldo total: %d",
			Greeting(lang, now), g.CreditsGranted, g.NewBalance),
	}
}

func unlimitedMessage(lang i18n.Lang, g types.Grant, now time.Time) types.Message {
	until := ""
	if g.NewExpiry != nil {
		until = g.NewExpiry.Format("02/01/2006")
	}
	if lang == i18n.EN {
		return types.Message{
			Title: "Unlimited plan active",
			Body: fmt.Sprintf("%s! Your unlimited plan is active for %d more days, until %s.",
				Greeting(lang, now), g.DaysGranted, until),
		}
	}
	return types.Message{
		Title: "Plan ilimitado activado",
		Body: fmt.Sprintf("%s! Tu plan ilimitado suma %d días y está activo hasta el %s.",
			Greeting(lang, now), g.DaysGranted, until),
	}
}

func duplicateMessage(lang i18n.Lang) types.Message {
	if lang == i18n.EN {
		return types.Message{
			Title: "Payment already processed",
			Body:  "This payment was already applied to your account. No additional charge was made.",
		}
	}
	return types.Message{
		Title: "Pago ya procesado",
		Body:  "Este pago ya fue aplicado a tu cuenta. No se realizó ningún cargo adicional.",
	}
}

// NotConfirmed is the soft response for notifications whose payment status
// is not final yet.
func NotConfirmed(lang i18n.Lang) string {
	if lang == i18n.EN {
		return "Payment not confirmed."
	}
	return "Pago no confirmado."
}

// MissingFields is the validation response for incomplete notifications.
func MissingFields(lang i18n.Lang) string {
	if lang == i18n.EN {
		return "Missing data (identifier/amount/reference)."
	}
	return "Faltan datos (identificador/monto/referencia)."
}
