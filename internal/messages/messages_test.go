package messages

import (
	"strings"
	"testing"
	"time"

	"github.com/credisol/paywebhook/internal/i18n"
	"github.com/credisol/paywebhook/types"
)

func at(hour int) time.Time {
	return time.Date(2024, 1, 1, hour, 0, 0, 0, time.UTC)
}

func TestGreetingWindows(t *testing.T) {
	tests := []struct {
		hour int
		want string
	}{
		{hour: 0, want: "Buenos días"},
		{hour: 11, want: "Buenos días"},
		{hour: 12, want: "Buenas tardes"},
		{hour: 18, want: "Buenas tardes"},
		{hour: 19, want: "Buenas noches"},
		{hour: 23, want: "Buenas noches"},
	}
	for _, tt := range tests {
		if got := Greeting(i18n.ES, at(tt.hour)); got != tt.want {
			t.Fatalf("Greeting(es, %dh) = %q, want %q", tt.hour, got, tt.want)
		}
	}
	if got := Greeting(i18n.EN, at(8)); got != "Good morning" {
		t.Fatalf("Greeting(en, 8h) = %q", got)
	}
}

func TestComposeCredits(t *testing.T) {
	g := types.Grant{Kind: types.GrantCredits, CreditsGranted: 63, NewBalance: 68}
	m := Compose(i18n.ES, g, at(9))
	if m.Title != "Compra confirmada" {
		t.Fatalf("title = %q", m.Title)
	}
	if !strings.Contains(m.Body, "Créditos otorgados: 63") || !strings.Contains(m.Body, "Saldo total: 68") {
		t.Fatalf("body = %q", m.Body)
	}
}

func TestComposeUnlimited(t *testing.T) {
	expiry := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	g := types.Grant{Kind: types.GrantUnlimited, DaysGranted: 7, NewExpiry: &expiry}
	m := Compose(i18n.ES, g, at(20))
	if !strings.Contains(m.Body, "08/01/2024") {
		t.Fatalf("body = %q", m.Body)
	}
	if !strings.HasPrefix(m.Body, "Buenas noches") {
		t.Fatalf("body = %q", m.Body)
	}
}

func TestComposeDuplicateAndUnknownKind(t *testing.T) {
	dup := Compose(i18n.ES, types.Grant{Kind: types.GrantDuplicate}, at(9))
	if dup.Title != "Pago ya procesado" {
		t.Fatalf("title = %q", dup.Title)
	}
	unknown := Compose(i18n.ES, types.Grant{Kind: "???"}, at(9))
	if unknown != dup {
		t.Fatalf("unknown kind should reuse duplicate template, got %+v", unknown)
	}
}

func TestEscape(t *testing.T) {
	if got := Escape(` <b>&"x"</b> `); got != "&lt;b&gt;&amp;&quot;x&quot;&lt;/b&gt;" {
		t.Fatalf("Escape = %q", got)
	}
}
