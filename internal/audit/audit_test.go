package audit

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notifierSpy struct {
	mu    sync.Mutex
	texts []string
}

func (n *notifierSpy) Notify(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return nil
}

func (n *notifierSpy) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.texts...)
}

func TestTrailDeliversEvents(t *testing.T) {
	spy := &notifierSpy{}
	trail := NewTrail(Config{Workers: 1, Notifier: spy})
	trail.Start()

	trail.Emit(Event{Kind: KindGranted, Provider: "mercadopago", Reference: "mp-1", PayerID: "u1", Amount: 10})
	trail.Emit(Event{Kind: KindRejected, Provider: "flow", Reference: "f-1", Amount: 999, Detail: "no pack"})
	trail.Stop()

	texts := spy.all()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "Pago acreditado")
	assert.Contains(t, texts[0], "<code>mp-1</code>")
	assert.Contains(t, texts[1], "Pago rechazado")
	assert.Contains(t, texts[1], "no pack")
}

func TestEmitNeverBlocks(t *testing.T) {
	trail := NewTrail(Config{Workers: 1})
	trail.Start()
	defer trail.Stop()

	// Emit must never block even with no consumer keeping up.
	for i := 0; i < 100; i++ {
		trail.Emit(Event{Kind: KindDuplicate, Reference: "r"})
	}
}

func TestFormatEventEscapesHTML(t *testing.T) {
	text := formatEvent(Event{
		Kind:      KindGranted,
		Provider:  "<script>",
		Reference: "a&b",
		At:        time.Now(),
	})
	assert.False(t, strings.Contains(text, "<script>"))
	assert.Contains(t, text, "&lt;script&gt;")
	assert.Contains(t, text, "a&amp;b")
}

func TestStopIsIdempotent(t *testing.T) {
	trail := NewTrail(Config{Workers: 2})
	trail.Start()
	trail.Stop()
	trail.Stop()
}
