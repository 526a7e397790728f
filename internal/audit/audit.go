// Package audit is the best-effort trail of grant outcomes. Events are
// queued and drained by background workers; a full queue drops the event.
// Nothing here can fail or delay a grant.
package audit

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/credisol/paywebhook/internal/messages"
	"github.com/google/uuid"
)

type EventKind string

const (
	KindGranted   EventKind = "granted"
	KindDuplicate EventKind = "duplicate"
	KindRejected  EventKind = "rejected"
)

type Event struct {
	ID        string
	Kind      EventKind
	Provider  string
	Reference string
	PayerID   string
	Amount    int64
	Detail    string
	At        time.Time
}

// Notifier delivers one audit line to an external channel.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

type Trail struct {
	notifier Notifier
	workers  int
	queue    chan Event
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

type Config struct {
	Workers  int
	Notifier Notifier
}

func NewTrail(cfg Config) *Trail {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	queueSize := cfg.Workers * 8
	if queueSize < 32 {
		queueSize = 32
	}
	return &Trail{
		notifier: cfg.Notifier,
		workers:  cfg.Workers,
		queue:    make(chan Event, queueSize),
	}
}

func (t *Trail) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.mu.Unlock()

	log.Printf("Audit trail started with %d workers", t.workers)
	for i := 0; i < t.workers; i++ {
		t.wg.Add(1)
		go t.worker(i)
	}
}

func (t *Trail) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	t.mu.Unlock()

	close(t.queue)
	t.wg.Wait()
	log.Printf("Audit trail stopped")
}

// Emit queues an event without blocking. Dropped events are logged and lost;
// the grant they describe is already durable in Postgres.
func (t *Trail) Emit(e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	select {
	case t.queue <- e:
	default:
		log.Printf("Audit queue full, dropping event %s (%s %s)", e.ID, e.Kind, e.Reference)
	}
}

func (t *Trail) worker(id int) {
	defer t.wg.Done()
	for e := range t.queue {
		log.Printf("audit id=%s kind=%s provider=%s ref=%s payer=%s amount=%d detail=%q",
			e.ID, e.Kind, e.Provider, e.Reference, e.PayerID, e.Amount, e.Detail)
		if t.notifier == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := t.notifier.Notify(ctx, formatEvent(e)); err != nil {
			log.Printf("Audit worker %d: notify failed for %s: %v", id, e.ID, err)
		}
		cancel()
	}
}

func formatEvent(e Event) string {
	head := map[EventKind]string{
		KindGranted:   "✅ <b>Pago acreditado</b>",
		KindDuplicate: "♻️ <b>Pago duplicado</b>",
		KindRejected:  "🚫 <b>Pago rechazado</b>",
	}[e.Kind]
	if head == "" {
		head = "<b>Pago</b>"
	}
	text := fmt.Sprintf("%s\nProveedor: %s\nReferencia: <code>%s</code>\nMonto: %d",
		head, messages.Escape(e.Provider), messages.Escape(e.Reference), e.Amount)
	if e.PayerID != "" {
		text += "\nUsuario: " + messages.Escape(e.PayerID)
	}
	if e.Detail != "" {
		text += "\nDetalle: " + messages.Escape(e.Detail)
	}
	return text
}
