// Package records defines the business records a voice command can produce.
package records

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	KindInvoice = "invoice"
	KindTask    = "task"
	KindEvent   = "calendar_event"
	KindClient  = "client"
)

const (
	StatusDraft     = "draft"
	StatusGenerated = "GENERATED"
)

// Record is anything the dispatcher can hand to a persistence sink.
type Record interface {
	RecordID() string
	RecordKind() string
}

type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     *string   `json:"phone"`
	Address   *string   `json:"address"`
	Company   string    `json:"company,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (c Client) RecordID() string   { return c.ID }
func (c Client) RecordKind() string { return KindClient }

// PhoneOrEmpty dereferences Phone.
func (c Client) PhoneOrEmpty() string {
	if c.Phone == nil {
		return ""
	}
	return *c.Phone
}

type Invoice struct {
	ID            string    `json:"id"`
	Intent        string    `json:"intent"`
	CreatedAt     time.Time `json:"created_at"`
	Client        string    `json:"client"`
	ClientPhone   string    `json:"client_phone"`
	ClientCompany string    `json:"client_company"`
	Amount        float64   `json:"amount"`
	Description   string    `json:"description"`
	Status        string    `json:"status"`
	Items         []string  `json:"items"`
}

func (i Invoice) RecordID() string   { return i.ID }
func (i Invoice) RecordKind() string { return KindInvoice }

// Confirmed reports whether the invoice has been approved. Confirmed invoices
// are never mutated in place.
func (i Invoice) Confirmed() bool { return i.Status != StatusDraft }

type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

type Task struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Priority    Priority   `json:"priority"`
	Done        bool       `json:"done"`
	DueDate     *time.Time `json:"due_date"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (t Task) RecordID() string   { return t.ID }
func (t Task) RecordKind() string { return KindTask }

type CalendarEvent struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	StartTime       time.Time `json:"start_time"`
	DurationMinutes int       `json:"duration_minutes"`
}

func (e CalendarEvent) RecordID() string   { return e.ID }
func (e CalendarEvent) RecordKind() string { return KindEvent }

// IDGen issues process-unique identifiers.
type IDGen struct {
	mu       sync.Mutex
	invoices map[int]bool
}

func NewIDGen() *IDGen {
	return &IDGen{invoices: make(map[int]bool)}
}

// ShortID returns 9 lowercase hex chars taken from a random UUID.
func ShortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
}

// New returns prefix-<9 lowercase hex chars>, e.g. TSK-3f9a1c2be.
func (g *IDGen) New(prefix string) string {
	return prefix + "-" + ShortID()
}

// Invoice returns INV-<5 digits> in [10000, 99999], never repeating within
// the process. Numbers already persisted can be reserved with Reserve.
func (g *IDGen) Invoice() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.invoices) >= 90000 {
		// Exhausted: fall back to a longer opaque id.
		return g.New("INV")
	}
	for {
		n := rand.IntN(90000) + 10000
		if !g.invoices[n] {
			g.invoices[n] = true
			return fmt.Sprintf("INV-%d", n)
		}
	}
}

// Reserve marks an existing invoice id as taken.
func (g *IDGen) Reserve(id string) {
	var n int
	if _, err := fmt.Sscanf(id, "INV-%d", &n); err != nil || n < 10000 || n > 99999 {
		return
	}
	g.mu.Lock()
	g.invoices[n] = true
	g.mu.Unlock()
}
