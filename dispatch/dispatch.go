// Package dispatch turns a classified intent into exactly one draft record,
// commits it to the in-memory state and starts its persistence side effects.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/butancak6/constructionos/appstate"
	"github.com/butancak6/constructionos/intent"
	"github.com/butancak6/constructionos/log"
	"github.com/butancak6/constructionos/metrics"
	"github.com/butancak6/constructionos/persist"
	"github.com/butancak6/constructionos/records"
	"github.com/butancak6/constructionos/resolver"
)

const (
	DefaultClientName    = "New Client"
	DefaultDescription   = "Services"
	DefaultEventTitle    = "New Meeting"
	DefaultEventDuration = 60
	DefaultTaskText      = "New Task"
	DefaultContactName   = "Unknown"

	invoiceIntent = "INVOICE"
)

var (
	ErrNoDraft      = errors.New("no invoice draft")
	ErrInvalidDraft = errors.New("missing invoice data (amount or client)")
	ErrNotFound     = errors.New("invoice not found")
)

// Route names the screen the UI should show after a dispatch.
type Route string

const (
	RouteNone          Route = ""
	RouteInvoiceReview Route = "invoice_review"
	RouteCalendar      Route = "calendar"
	RouteTasks         Route = "tasks"
	RouteClients       Route = "clients"
	RouteInvoices      Route = "invoices"
)

type Result struct {
	Kind   intent.Kind
	Route  Route
	Record records.Record
	// Outcomes delivers one entry per side effect started for this result and
	// is then closed. Nil when nothing was persisted.
	Outcomes <-chan persist.Outcome
	Message  string
}

// Sinks are the stores side effects go to. Nil members are skipped.
type Sinks struct {
	Local   persist.Sink
	Remote  persist.Sink
	Webhook persist.Sink
}

type Engine struct {
	state   *appstate.State
	ids     *records.IDGen
	repl    *persist.Replicator
	sinks   Sinks
	now     func() time.Time
	metrics *metrics.Metrics
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithIDGen(g *records.IDGen) Option {
	return func(e *Engine) { e.ids = g }
}

func New(state *appstate.State, repl *persist.Replicator, sinks Sinks, opts ...Option) *Engine {
	e := &Engine{
		state: state,
		ids:   records.NewIDGen(),
		repl:  repl,
		sinks: sinks,
		now:   time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Hydrate loads persisted records into the state and reserves their invoice
// numbers.
func (e *Engine) Hydrate(snap appstate.Snapshot) {
	for _, inv := range snap.Invoices {
		e.ids.Reserve(inv.ID)
	}
	e.state.Hydrate(snap)
}

// Dispatch is the only writer of new records. Persistence failures are
// reported on Result.Outcomes and never undo the in-memory change.
func (e *Engine) Dispatch(ctx context.Context, in intent.Intent) (Result, error) {
	switch in := in.(type) {
	case intent.CreateInvoice:
		return e.invoice(ctx, in), nil
	case intent.CreateCalendarEvent:
		return e.calendar(ctx, in), nil
	case intent.CreateTask:
		return e.task(ctx, in), nil
	case intent.CreateClient:
		return e.client(ctx, in), nil
	}
	e.state.Debugf("Unknown Intent: %v", in)
	return Result{Message: "Could not understand command."}, fmt.Errorf("%w: %T", intent.ErrUnrecognizedIntent, in)
}

func (e *Engine) invoice(ctx context.Context, in intent.CreateInvoice) Result {
	name := in.ClientName
	if name == "" {
		name = DefaultClientName
	}
	var phone, company string
	var outcomes <-chan persist.Outcome

	if m, ok := resolver.Resolve(e.state.Clients(), name); ok {
		name = m.Client.Name
		phone = m.Client.PhoneOrEmpty()
		company = m.Client.Company
		e.state.Debugf("Linked to existing client: %s", name)
		if m.Candidates > 1 {
			log.Warnf("client %q matched %d entries, linked to %s", in.ClientName, m.Candidates, m.Client.ID)
		}
	} else if in.ClientName != "" {
		empty := ""
		c := records.Client{
			ID:        e.ids.New("CLI"),
			Name:      name,
			Phone:     &empty,
			Address:   &empty,
			CreatedAt: e.now(),
		}
		e.state.AddClient(c)
		e.state.Debugf("Created new client: %s", name)
		e.metrics.RecordCreated(records.KindClient)
		outcomes = e.replicate(ctx, c, e.sinks.Local)
	}

	amount := 0.0
	if in.Total != nil {
		amount = *in.Total
	}
	desc := strings.Join(in.Items, ", ")
	if desc == "" {
		desc = DefaultDescription
	}

	draft := records.Invoice{
		ID:            e.ids.Invoice(),
		Intent:        invoiceIntent,
		CreatedAt:     e.now(),
		Client:        name,
		ClientPhone:   phone,
		ClientCompany: company,
		Amount:        amount,
		Description:   desc,
		Status:        records.StatusDraft,
		Items:         []string{},
	}
	e.state.SetDraft(draft)
	e.state.Debugf("Invoice draft: %s %.2f", draft.Client, draft.Amount)
	e.metrics.RecordCreated(records.KindInvoice)

	return Result{
		Kind:     intent.KindInvoice,
		Route:    RouteInvoiceReview,
		Record:   draft,
		Outcomes: outcomes,
		Message:  fmt.Sprintf("Invoice draft for %s", draft.Client),
	}
}

func (e *Engine) calendar(ctx context.Context, in intent.CreateCalendarEvent) Result {
	ev := records.CalendarEvent{
		ID:              e.ids.New("EVT"),
		Title:           in.Title,
		DurationMinutes: in.DurationMinutes,
	}
	if ev.Title == "" {
		ev.Title = DefaultEventTitle
	}
	if ev.DurationMinutes <= 0 {
		ev.DurationMinutes = DefaultEventDuration
	}
	if in.StartTime != nil {
		ev.StartTime = *in.StartTime
	} else {
		ev.StartTime = e.now()
	}

	e.state.AddEvent(ev)
	e.state.Debugf("Event Created: %s", ev.Title)
	e.metrics.RecordCreated(records.KindEvent)

	return Result{
		Kind:     intent.KindCalendar,
		Route:    RouteCalendar,
		Record:   ev,
		Outcomes: e.replicate(ctx, ev, e.sinks.Local),
		Message:  "Event created: " + ev.Title,
	}
}

func (e *Engine) task(ctx context.Context, in intent.CreateTask) Result {
	t := records.Task{
		ID:          e.ids.New("TSK"),
		Description: in.Description,
		Priority:    in.Priority,
		CreatedAt:   e.now(),
	}
	if t.Description == "" {
		t.Description = DefaultTaskText
	}
	if t.Priority == "" {
		t.Priority = records.PriorityMedium
	}

	e.state.AddTask(t)
	e.state.Debugf("Task Created: %s", t.Description)
	e.metrics.RecordCreated(records.KindTask)

	return Result{
		Kind:     intent.KindTask,
		Route:    RouteTasks,
		Record:   t,
		Outcomes: e.replicate(ctx, t, e.sinks.Local),
		Message:  "Task created: " + t.Description,
	}
}

func (e *Engine) client(ctx context.Context, in intent.CreateClient) Result {
	c := records.Client{
		ID:        e.ids.New("CLI"),
		Name:      in.Name,
		Phone:     in.Phone,
		Address:   in.Address,
		CreatedAt: e.now(),
	}
	if c.Name == "" {
		c.Name = DefaultContactName
	}

	e.state.AddClient(c)
	e.state.Debugf("Client Saved: %s", c.Name)
	e.metrics.RecordCreated(records.KindClient)

	return Result{
		Kind:     intent.KindClient,
		Route:    RouteClients,
		Record:   c,
		Outcomes: e.replicate(ctx, c, e.sinks.Local),
		Message:  "Client saved: " + c.Name,
	}
}

// Approve confirms the current invoice draft: it fills missing contact
// details from the registry, moves the invoice into the visible set and
// replicates it to every configured store.
func (e *Engine) Approve(ctx context.Context) (Result, error) {
	draft, ok := e.state.Draft()
	if !ok {
		return Result{}, ErrNoDraft
	}
	if draft.Amount <= 0 || strings.TrimSpace(draft.Client) == "" {
		return Result{Message: "Error: Missing Invoice Data (Amount or Client)"}, ErrInvalidDraft
	}

	if draft.ClientPhone == "" || draft.ClientCompany == "" {
		if m, ok := resolver.Resolve(e.state.Clients(), draft.Client); ok {
			if draft.ClientPhone == "" {
				draft.ClientPhone = m.Client.PhoneOrEmpty()
			}
			if draft.ClientCompany == "" {
				draft.ClientCompany = m.Client.Company
			}
		}
	}

	inv := draft
	inv.Status = records.StatusGenerated
	e.state.AddInvoice(inv)
	e.state.ClearDraft()
	e.state.Debugf("Invoice approved: %s", inv.ID)

	return Result{
		Kind:     intent.KindInvoice,
		Route:    RouteInvoices,
		Record:   inv,
		Outcomes: e.replicate(ctx, inv, e.sinks.Local, e.sinks.Remote, e.sinks.Webhook),
		Message:  fmt.Sprintf("Invoice %s saved", inv.ID),
	}, nil
}

// EditDraft applies fn to the current draft. The identity and draft status
// are preserved whatever fn does.
func (e *Engine) EditDraft(fn func(*records.Invoice)) error {
	ok := e.state.UpdateDraft(func(inv *records.Invoice) {
		id := inv.ID
		fn(inv)
		inv.ID = id
		inv.Status = records.StatusDraft
	})
	if !ok {
		return ErrNoDraft
	}
	return nil
}

// Reopen starts a new draft from a confirmed invoice. Confirmed invoices are
// never edited in place, so the draft gets a fresh number.
func (e *Engine) Reopen(id string) (records.Invoice, error) {
	inv, ok := e.state.Invoice(id)
	if !ok {
		return records.Invoice{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	draft := inv
	draft.ID = e.ids.Invoice()
	draft.Intent = invoiceIntent
	draft.Status = records.StatusDraft
	draft.CreatedAt = e.now()
	draft.Items = append([]string{}, inv.Items...)
	e.state.SetDraft(draft)
	e.state.Debugf("Reopened %s as %s", id, draft.ID)
	return draft, nil
}

// Discard drops the current draft without saving it.
func (e *Engine) Discard() {
	e.state.ClearDraft()
}

func (e *Engine) replicate(ctx context.Context, rec records.Record, sinks ...persist.Sink) <-chan persist.Outcome {
	var active []persist.Sink
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}
	if len(active) == 0 || e.repl == nil {
		return nil
	}
	return e.repl.Replicate(ctx, rec, active...)
}
