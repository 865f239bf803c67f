// Package intent converts the classifier's loosely-typed JSON into a closed
// set of typed commands. Nothing downstream ever sees the raw map.
package intent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/butancak6/constructionos/records"
)

type Kind string

const (
	KindInvoice  Kind = "create_invoice"
	KindCalendar Kind = "create_calendar"
	KindTask     Kind = "create_task"
	KindClient   Kind = "create_client"
)

var (
	// ErrMalformed covers output that is not a JSON object or whose fields
	// have the wrong shape.
	ErrMalformed = errors.New("malformed classifier output")
	// ErrUnrecognizedIntent is returned for a well-formed object whose tag
	// is not one of the known kinds.
	ErrUnrecognizedIntent = errors.New("unrecognized intent")
)

// Intent is one of CreateInvoice, CreateCalendarEvent, CreateTask or
// CreateClient. Absent optional fields stay zero/nil here; defaults are
// applied by the dispatcher.
type Intent interface {
	Kind() Kind
	isIntent()
}

type CreateInvoice struct {
	ClientName string
	Items      []string
	Total      *float64
}

type CreateCalendarEvent struct {
	Title           string
	StartTime       *time.Time
	DurationMinutes int
}

type CreateTask struct {
	Description string
	Priority    records.Priority
}

type CreateClient struct {
	Name    string
	Phone   *string
	Address *string
}

func (CreateInvoice) Kind() Kind       { return KindInvoice }
func (CreateCalendarEvent) Kind() Kind { return KindCalendar }
func (CreateTask) Kind() Kind          { return KindTask }
func (CreateClient) Kind() Kind        { return KindClient }

func (CreateInvoice) isIntent()       {}
func (CreateCalendarEvent) isIntent() {}
func (CreateTask) isIntent()          {}
func (CreateClient) isIntent()        {}

type invoiceWire struct {
	ClientName *string  `mapstructure:"client_name"`
	Items      []string `mapstructure:"items" validate:"omitempty,dive,max=500"`
	Total      *float64 `mapstructure:"total" validate:"omitempty,gte=0"`
}

type calendarWire struct {
	Title           *string `mapstructure:"title" validate:"omitempty,max=500"`
	StartTime       *string `mapstructure:"start_time"`
	DurationMinutes *int    `mapstructure:"duration_minutes" validate:"omitempty,gte=0,lte=10080"`
}

type taskWire struct {
	Description *string `mapstructure:"description" validate:"omitempty,max=2000"`
	Priority    *string `mapstructure:"priority" validate:"omitempty,oneof=High Medium Low"`
}

type clientWire struct {
	Name    *string `mapstructure:"name" validate:"omitempty,max=500"`
	Phone   *string `mapstructure:"phone"`
	Address *string `mapstructure:"address"`
}

var validate = validator.New()

// Parse validates raw classifier output and returns the typed intent.
func Parse(raw []byte) (Intent, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformed)
	}
	return FromMap(m)
}

// FromMap is Parse for an already-decoded object.
func FromMap(m map[string]any) (Intent, error) {
	tag, _ := m["intent"].(string)
	switch Kind(strings.TrimSpace(tag)) {
	case KindInvoice:
		var w invoiceWire
		if err := decode(m, &w); err != nil {
			return nil, err
		}
		return CreateInvoice{
			ClientName: trimmed(w.ClientName),
			Items:      nonEmpty(w.Items),
			Total:      w.Total,
		}, nil

	case KindCalendar:
		var w calendarWire
		if err := decode(m, &w); err != nil {
			return nil, err
		}
		in := CreateCalendarEvent{Title: trimmed(w.Title)}
		if w.DurationMinutes != nil {
			in.DurationMinutes = *w.DurationMinutes
		}
		if s := trimmed(w.StartTime); s != "" {
			t, err := ParseTime(s)
			if err != nil {
				return nil, fmt.Errorf("%w: start_time: %w", ErrMalformed, err)
			}
			in.StartTime = &t
		}
		return in, nil

	case KindTask:
		if p, ok := m["priority"].(string); ok {
			m["priority"] = normalizePriority(p)
		}
		var w taskWire
		if err := decode(m, &w); err != nil {
			return nil, err
		}
		return CreateTask{
			Description: trimmed(w.Description),
			Priority:    records.Priority(trimmed(w.Priority)),
		}, nil

	case KindClient:
		var w clientWire
		if err := decode(m, &w); err != nil {
			return nil, err
		}
		return CreateClient{
			Name:    trimmed(w.Name),
			Phone:   w.Phone,
			Address: w.Address,
		}, nil
	}

	if tag == "" {
		return nil, fmt.Errorf("%w: missing intent tag", ErrUnrecognizedIntent)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnrecognizedIntent, tag)
}

func decode(m map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(m); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime accepts the ISO-8601 variants language models tend to emit.
// Values without a zone are read as local time.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

var prioritySynonyms = map[string]string{
	"urgent":   "High",
	"critical": "High",
	"asap":     "High",
	"normal":   "Medium",
	"med":      "Medium",
}

func normalizePriority(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return p
	}
	if s, ok := prioritySynonyms[strings.ToLower(p)]; ok {
		return s
	}
	return strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func nonEmpty(items []string) []string {
	var out []string
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}
