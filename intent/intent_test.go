package intent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/butancak6/constructionos/records"
)

func TestParseInvoice(t *testing.T) {
	in, err := Parse([]byte(`{"intent":"create_invoice","client_name":" Jason Park ","items":["HVAC repair","", "filter"],"total":250}`))
	require.NoError(t, err)

	inv, ok := in.(CreateInvoice)
	require.True(t, ok, "got %T", in)
	assert.Equal(t, "Jason Park", inv.ClientName)
	assert.Equal(t, []string{"HVAC repair", "filter"}, inv.Items)
	require.NotNil(t, inv.Total)
	assert.Equal(t, 250.0, *inv.Total)
	assert.Equal(t, KindInvoice, inv.Kind())
}

func TestParseInvoiceLooseTypes(t *testing.T) {
	in, err := Parse([]byte(`{"intent":"create_invoice","client_name":null,"items":"drywall","total":"99.5"}`))
	require.NoError(t, err)
	inv := in.(CreateInvoice)
	assert.Equal(t, "", inv.ClientName)
	assert.Equal(t, []string{"drywall"}, inv.Items)
	require.NotNil(t, inv.Total)
	assert.Equal(t, 99.5, *inv.Total)
}

func TestParseInvoiceMissingTotal(t *testing.T) {
	in, err := Parse([]byte(`{"intent":"create_invoice","client_name":"New Guy"}`))
	require.NoError(t, err)
	assert.Nil(t, in.(CreateInvoice).Total)
}

func TestParseCalendar(t *testing.T) {
	in, err := Parse([]byte(`{"intent":"create_calendar","title":"Site visit","start_time":"2026-10-16T09:30:00Z","duration_minutes":45}`))
	require.NoError(t, err)
	ev := in.(CreateCalendarEvent)
	assert.Equal(t, "Site visit", ev.Title)
	assert.Equal(t, 45, ev.DurationMinutes)
	require.NotNil(t, ev.StartTime)
	assert.True(t, ev.StartTime.Equal(time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)))
}

func TestParseCalendarDefaultsLeftZero(t *testing.T) {
	in, err := Parse([]byte(`{"intent":"create_calendar"}`))
	require.NoError(t, err)
	ev := in.(CreateCalendarEvent)
	assert.Empty(t, ev.Title)
	assert.Nil(t, ev.StartTime)
	assert.Zero(t, ev.DurationMinutes)
}

func TestParseTask(t *testing.T) {
	tests := []struct {
		raw  string
		want records.Priority
	}{
		{`{"intent":"create_task","description":"Call supplier","priority":"High"}`, records.PriorityHigh},
		{`{"intent":"create_task","description":"Call supplier","priority":"low"}`, records.PriorityLow},
		{`{"intent":"create_task","description":"Call supplier","priority":"urgent"}`, records.PriorityHigh},
		{`{"intent":"create_task","description":"Call supplier"}`, ""},
	}
	for _, tt := range tests {
		in, err := Parse([]byte(tt.raw))
		require.NoError(t, err, tt.raw)
		task := in.(CreateTask)
		assert.Equal(t, "Call supplier", task.Description)
		assert.Equal(t, tt.want, task.Priority, tt.raw)
	}
}

func TestParseClientKeepsAbsentFields(t *testing.T) {
	in, err := Parse([]byte(`{"intent":"create_client","name":"Maria Lopez","phone":"555-0100","address":null}`))
	require.NoError(t, err)
	c := in.(CreateClient)
	assert.Equal(t, "Maria Lopez", c.Name)
	require.NotNil(t, c.Phone)
	assert.Equal(t, "555-0100", *c.Phone)
	assert.Nil(t, c.Address)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"not json", `here you go: {intent}`, ErrMalformed},
		{"array", `[1,2]`, ErrMalformed},
		{"null", `null`, ErrMalformed},
		{"unknown tag", `{"intent":"create_expense","amount":4}`, ErrUnrecognizedIntent},
		{"missing tag", `{"client_name":"x"}`, ErrUnrecognizedIntent},
		{"bad priority", `{"intent":"create_task","priority":"whenever"}`, ErrMalformed},
		{"negative total", `{"intent":"create_invoice","total":-5}`, ErrMalformed},
		{"bad total", `{"intent":"create_invoice","total":"lots"}`, ErrMalformed},
		{"bad start", `{"intent":"create_calendar","start_time":"next tuesday"}`, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseTimeLayouts(t *testing.T) {
	for _, s := range []string{
		"2026-10-16T09:30:00+02:00",
		"2026-10-16T09:30:00.000Z",
		"2026-10-16T09:30:00",
		"2026-10-16T09:30",
		"2026-10-16 09:30",
		"2026-10-16",
	} {
		_, err := ParseTime(s)
		assert.NoError(t, err, s)
	}
}
