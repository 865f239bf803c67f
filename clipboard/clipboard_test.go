package clipboard

import (
	"strings"
	"testing"

	cb "github.com/atotto/clipboard"

	"github.com/butancak6/constructionos/records"
)

func TestSummary(t *testing.T) {
	got := Summary(records.Invoice{
		ID:          "INV-12345",
		Client:      "Jason Park",
		ClientPhone: "555-0100",
		Description: "HVAC repair, filter",
		Amount:      250,
		Status:      records.StatusDraft,
	})
	for _, want := range []string{"Invoice INV-12345", "Client: Jason Park", "Phone: 555-0100", "For: HVAC repair, filter", "Amount: $250.00", "Status: draft"} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Company:") {
		t.Errorf("empty company should be omitted:\n%s", got)
	}
}

func TestCopyRoundTrip(t *testing.T) {
	if cb.Unsupported {
		t.Skip("no clipboard available")
	}
	if err := Copy("constructionos clipboard test"); err != nil {
		t.Skipf("clipboard not writable: %v", err)
	}
	got, err := Read()
	if err != nil {
		t.Fatal(err)
	}
	if got != "constructionos clipboard test" {
		t.Errorf("got %q", got)
	}
}
