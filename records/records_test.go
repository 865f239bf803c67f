package records

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDGenPrefixes(t *testing.T) {
	g := NewIDGen()
	assert.Regexp(t, regexp.MustCompile(`^TSK-[0-9a-f]{9}$`), g.New("TSK"))
	assert.Regexp(t, regexp.MustCompile(`^INV-[1-9][0-9]{4}$`), g.Invoice())
}

func TestShortID(t *testing.T) {
	a, b := ShortID(), ShortID()
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{9}$`), a)
	assert.NotEqual(t, a, b)
}

func TestInvoiceIDsUnique(t *testing.T) {
	g := NewIDGen()
	seen := make(map[string]bool)
	for range 5000 {
		id := g.Invoice()
		assert.False(t, seen[id], "duplicate %s", id)
		seen[id] = true
	}
}

func TestReserveSkipsExisting(t *testing.T) {
	g := NewIDGen()
	for n := 10000; n <= 99998; n++ {
		g.invoices[n] = true
	}
	g.Reserve("INV-99999")
	// every 5-digit number is now taken
	assert.Regexp(t, regexp.MustCompile(`^INV-[0-9a-f]{9}$`), g.Invoice())

	g.Reserve("not-an-invoice")
	g.Reserve("INV-12")
}

func TestConfirmed(t *testing.T) {
	assert.False(t, Invoice{Status: StatusDraft}.Confirmed())
	assert.True(t, Invoice{Status: StatusGenerated}.Confirmed())
}

func TestPhoneOrEmpty(t *testing.T) {
	phone := "555-0100"
	assert.Equal(t, "", Client{}.PhoneOrEmpty())
	assert.Equal(t, phone, Client{Phone: &phone}.PhoneOrEmpty())
}
