package clipboard

import (
	"fmt"
	"strings"

	cb "github.com/atotto/clipboard"

	"github.com/butancak6/constructionos/records"
)

func Read() (string, error) {
	return cb.ReadAll()
}

func Copy(text string) error {
	return cb.WriteAll(text)
}

// Summary renders an invoice as plain text for pasting into a message.
func Summary(inv records.Invoice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Invoice %s\n", inv.ID)
	fmt.Fprintf(&b, "Client: %s\n", inv.Client)
	if inv.ClientCompany != "" {
		fmt.Fprintf(&b, "Company: %s\n", inv.ClientCompany)
	}
	if inv.ClientPhone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", inv.ClientPhone)
	}
	fmt.Fprintf(&b, "For: %s\n", inv.Description)
	fmt.Fprintf(&b, "Amount: $%.2f\n", inv.Amount)
	fmt.Fprintf(&b, "Status: %s", inv.Status)
	return b.String()
}

// CopyInvoice puts the invoice summary on the clipboard.
func CopyInvoice(inv records.Invoice) error {
	return Copy(Summary(inv))
}
