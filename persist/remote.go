package persist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/butancak6/constructionos/records"
)

// remoteInvoice is the row shape of the cloud invoices table.
type remoteInvoice struct {
	ID            string  `json:"id"`
	Client        string  `json:"client"`
	Amount        float64 `json:"amount"`
	Status        string  `json:"status"`
	Description   string  `json:"description,omitempty"`
	ClientPhone   string  `json:"client_phone,omitempty"`
	ClientCompany string  `json:"client_company,omitempty"`
	PDFPath       *string `json:"pdf_path"`
}

// Remote inserts invoices into a PostgREST-style cloud database
// (POST /rest/v1/<table>).
type Remote struct {
	client *resty.Client
	table  string
}

func NewRemote(baseURL, apiKey string) *Remote {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(15*time.Second).
		SetHeader("apikey", apiKey).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Prefer", "return=minimal")
	return &Remote{client: c, table: "invoices"}
}

func (r *Remote) Name() string { return "remote" }

func (r *Remote) Persist(ctx context.Context, rec records.Record) error {
	inv, ok := rec.(records.Invoice)
	if !ok {
		return fmt.Errorf("%w: remote: only invoices are replicated, got %s", ErrPersistenceFailed, rec.RecordKind())
	}
	return r.insert(ctx, remoteInvoice{
		ID:            inv.ID,
		Client:        inv.Client,
		Amount:        inv.Amount,
		Status:        inv.Status,
		Description:   inv.Description,
		ClientPhone:   inv.ClientPhone,
		ClientCompany: inv.ClientCompany,
	})
}

// Ping writes a throwaway test row.
func (r *Remote) Ping(ctx context.Context) error {
	return r.insert(ctx, map[string]any{
		"client": "TEST_PING",
		"amount": 1,
		"status": "test",
		"id":     fmt.Sprintf("TEST-%d", time.Now().UnixMilli()),
	})
}

func (r *Remote) insert(ctx context.Context, body any) error {
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(body).
		Post("/rest/v1/" + r.table)
	if err != nil {
		return fmt.Errorf("%w: remote: %w", ErrPersistenceFailed, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: remote: status %d: %s", ErrPersistenceFailed, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return nil
}

// Webhook POSTs every record as JSON to a fixed URL.
type Webhook struct {
	client *resty.Client
	url    string
}

func NewWebhook(url string) *Webhook {
	c := resty.New().
		SetTimeout(15*time.Second).
		SetHeader("Content-Type", "application/json")
	return &Webhook{client: c, url: url}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Persist(ctx context.Context, rec records.Record) error {
	return w.post(ctx, rec)
}

func (w *Webhook) Ping(ctx context.Context) error {
	return w.post(ctx, map[string]any{"test": true})
}

func (w *Webhook) post(ctx context.Context, body any) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("%w: webhook: %w", ErrPersistenceFailed, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: webhook: status %d", ErrPersistenceFailed, resp.StatusCode())
	}
	return nil
}
