package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/snapspend-backend/pkg/receipt"
)

// ListOptions filters and pages ListReceipts.
type ListOptions struct {
	From   *time.Time
	To     *time.Time
	Limit  int
	Cursor string
}

// ReceiptPage is one page of receipts, newest first.
type ReceiptPage struct {
	Items      []receipt.Receipt `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type receiptPayload struct {
	ID             uuid.UUID       `json:"id"`
	StoreName      string          `json:"store_name"`
	StoreAddress   string          `json:"store_address"`
	ReceiptName    string          `json:"receipt_name"`
	PurchaseDate   time.Time       `json:"purchase_date"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	TotalTax       decimal.Decimal `json:"total_tax"`
	Currency       string          `json:"currency"`
	PaymentMethod  string          `json:"payment_method"`
	ImageURLs      []string        `json:"image_urls"`
	LogoSearchTerm *string         `json:"logo_search_term,omitempty"`
	Items          []receipt.Item  `json:"items"`
}

func toPayload(r receipt.Receipt) receiptPayload {
	return receiptPayload{
		ID:             r.ID,
		StoreName:      r.StoreName,
		StoreAddress:   r.StoreAddress,
		ReceiptName:    r.ReceiptName,
		PurchaseDate:   r.PurchaseDate,
		TotalAmount:    r.TotalAmount,
		TotalTax:       r.TotalTax,
		Currency:       r.Currency,
		PaymentMethod:  r.PaymentMethod,
		ImageURLs:      r.ImageURLs,
		LogoSearchTerm: r.LogoSearchTerm,
		Items:          r.Items,
	}
}

// ListReceipts returns one page of the signed-in user's receipts.
func (c *Client) ListReceipts(ctx context.Context, opts ListOptions) (*ReceiptPage, error) {
	req, _ := jsonRequest(http.MethodGet, "/receipts", nil)
	req.query = rangeQuery(opts.From, opts.To)
	if opts.Limit > 0 {
		req.query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		req.query.Set("cursor", opts.Cursor)
	}
	var page ReceiptPage
	if err := c.do(ctx, req, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// CreateReceipt stores r remotely, keeping its id.
func (c *Client) CreateReceipt(ctx context.Context, r receipt.Receipt) (*receipt.Receipt, error) {
	req, err := jsonRequest(http.MethodPost, "/receipts", toPayload(r))
	if err != nil {
		return nil, err
	}
	var out receipt.Receipt
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReplaceReceipt overwrites the whole stored record with r.
func (c *Client) ReplaceReceipt(ctx context.Context, r receipt.Receipt) (*receipt.Receipt, error) {
	req, err := jsonRequest(http.MethodPut, "/receipts/"+r.ID.String(), toPayload(r))
	if err != nil {
		return nil, err
	}
	var out receipt.Receipt
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteReceipt removes a stored receipt.
func (c *Client) DeleteReceipt(ctx context.Context, id uuid.UUID) error {
	req, _ := jsonRequest(http.MethodDelete, "/receipts/"+id.String(), nil)
	return c.do(ctx, req, nil)
}

// ScanReceipt uploads a photo for extraction. With save set the backend also
// stores the result; otherwise the draft is only returned.
func (c *Client) ScanReceipt(ctx context.Context, image []byte, fileName, mimeType string, save bool) (*receipt.Receipt, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, fileName))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("build scan form: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("build scan form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("build scan form: %w", err)
	}

	body := buf.Bytes()
	req := request{
		method:      http.MethodPost,
		path:        "/receipts/scan",
		contentType: writer.FormDataContentType(),
		replay:      func() io.Reader { return bytes.NewReader(body) },
		auth:        true,
		query:       url.Values{},
	}
	req.body = req.replay()
	if save {
		req.query.Set("save", "true")
	}

	var out receipt.Receipt
	if err := c.do(ctx, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func rangeQuery(from, to *time.Time) url.Values {
	q := url.Values{}
	if from != nil {
		q.Set("from", from.UTC().Format(time.RFC3339))
	}
	if to != nil {
		q.Set("to", to.UTC().Format(time.RFC3339))
	}
	return q
}
