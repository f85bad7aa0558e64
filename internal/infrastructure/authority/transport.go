package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kirillkom/prn-reconciler/internal/core/domain"
)

const (
	maxDetailsBody  = 1 << 20
	maxDocumentBody = 32 << 20
	maxErrorBody    = 2048

	acceptHeader = "application/json, text/plain, */*"
	pdfMediaType = "application/pdf"
)

// HTTPStatusError is a non-success response from the authority.
type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "authority status error"
	}
	return fmt.Sprintf("authority %s status: %s", e.Operation, e.Detail())
}

// Detail is the raw body the authority sent, or the status line when it sent
// none.
func (e *HTTPStatusError) Detail() string {
	if body := strings.TrimSpace(e.Body); body != "" {
		return body
	}
	text := http.StatusText(e.StatusCode)
	if parts := strings.SplitN(e.Status, " ", 2); len(parts) == 2 {
		text = parts[1]
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, text)
}

// ContentTypeError is a 200 response that was not a PDF.
type ContentTypeError struct {
	ContentType string
	Body        string
}

func (e *ContentTypeError) Error() string {
	return "authority document: unexpected content type " + e.ContentType
}

func (e *ContentTypeError) Detail() string {
	if body := strings.TrimSpace(e.Body); body != "" {
		return body
	}
	return fmt.Sprintf("unexpected content type %q", e.ContentType)
}

type parseError struct {
	err error
}

func (e *parseError) Error() string { return "failed to parse response data" }
func (e *parseError) Unwrap() error { return e.err }

// detailsPayload mirrors the authority's details response.
type detailsPayload struct {
	PRN         looseText `json:"prn"`
	Status      string    `json:"prnStatus"`
	TotalAmount looseText `json:"totalAmount"`
	Currency    looseText `json:"currencyCode"`
	Taxpayer    looseText `json:"taxpayerName"`
	Narration   looseText `json:"narration"`
	PRNDate     looseText `json:"prnDate"`
	ReceiptDate looseText `json:"receiptDate"`

	raw string
}

func (p detailsPayload) toDomain(settled bool) domain.PaymentDetails {
	out := domain.PaymentDetails{
		PRN:       string(p.PRN),
		Amount:    string(p.TotalAmount),
		Currency:  string(p.Currency),
		PayerName: string(p.Taxpayer),
		Narration: string(p.Narration),
		IssueDate: string(p.PRNDate),
	}
	if settled {
		out.SettlementDate = string(p.ReceiptDate)
	}
	return out
}

// looseText accepts JSON strings, numbers and booleans; amounts come back as
// either depending on the PRN.
type looseText string

func (t *looseText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = looseText(s)
		return nil
	}
	*t = looseText(data)
	return nil
}

func (c *Client) fetchDetails(ctx context.Context, identifier string) (detailsPayload, error) {
	ctx, span := c.tracer.Start(ctx, "authority.details", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	var payload detailsPayload
	err := c.execute(ctx, "authority.details", func(ctx context.Context) error {
		if err := c.wait(ctx); err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(ctx, c.detailsTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+detailsPath+url.PathEscape(identifier), nil)
		if err != nil {
			return fmt.Errorf("create details request: %w", err)
		}
		c.setHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("authority details request: %w", err)
		}
		defer resp.Body.Close()
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

		if resp.StatusCode != http.StatusOK {
			return statusError("details", resp)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxDetailsBody))
		if err != nil {
			return fmt.Errorf("read details response: %w", err)
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return &parseError{err: err}
		}
		payload.raw = string(body)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "details lookup failed")
	}
	return payload, err
}

func (c *Client) fetchDocument(ctx context.Context, identifier string) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "authority.document", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	var document []byte
	err := c.execute(ctx, "authority.document", func(ctx context.Context) error {
		if err := c.wait(ctx); err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(ctx, c.documentTimeout)
		defer cancel()

		body, err := json.Marshal(map[string]string{"prn": identifier})
		if err != nil {
			return fmt.Errorf("marshal document request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+documentPath, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create document request: %w", err)
		}
		c.setHeaders(req)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("authority document request: %w", err)
		}
		defer resp.Body.Close()
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

		if resp.StatusCode != http.StatusOK {
			return statusError("document", resp)
		}
		contentType := resp.Header.Get("Content-Type")
		if mediaType, _, _ := mime.ParseMediaType(contentType); mediaType != pdfMediaType {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return &ContentTypeError{ContentType: contentType, Body: string(snippet)}
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBody+1))
		if err != nil {
			return fmt.Errorf("read document response: %w", err)
		}
		if len(data) > maxDocumentBody {
			return fmt.Errorf("document exceeds %d bytes", maxDocumentBody)
		}
		document = data
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "document retrieval failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("document.bytes", len(document)))
	return document, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", acceptHeader)
}

func statusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &HTTPStatusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(body),
	}
}

// unwrapTransport strips the url.Error envelope so the detail reads like the
// underlying network failure.
func unwrapTransport(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err
	}
	return err
}
