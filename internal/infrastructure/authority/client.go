package authority

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/kirillkom/prn-reconciler/internal/core/domain"
	"github.com/kirillkom/prn-reconciler/internal/infrastructure/resilience"
)

const (
	DefaultBaseURL         = "https://portal-customs.zra.org.zm"
	DefaultUserAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36"
	DefaultDetailsTimeout  = 15 * time.Second
	DefaultDocumentTimeout = 30 * time.Second

	detailsPath  = "/api/v1/prn/details/"
	documentPath = "/api/v1/customs/receipts/generate-by-prn"

	statusPaid    = "PAID"
	statusPending = "PENDING"

	tracerName = "github.com/kirillkom/prn-reconciler/internal/infrastructure/authority"
)

type Options struct {
	BaseURL         string
	DetailsTimeout  time.Duration
	DocumentTimeout time.Duration
	// InsecureSkipVerify turns off certificate validation for the authority.
	// The portal has served broken chains in the past; operators who can
	// trust its certificate should set this to false.
	InsecureSkipVerify bool
	UserAgent          string
	// RateLimit caps outbound requests per second; 0 disables the limiter.
	RateLimit float64
	Burst     int
	Executor  *resilience.Executor
	// HTTPClient replaces the built-in client, TLS settings included.
	HTTPClient *http.Client
}

// Client runs the two-phase PRN protocol: a details lookup and, for paid
// PRNs, a receipt download.
type Client struct {
	baseURL         string
	detailsTimeout  time.Duration
	documentTimeout time.Duration
	userAgent       string
	httpClient      *http.Client
	limiter         *rate.Limiter
	executor        *resilience.Executor
	tracer          trace.Tracer
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	detailsTimeout := opts.DetailsTimeout
	if detailsTimeout <= 0 {
		detailsTimeout = DefaultDetailsTimeout
	}
	documentTimeout := opts.DocumentTimeout
	if documentTimeout <= 0 {
		documentTimeout = DefaultDocumentTimeout
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: opts.InsecureSkipVerify, //nolint:gosec // operator-controlled compatibility flag
		}
		httpClient = &http.Client{Transport: transport}
		if opts.InsecureSkipVerify {
			slog.Warn("authority_tls_verification_disabled", "base_url", baseURL)
		}
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &Client{
		baseURL:         baseURL,
		detailsTimeout:  detailsTimeout,
		documentTimeout: documentTimeout,
		userAgent:       userAgent,
		httpClient:      httpClient,
		limiter:         limiter,
		executor:        opts.Executor,
		tracer:          otel.Tracer(tracerName),
	}
}

// Verify resolves identifier into exactly one outcome. It performs one
// details call and at most one document call, and never retries.
func (c *Client) Verify(ctx context.Context, identifier string) domain.Outcome {
	ctx, span := c.tracer.Start(ctx, "authority.verify",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("prn.id", identifier)),
	)
	defer span.End()

	outcome := c.verify(ctx, identifier)
	span.SetAttributes(attribute.String("prn.status", string(outcome.Status())))
	if outcome.Status().Failed() {
		span.SetStatus(codes.Error, string(outcome.Status()))
	}
	return outcome
}

func (c *Client) verify(ctx context.Context, identifier string) domain.Outcome {
	details, err := c.fetchDetails(ctx, identifier)
	if err != nil {
		return detailsFailure(err)
	}

	reported := strings.TrimSpace(details.Status)
	switch reported {
	case statusPending:
		return domain.UnpaidOutcome{Details: details.toDomain(false)}
	case statusPaid:
	default:
		return domain.UnknownOutcome{ReportedStatus: reported, Payload: details.raw}
	}

	document, err := c.fetchDocument(ctx, identifier)
	if err != nil {
		return domain.ErrorOutcome{Phase: domain.PhaseDocument, Reason: describeFailure(err)}
	}

	paid := details.toDomain(true)
	paid.PageCount = pageCount(document)
	return domain.PaidOutcome{Document: document, Details: paid}
}

// detailsFailure classifies a failed lookup. A missed deadline or an open
// breaker says nothing about the identifier, so only those become Error.
func detailsFailure(err error) domain.Outcome {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || resilience.IsCircuitOpen(err) {
		return domain.ErrorOutcome{Phase: domain.PhaseDetails, Reason: describeFailure(err)}
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return domain.InvalidOutcome{StatusCode: statusErr.StatusCode, Reason: statusErr.Detail()}
	}
	return domain.InvalidOutcome{Reason: describeFailure(err)}
}

func describeFailure(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "request timeout - server took too long to respond"
	case errors.Is(err, context.Canceled):
		return "request cancelled"
	case resilience.IsCircuitOpen(err):
		return "authority unavailable: too many recent failures"
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Detail()
	}
	var parseErr *parseError
	if errors.As(err, &parseErr) {
		return parseErr.Error()
	}
	var contentErr *ContentTypeError
	if errors.As(err, &contentErr) {
		return contentErr.Detail()
	}
	return unwrapTransport(err).Error()
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// Wait refuses early when the next token lands past the deadline.
		return fmt.Errorf("authority rate limit: %w", context.DeadlineExceeded)
	}
	return nil
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.executor == nil {
		return fn(ctx)
	}
	return c.executor.Execute(ctx, operation, fn, classifyAuthorityError)
}
