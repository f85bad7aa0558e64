package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/kirillkom/prn-reconciler/internal/core/domain"
	"github.com/kirillkom/prn-reconciler/internal/infrastructure/resilience"
)

const workerQueueGroup = "prn-workers"

type Options struct {
	EventsSubject        string
	RequestsSubject      string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

// Bus carries snapshot events out and batch requests in.
type Bus struct {
	conn            *nats.Conn
	eventsSubject   string
	requestsSubject string
	executor        *resilience.Executor
	now             func() time.Time
}

func New(url string, options Options) (*Bus, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("prn-reconciler"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Bus{
		conn:            conn,
		eventsSubject:   options.EventsSubject,
		requestsSubject: options.RequestsSubject,
		executor:        options.ResilienceExecutor,
		now:             func() time.Time { return time.Now().UTC() },
	}, nil
}

func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

// Publish emits snap as a CloudEvent on the events subject.
func (b *Bus) Publish(ctx context.Context, snap domain.Snapshot) error {
	if b.eventsSubject == "" {
		return nil
	}
	payload, err := encodeSnapshot(snap, b.now())
	if err != nil {
		return err
	}
	return b.publish(ctx, "nats.publish_snapshot", b.eventsSubject, payload)
}

// RequestBatch hands identifiers to whichever worker picks them up first.
func (b *Bus) RequestBatch(ctx context.Context, req BatchRequest) (string, error) {
	if b.requestsSubject == "" {
		return "", errors.New("nats: requests subject is not configured")
	}
	if len(req.Identifiers) == 0 {
		return "", domain.WrapError(domain.ErrInvalidInput, "request batch", errors.New("no identifiers"))
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	payload, err := encodeRequest(req, b.now())
	if err != nil {
		return "", err
	}
	if err := b.publish(ctx, "nats.publish_request", b.requestsSubject, payload); err != nil {
		return "", err
	}
	if err := b.conn.FlushWithContext(ctx); err != nil {
		return "", fmt.Errorf("nats flush: %w", err)
	}
	return req.RequestID, nil
}

func (b *Bus) publish(ctx context.Context, operation, subject string, payload []byte) error {
	call := func(_ context.Context) error {
		if err := b.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if b.executor != nil {
		err = b.executor.Execute(ctx, operation, call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(operation, err)
	}
	return nil
}

// SubscribeBatchRequests delivers requests one at a time until ctx ends, then
// drains the subscription.
func (b *Bus) SubscribeBatchRequests(ctx context.Context, handler func(context.Context, BatchRequest) error) error {
	if b.requestsSubject == "" {
		return errors.New("nats: requests subject is not configured")
	}
	sub, err := b.conn.QueueSubscribe(b.requestsSubject, workerQueueGroup, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		req, err := decodeRequest(msg.Data)
		if err != nil {
			slog.Warn("batch_request_rejected", "subject", msg.Subject, "error", err)
			return
		}
		if err := handler(ctx, req); err != nil {
			slog.Error("batch_request_failed", "request_id", req.RequestID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	slog.Info("batch_requests_subscribed", "subject", b.requestsSubject, "queue", workerQueueGroup)

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := b.conn.FlushTimeout(5 * time.Second); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
