package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"fundchain/core/types"
)

const (
	// SignatureHeader carries "sha256=<hex hmac>" of the body.
	SignatureHeader = "X-Fund-Signature"
	// DeliveryHeader carries the delivery id, stable across retries.
	DeliveryHeader = "X-Fund-Delivery"

	defaultMaxAttempts = 5
	defaultMinBackoff  = 2 * time.Second
	defaultMaxBackoff  = 30 * time.Second
	defaultQueueSize   = 64
)

// ErrClosed is returned when publishing to a closed dispatcher.
var ErrClosed = errors.New("webhook: dispatcher closed")

// ErrQueueFull is returned when the delivery queue cannot accept a batch.
var ErrQueueFull = errors.New("webhook: queue full")

// Payload is the JSON body of a delivery.
type Payload struct {
	DeliveryID string                 `json:"deliveryId"`
	SentAt     time.Time              `json:"sentAt"`
	Events     []types.CommittedEvent `json:"events"`
}

// Dispatcher forwards committed events to an HTTP endpoint with HMAC
// signatures, retrying failed deliveries with exponential backoff.
type Dispatcher struct {
	endpoint    string
	secret      []byte
	client      *http.Client
	filter      map[string]struct{}
	logger      *slog.Logger
	maxAttempts int
	minBackoff  time.Duration
	maxBackoff  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	queue  chan delivery
	wg     sync.WaitGroup
}

type delivery struct {
	id   string
	body []byte
}

// Option mutates dispatcher configuration.
type Option func(*Dispatcher)

// WithHTTPClient overrides the HTTP client used for deliveries.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) {
		if client != nil {
			d.client = client
		}
	}
}

// WithRetryPolicy overrides the retry configuration.
func WithRetryPolicy(maxAttempts int, minBackoff, maxBackoff time.Duration) Option {
	return func(d *Dispatcher) {
		if maxAttempts > 0 {
			d.maxAttempts = maxAttempts
		}
		if minBackoff > 0 {
			d.minBackoff = minBackoff
		}
		if maxBackoff >= minBackoff && maxBackoff > 0 {
			d.maxBackoff = maxBackoff
		}
	}
}

// WithEventTypes restricts deliveries to the listed event types.
func WithEventTypes(eventTypes ...string) Option {
	return func(d *Dispatcher) {
		for _, t := range eventTypes {
			if t = strings.TrimSpace(t); t != "" {
				if d.filter == nil {
					d.filter = map[string]struct{}{}
				}
				d.filter[t] = struct{}{}
			}
		}
	}
}

// WithLogger sets the logger used for failed deliveries.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher constructs a dispatcher and spawns the worker goroutine.
func NewDispatcher(endpoint string, secret []byte, opts ...Option) (*Dispatcher, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("webhook: endpoint required")
	}
	if len(secret) == 0 {
		return nil, errors.New("webhook: secret required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		endpoint:    endpoint,
		secret:      append([]byte(nil), secret...),
		client:      &http.Client{Timeout: 15 * time.Second},
		logger:      slog.Default(),
		maxAttempts: defaultMaxAttempts,
		minBackoff:  defaultMinBackoff,
		maxBackoff:  defaultMaxBackoff,
		ctx:         ctx,
		cancel:      cancel,
		queue:       make(chan delivery, defaultQueueSize),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "webhooks")
	d.wg.Add(1)
	go d.worker()
	return d, nil
}

// Name identifies the sink in executor logs.
func (d *Dispatcher) Name() string { return "webhooks" }

// Publish enqueues the events of batch that pass the type filter. It never
// blocks on the network; a full queue is reported as ErrQueueFull.
func (d *Dispatcher) Publish(_ context.Context, batch []types.CommittedEvent) error {
	if d == nil {
		return errors.New("webhook: dispatcher not initialised")
	}
	selected := make([]types.CommittedEvent, 0, len(batch))
	for _, evt := range batch {
		if d.filter != nil {
			if _, ok := d.filter[evt.Type]; !ok {
				continue
			}
		}
		selected = append(selected, evt)
	}
	if len(selected) == 0 {
		return nil
	}
	payload := Payload{DeliveryID: uuid.NewString(), SentAt: time.Now().UTC(), Events: selected}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	select {
	case <-d.ctx.Done():
		return ErrClosed
	default:
	}
	select {
	case d.queue <- delivery{id: payload.DeliveryID, body: body}:
		return nil
	case <-d.ctx.Done():
		return ErrClosed
	default:
		queueMetrics().recordDropped("queue_full", len(selected))
		return ErrQueueFull
	}
}

// Close stops the dispatcher and waits for the worker to exit. Queued
// deliveries that have not started are dropped.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.cancel()
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.queue:
			d.process(job)
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) process(job delivery) {
	backoff := d.minBackoff
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(d.ctx, d.client.Timeout)
		err := d.send(ctx, job)
		cancel()
		if err == nil {
			return
		}
		if attempt >= d.maxAttempts {
			d.logger.Warn("webhook delivery abandoned", "delivery", job.id, "attempts", attempt, "error", err)
			queueMetrics().recordDropped("attempts_exhausted", 1)
			return
		}
		select {
		case <-time.After(backoff):
		case <-d.ctx.Done():
			return
		}
		backoff = nextBackoff(backoff, d.maxBackoff)
	}
}

func (d *Dispatcher) send(ctx context.Context, job delivery) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(job.body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(DeliveryHeader, job.id)
	req.Header.Set(SignatureHeader, Sign(d.secret, job.body))
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook: delivery failed with status %d", resp.StatusCode)
}

// Sign returns the signature header value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature header produced by Sign.
func Verify(secret, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(strings.TrimSpace(signature)))
}

var (
	metricsOnce        sync.Once
	sharedQueueMetrics *dispatcherMetrics
)

type dispatcherMetrics struct {
	dropped metric.Int64Counter
}

func queueMetrics() *dispatcherMetrics {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("fundchain/webhooks")
		counter, err := meter.Int64Counter("fund.webhooks.dropped")
		if err != nil {
			counter, _ = noop.NewMeterProvider().Meter("fundchain/webhooks").Int64Counter("fund.webhooks.dropped")
		}
		sharedQueueMetrics = &dispatcherMetrics{dropped: counter}
	})
	return sharedQueueMetrics
}

func (m *dispatcherMetrics) recordDropped(reason string, count int) {
	if m == nil || m.dropped == nil || count <= 0 {
		return
	}
	m.dropped.Add(context.Background(), int64(count), metric.WithAttributes(attribute.String("reason", reason)))
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max || next < current {
		return max
	}
	return next
}
