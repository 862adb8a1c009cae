package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/hookpost/hookpost/endpoint"
	"github.com/hookpost/hookpost/event"
	"github.com/hookpost/hookpost/id"
	"github.com/hookpost/hookpost/observability"
	"github.com/hookpost/hookpost/ratelimit"
	"github.com/hookpost/hookpost/resolver"
	"github.com/hookpost/hookpost/signature"
)

// ErrNotPending is returned when executing a delivery that has already left
// the pending state. Terminal deliveries are immutable.
var ErrNotPending = errors.New("delivery: not pending")

const userAgent = "Hookpost/1.0"

// ExecutorStore is the persistence surface the executor needs.
type ExecutorStore interface {
	GetEndpoint(ctx context.Context, epID id.ID) (*endpoint.Endpoint, error)
	GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error)
	UpdateDelivery(ctx context.Context, d *Delivery) error
}

// OutcomeRecorder is invoked exactly once per terminal delivery with the
// succeeded predicate. The delinquency tracker implements it.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, ep *endpoint.Endpoint, succeeded bool) error
}

// ExecutorConfig holds executor configuration.
type ExecutorConfig struct {
	// ConnectTimeout bounds DNS, TCP connect, and TLS handshake.
	ConnectTimeout time.Duration

	// ReadTimeout bounds waiting for and reading the response.
	ReadTimeout time.Duration

	// MaxResponseBytes caps the stored response body.
	MaxResponseBytes int64

	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Executor performs one bounded HTTP delivery attempt and owns the
// delivery's state transitions.
type Executor struct {
	store    ExecutorStore
	resolver *resolver.Resolver
	signer   *signature.Signer
	recorder OutcomeRecorder
	limiter  *ratelimit.Limiter
	config   ExecutorConfig
	logger   *slog.Logger
}

// NewExecutor creates a delivery executor.
func NewExecutor(store ExecutorStore, res *resolver.Resolver, recorder OutcomeRecorder, limiter *ratelimit.Limiter, cfg ExecutorConfig, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		store:    store,
		resolver: res,
		signer:   signature.NewSigner(),
		recorder: recorder,
		limiter:  limiter,
		config:   cfg,
		logger:   logger,
	}
}

// envelope is the JSON body POSTed to the endpoint.
type envelope struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Data      any       `json:"data"`
}

// Execute drives one delivery through its lifecycle:
// pending → in_progress → completed | errored.
//
// Faults during resolution or transport become the errored terminal state.
// Faults in the persistence layer are returned to the caller instead: the
// delivery is left non-terminal so an external retry can pick it up, and the
// delinquency tracker is not invoked.
func (x *Executor) Execute(ctx context.Context, d *Delivery) error {
	if d.State != StatePending {
		return fmt.Errorf("%w: %s is %s", ErrNotPending, d.ID, d.State)
	}

	ep, err := x.store.GetEndpoint(ctx, d.EndpointID)
	if err != nil {
		return fmt.Errorf("delivery: load endpoint %s: %w", d.EndpointID, err)
	}

	evt, err := x.store.GetEvent(ctx, d.EventID)
	if err != nil {
		return fmt.Errorf("delivery: load event %s: %w", d.EventID, err)
	}

	if x.limiter != nil {
		if waitErr := x.limiter.Wait(ctx, ep.ID.String(), ep.RateLimit); waitErr != nil {
			return fmt.Errorf("delivery: rate limit wait: %w", waitErr)
		}
	}

	var span trace.Span
	if x.config.Tracer != nil {
		ctx, span = x.config.Tracer.StartDeliverySpan(ctx, d.ID.String(), d.EventID.String(), d.EndpointID.String())
	}

	// Persist in_progress before dialing out.
	d.State = StateInProgress
	d.UpdatedAt = time.Now().UTC()
	if err := x.store.UpdateDelivery(ctx, d); err != nil {
		if span != nil {
			x.config.Tracer.EndDeliverySpan(span, string(d.State), 0, 0, err.Error())
		}
		return fmt.Errorf("delivery: persist in_progress: %w", err)
	}

	start := time.Now()
	resp, attemptErr := x.attempt(ctx, ep, evt, d)
	latency := time.Since(start)

	now := time.Now().UTC()
	d.LatencyMs = int(latency.Milliseconds())
	d.CompletedAt = &now
	d.UpdatedAt = now

	statusCode := 0
	if resp != nil {
		// Any received response is a completed delivery, regardless of status.
		d.State = StateCompleted
		d.Response = resp
		statusCode = resp.StatusCode
	} else {
		d.State = StateErrored
		d.Error = attemptErr.Error()
	}

	// Terminal state is persisted first; a persistence fault aborts the
	// transition and must never be swallowed into a false terminal record.
	if err := x.store.UpdateDelivery(ctx, d); err != nil {
		if span != nil {
			x.config.Tracer.EndDeliverySpan(span, string(d.State), statusCode, d.LatencyMs, err.Error())
		}
		return fmt.Errorf("delivery: persist terminal state: %w", err)
	}

	x.observe(ctx, d, latency)

	if x.recorder != nil {
		if recErr := x.recorder.RecordOutcome(ctx, ep, d.Succeeded()); recErr != nil {
			x.logger.ErrorContext(ctx, "record delivery outcome failed",
				"delivery_id", d.ID, "endpoint_id", ep.ID, "error", recErr)
		}
	}

	if span != nil {
		x.config.Tracer.EndDeliverySpan(span, string(d.State), statusCode, d.LatencyMs, d.Error)
	}

	return nil
}

// attempt performs the single HTTP request. A returned snapshot means a
// response was received; a returned error means no response was obtained.
func (x *Executor) attempt(ctx context.Context, ep *endpoint.Endpoint, evt *event.Event, d *Delivery) (*ResponseSnapshot, error) {
	target, err := url.Parse(ep.URL)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint URL: %w", err)
	}

	body, err := json.Marshal(envelope{
		ID:        evt.ID.String(),
		Type:      evt.Type,
		CreatedAt: evt.CreatedAt,
		Data:      evt.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	addr, err := x.resolver.Resolve(ctx, target.Hostname())
	if err != nil {
		if errors.Is(err, resolver.ErrNoPublicAddress) {
			// Security-relevant rejection: the destination resolves only to
			// blocked ranges. No socket was opened.
			x.logger.WarnContext(ctx, "delivery blocked by resolver",
				"delivery_id", d.ID, "endpoint_id", ep.ID, "host", target.Hostname())
			if x.config.Metrics != nil {
				x.config.Metrics.ResolutionsBlocked.Inc()
			}
		}
		return nil, err
	}

	// The signature covers the exact bytes transmitted.
	ts := signature.Timestamp(time.Now())
	sig := x.signer.Sign(body, ep.Secret, ts)

	headers := map[string]string{
		"Content-Type":          "application/json",
		"User-Agent":            userAgent,
		"X-Webhook-Signature":   sig,
		"X-Webhook-Timestamp":   ts,
		"X-Webhook-Event-ID":    evt.ID.String(),
		"X-Webhook-Event-Type":  evt.Type,
		"X-Webhook-Delivery-ID": d.ID.String(),
	}
	for k, v := range ep.Headers {
		headers[k] = v
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	d.Request = &RequestSnapshot{
		Method:  http.MethodPost,
		URL:     ep.URL,
		Headers: headers,
		Body:    body,
	}

	client := resolver.PinnedClient(addr, x.config.ConnectTimeout, x.config.ReadTimeout)
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return x.snapshotResponse(resp)
}

// snapshotResponse reads at most MaxResponseBytes of the body; anything past
// the cap is discarded, not buffered.
func (x *Executor) snapshotResponse(resp *http.Response) (*ResponseSnapshot, error) {
	limit := x.config.MaxResponseBytes
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		// The status line arrived but the transfer failed; without the full
		// (bounded) body this counts as a transport fault.
		return nil, fmt.Errorf("read response: %w", err)
	}

	truncated := int64(len(body)) > limit
	if truncated {
		body = body[:limit]
		if x.config.Metrics != nil {
			x.config.Metrics.ResponsesTruncated.Inc()
		}
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return &ResponseSnapshot{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       body,
		Truncated:  truncated,
	}, nil
}

// observe records metrics and a debug log line for a terminal delivery.
func (x *Executor) observe(ctx context.Context, d *Delivery, latency time.Duration) {
	outcome := observability.OutcomeErrored
	status := 0
	switch {
	case d.Succeeded():
		outcome = observability.OutcomeSucceeded
		status = d.Response.StatusCode
	case d.State == StateCompleted:
		outcome = observability.OutcomeRemoteError
		status = d.Response.StatusCode
	}

	if x.config.Metrics != nil {
		x.config.Metrics.RecordDelivery(outcome, latency.Seconds())
		x.config.Metrics.PendingDeliveries.Dec()
	}

	x.logger.DebugContext(ctx, "delivery finished",
		"delivery_id", d.ID,
		"state", d.State,
		"status", status,
		"latency_ms", d.LatencyMs,
	)
}
