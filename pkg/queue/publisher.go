package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"mercator-hq/kate/pkg/service"
)

// Publish outcomes reported to the Observer.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeCancelled = "cancelled"
)

// Observer receives publish results. Implementations must be safe for
// concurrent use.
type Observer interface {
	ObservePublish(queue, outcome string)
	ObservePublishRetry(queue string)
}

// Publisher publishes one service's messages in the background. Every
// publish runs under the publisher's context and is awaited by Close.
type Publisher struct {
	service  string
	mq       *service.MessageQueue
	conns    *Connections
	observer Observer
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithObserver reports outcomes to o.
func WithObserver(o Observer) PublisherOption {
	return func(p *Publisher) {
		p.observer = o
	}
}

// NewPublisher creates the publisher for svc. Connections are shared across
// publishers and keyed by service name.
func NewPublisher(svc string, mq *service.MessageQueue, conns *Connections, opts ...PublisherOption) *Publisher {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Publisher{
		service: svc,
		mq:      mq,
		conns:   conns,
		logger:  slog.Default().With("component", "queue.publisher", "service", svc),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish schedules data for delivery to queue and returns the message id
// immediately. Failures are logged and counted, never returned.
func (p *Publisher) Publish(queue string, data []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrClosed
	}

	msgID := uuid.NewString()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.Send(p.ctx, queue, msgID, data); err != nil {
			p.logger.Error("message dropped", "queue", queue, "msg_id", msgID, "error", err)
		}
	}()
	return msgID, nil
}

// Send delivers data synchronously, retrying with exponential backoff until
// the broker confirms, the retry budget is spent or ctx is cancelled.
func (p *Publisher) Send(ctx context.Context, queue, msgID string, data []byte) error {
	attempts := 0
	op := func() (struct{}, error) {
		attempts++
		b, err := p.conns.Get(ctx, p.service, p.mq)
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		if err := b.Declare(ctx, queue); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, b.Publish(ctx, queue, msgID, data)
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			p.observePublishRetry(queue)
			p.logger.Warn("publish failed, retrying",
				"queue", queue,
				"msg_id", msgID,
				"attempt", attempts,
				"next_retry", next,
				"error", err,
			)
		}),
	}
	if p.mq.Retries > 0 {
		opts = append(opts, backoff.WithMaxTries(uint(p.mq.Retries)))
	}

	_, err := backoff.Retry(ctx, op, opts...)
	switch {
	case err == nil:
		p.observePublish(queue, OutcomeSuccess)
		p.logger.Debug("message published", "queue", queue, "msg_id", msgID, "attempts", attempts)
		return nil
	case ctx.Err() != nil:
		p.observePublish(queue, OutcomeCancelled)
	default:
		p.observePublish(queue, OutcomeFailure)
	}
	return &PublishError{Queue: queue, MsgID: msgID, Attempts: attempts, Err: err}
}

func (p *Publisher) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.mq.InitialDelay()
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = p.mq.MaxDelay()
	b.Reset()
	return b
}

// Close cancels pending retries and waits for in-flight publishes.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}

func (p *Publisher) observePublish(queue, outcome string) {
	if p.observer != nil {
		p.observer.ObservePublish(queue, outcome)
	}
}

func (p *Publisher) observePublishRetry(queue string) {
	if p.observer != nil {
		p.observer.ObservePublishRetry(queue)
	}
}
