package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"kiri/internal/metrics"
)

type NATSOptions struct {
	URL     string
	Stream  string
	Subject string
	Durable string
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// NATSExecutor publishes jobs to a JetStream subject and consumes them with
// a durable, manually acknowledged subscription. A handler error naks the
// message for redelivery; an undecodable message is terminated.
type NATSExecutor struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	sub     *nats.Subscription
	subject string
	handler Handler
	metrics *metrics.Metrics
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func NewNATSExecutor(h Handler, opts NATSOptions, natsOpts ...nats.Option) (*NATSExecutor, error) {
	if h == nil {
		return nil, errors.New("task: nil handler")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	nc, err := nats.Connect(opts.URL, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("task: nats connect: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("task: jetstream: %w", err)
	}
	if err := ensureStream(js, opts.Stream, opts.Subject); err != nil {
		nc.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &NATSExecutor{
		conn:    nc,
		js:      js,
		subject: opts.Subject,
		handler: h,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	sub, err := js.Subscribe(opts.Subject, e.handle, nats.Durable(opts.Durable), nats.ManualAck(), nats.AckExplicit())
	if err != nil {
		cancel()
		nc.Close()
		return nil, fmt.Errorf("task: subscribe %s: %w", opts.Subject, err)
	}
	e.sub = sub
	return e, nil
}

func ensureStream(js nats.JetStreamContext, stream, subject string) error {
	_, err := js.StreamInfo(stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("task: stream info %s: %w", stream, err)
	}
	if _, err := js.AddStream(&nats.StreamConfig{Name: stream, Subjects: []string{subject}}); err != nil {
		return fmt.Errorf("task: add stream %s: %w", stream, err)
	}
	return nil
}

func (e *NATSExecutor) Name() string { return "nats" }

// Submit publishes job; it is durable once Submit returns nil.
func (e *NATSExecutor) Submit(ctx context.Context, job Job) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrExecutorClosed
	}
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = e.js.Publish(e.subject, data, nats.Context(ctx))
	return err
}

func (e *NATSExecutor) handle(msg *nats.Msg) {
	var job Job
	if err := json.Unmarshal(msg.Data, &job); err != nil || job.ProjectID == "" {
		e.logger.Error("dropping malformed job message", zap.ByteString("data", msg.Data), zap.Error(err))
		_ = msg.Term()
		return
	}
	err := e.handler(e.ctx, job)
	e.metrics.ObserveJob(e.Name(), err)
	if err != nil {
		e.logger.Error("job failed; requesting redelivery",
			zap.String("job_id", job.ID), zap.String("project_id", job.ProjectID), zap.Error(err))
		_ = msg.Nak()
		return
	}
	_ = msg.Ack()
}

func (e *NATSExecutor) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	var errs []error
	if e.sub != nil {
		errs = append(errs, e.sub.Drain())
	}
	if err := e.conn.Drain(); err != nil {
		e.conn.Close()
		errs = append(errs, err)
	}
	e.cancel()
	return errors.Join(errs...)
}

// Ping reports whether the NATS connection is up.
func (e *NATSExecutor) Ping() error {
	if !e.conn.IsConnected() {
		return fmt.Errorf("task: nats %s", e.conn.Status())
	}
	return nil
}
