package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tidehook/tidehook/internal/config"
	"github.com/tidehook/tidehook/internal/db"
	"github.com/tidehook/tidehook/internal/health"
	"github.com/tidehook/tidehook/internal/logging"
	"github.com/tidehook/tidehook/internal/metrics"
	"github.com/tidehook/tidehook/internal/store/postgres"
	"github.com/tidehook/tidehook/internal/tracing"
	"github.com/tidehook/tidehook/internal/webhook"
)

// nsqDeadLetters publishes dead-letter envelopes to the DLQ topic.
type nsqDeadLetters struct {
	prod  *nsq.Producer
	topic string
}

func (p *nsqDeadLetters) Publish(_ context.Context, dl webhook.DeadLetter) error {
	b, err := json.Marshal(dl)
	if err != nil {
		return err
	}
	return p.prod.Publish(p.topic, b)
}

// requeueDelay is how long a task waits after a transient store failure.
const requeueDelay = 30 * time.Second

// newTaskHandler consumes delivery tasks from the queue. Bad payloads and
// unknown or inactive subscribers are finished, not requeued; only store
// hiccups come back around.
func newTaskHandler(base context.Context, logger *logging.Logger, subs webhook.SubscriberStore, dispatcher *webhook.Dispatcher) nsq.HandlerFunc {
	return func(m *nsq.Message) error {
		m.DisableAutoResponse()
		defer func() {
			if !m.HasResponded() {
				logger.Plain().Warn("message had no response, finishing")
				m.Finish()
			}
		}()

		var t webhook.Task
		if err := json.Unmarshal(m.Body, &t); err != nil {
			logger.Plain().WithError(err).Error("bad task payload")
			m.Finish() // terminal: don't retry bad payloads
			return nil
		}

		ctx := tracing.ExtractTraceFromNSQ(base, t.TraceHeaders)
		ctx, span := tracing.StartSpan(ctx, "worker.delivery_task",
			attribute.String("subscriber_id", t.SubscriberID),
			attribute.String("tenant_id", t.TenantID),
			attribute.String("event_type", t.EventType),
		)
		defer span.End()

		sub, err := subs.Get(ctx, t.SubscriberID, t.TenantID)
		if errors.Is(err, webhook.ErrNotFound) {
			logger.WithContext(ctx).WithSubscriber(t.SubscriberID).Warn("task for unknown subscriber dropped")
			m.Finish()
			return nil
		}
		if err != nil {
			tracing.SetSpanError(ctx, err)
			logger.WithContext(ctx).WithSubscriber(t.SubscriberID).WithError(err).Error("subscriber lookup failed")
			m.Requeue(requeueDelay) // store hiccup, try again later
			return nil
		}

		d, err := dispatcher.Deliver(ctx, *sub, webhook.Event{
			EventID:   t.EventID,
			EventType: t.EventType,
			Data:      t.Payload,
			TenantID:  t.TenantID,
		})
		if errors.Is(err, webhook.ErrSubscriberInactive) {
			logger.WithContext(ctx).WithSubscriber(sub.ID).Warn("task for inactive subscriber dropped")
			m.Finish()
			return nil
		}
		if err != nil {
			tracing.SetSpanError(ctx, err)
			logger.WithContext(ctx).WithSubscriber(sub.ID).WithError(err).Error("delivery dispatch failed")
			m.Requeue(requeueDelay)
			return nil
		}

		span.SetAttributes(
			attribute.String("delivery_id", d.ID),
			attribute.String("delivery.status", string(d.Status)),
		)
		m.Finish() // retries, if any, are owned by the sweep now
		return nil
	}
}

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()

	logger := logging.New("tidehook-worker")

	shutdown, err := tracing.InitTracing(ctx, "tidehook-worker")
	if err != nil {
		logger.Plain().WithError(err).Fatal("Failed to initialize tracing")
	}
	defer shutdown()

	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		logger.Plain().WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.HTTPHandler(pool))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Addr: cfg.Worker.HTTPPort, Handler: mux}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("worker HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("worker HTTP server failed")
		}
	}()

	subs := postgres.NewSubscriberStore(pool)
	deliveries := postgres.NewDeliveryStore(pool)

	opts := []webhook.Option{
		webhook.WithBackoff(webhook.BackoffPolicy{
			Base:       cfg.Worker.Backoff.Base,
			Multiplier: cfg.Worker.Backoff.Multiplier,
			Ceiling:    cfg.Worker.Backoff.Ceiling,
			JitterPct:  cfg.Worker.Backoff.JitterPct,
		}),
	}
	if cfg.Worker.PublishDLQ {
		prod, err := nsq.NewProducer(cfg.NSQ.NsqdTCPAddr, nsq.NewConfig())
		if err != nil {
			logger.Plain().WithError(err).Fatal("nsq producer for DLQ creation failed")
		}
		defer prod.Stop()
		opts = append(opts, webhook.WithDeadLetterPublisher(&nsqDeadLetters{prod: prod, topic: cfg.NSQ.DLQTopic}))
	}
	dispatcher := webhook.NewDispatcher(subs, deliveries, nil, opts...)

	conf := nsq.NewConfig()
	conf.MaxInFlight = 1000
	consumer, err := nsq.NewConsumer(cfg.NSQ.DeliveriesTopic, cfg.NSQ.WorkerChannel, conf)
	if err != nil {
		logger.Plain().WithError(err).Fatal("nsq consumer creation failed")
	}

	consumer.AddHandler(newTaskHandler(ctx, logger, subs, dispatcher))

	// Connecting directly to NSQD forces channel creation, instead of the channel being lazily created on first publish
	if err := consumer.ConnectToNSQD(cfg.NSQ.NsqdTCPAddr); err != nil {
		logger.Plain().WithError(err).Fatal("connect to nsqd failed")
	}
	if err := consumer.ConnectToNSQLookupd(cfg.NSQ.LookupHTTPAddr); err != nil {
		logger.Plain().WithError(err).Fatal("connect to lookupd failed")
	}

	// Periodic retry sweep; the state machine schedules, this resumes.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(cfg.Worker.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				n, err := dispatcher.ProcessPendingRetries(sweepCtx, cfg.Worker.SweepLimit)
				if err != nil {
					logger.Plain().WithError(err).Error("retry sweep failed")
					continue
				}
				if n > 0 {
					logger.Plain().WithField("processed", n).Info("retry sweep completed")
				}
			}
		}
	}()

	logger.Plain().Info("worker service started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("Shutting down worker service")
	stopSweep()
	consumer.Stop()
	<-consumer.StopChan
	_ = httpSrv.Shutdown(context.Background())
	logger.Plain().Info("worker service stopped")
}
