// Package nats implements the message queue port using NATS JetStream.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/AppHub/internal/logger"
	"github.com/Strob0t/AppHub/internal/port/messagequeue"
)

const (
	streamName = "APPHUB"

	headerRequestID  = "X-Request-ID"
	headerRetryCount = "Retry-Count"

	// maxRetries is how often a failing message is redelivered before it is
	// parked on <subject>.dlq.
	maxRetries = 3
)

// Queue implements messagequeue.Queue using NATS JetStream.
type Queue struct {
	nc *nats.Conn
	js jetstream.JetStream
}

var _ messagequeue.Queue = (*Queue)(nil)

// Connect establishes a connection to NATS and ensures the JetStream stream exists.
func Connect(ctx context.Context, url string) (*Queue, error) {
	nc, err := nats.Connect(url,
		nats.Name("apphub"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	// Ensure the stream exists with subjects matching our topic patterns.
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: messagequeue.StreamSubjects,
		MaxAge:   7 * 24 * time.Hour,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Queue{nc: nc, js: js}, nil
}

// Publish sends a message to the given subject. The request ID stored in ctx
// travels in a header so consumers can log it.
func (q *Queue) Publish(ctx context.Context, subject string, data []byte) error {
	msg := &nats.Msg{Subject: subject, Data: data, Header: nats.Header{}}
	if id := logger.RequestID(ctx); id != "" {
		msg.Header.Set(headerRequestID, id)
	}
	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a handler for new messages on the given subject.
// Payloads failing messagequeue.Validate go straight to the DLQ. Handler
// failures are retried up to maxRetries times before the same happens.
func (q *Queue) Subscribe(ctx context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject:     subject,
		AckPolicy:         jetstream.AckExplicitPolicy,
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		InactiveThreshold: 5 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		q.handle(msg, handler)
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}

	return cons.Stop, nil
}

func (q *Queue) handle(msg jetstream.Msg, handler messagequeue.Handler) {
	ctx := context.Background()
	hdrs := msg.Headers()
	if id := hdrs.Get(headerRequestID); id != "" {
		ctx = logger.WithRequestID(ctx, id)
	}

	if err := messagequeue.Validate(msg.Subject(), msg.Data()); err != nil {
		slog.WarnContext(ctx, "invalid message", "subject", msg.Subject(), "error", err)
		q.moveToDLQ(ctx, msg)
		return
	}

	if err := handler(ctx, msg.Subject(), msg.Data()); err != nil {
		retries := retryCount(hdrs)
		slog.ErrorContext(ctx, "message handler failed", "subject", msg.Subject(), "retry", retries, "error", err)
		if retries >= maxRetries {
			q.moveToDLQ(ctx, msg)
			return
		}
		q.retry(ctx, msg, retries+1)
		return
	}

	if ackErr := msg.Ack(); ackErr != nil {
		slog.ErrorContext(ctx, "nats ack failed", "error", ackErr)
	}
}

// retry republishes msg with an incremented retry counter and acks the
// original so the stream does not redeliver it a second time.
func (q *Queue) retry(ctx context.Context, msg jetstream.Msg, attempt int) {
	out := &nats.Msg{Subject: msg.Subject(), Data: msg.Data(), Header: copyHeader(msg.Headers())}
	out.Header.Set(headerRetryCount, strconv.Itoa(attempt))
	if _, err := q.js.PublishMsg(ctx, out); err != nil {
		slog.ErrorContext(ctx, "nats retry publish failed", "subject", msg.Subject(), "error", err)
		if nakErr := msg.Nak(); nakErr != nil {
			slog.ErrorContext(ctx, "nats nak failed", "error", nakErr)
		}
		return
	}
	if ackErr := msg.Ack(); ackErr != nil {
		slog.ErrorContext(ctx, "nats ack failed", "error", ackErr)
	}
}

// moveToDLQ parks msg on <subject>.dlq and terminates the original.
func (q *Queue) moveToDLQ(ctx context.Context, msg jetstream.Msg) {
	dlq := msg.Subject() + ".dlq"
	out := &nats.Msg{Subject: dlq, Data: msg.Data(), Header: copyHeader(msg.Headers())}
	if _, err := q.js.PublishMsg(ctx, out); err != nil {
		slog.ErrorContext(ctx, "nats dlq publish failed", "subject", dlq, "error", err)
		if nakErr := msg.Nak(); nakErr != nil {
			slog.ErrorContext(ctx, "nats nak failed", "error", nakErr)
		}
		return
	}
	slog.WarnContext(ctx, "message moved to dlq", "subject", dlq)
	if termErr := msg.Term(); termErr != nil {
		slog.ErrorContext(ctx, "nats term failed", "error", termErr)
	}
}

func retryCount(h nats.Header) int {
	n, err := strconv.Atoi(h.Get(headerRetryCount))
	if err != nil {
		return 0
	}
	return n
}

func copyHeader(h nats.Header) nats.Header {
	out := nats.Header{}
	for k, v := range h {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// KeyValue returns the named JetStream KV bucket, creating it with the given
// TTL when it does not exist yet.
func (q *Queue) KeyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := q.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("nats kv %s: %w", bucket, err)
	}
	return kv, nil
}

// IsConnected reports whether the underlying connection is up.
func (q *Queue) IsConnected() bool {
	return q.nc.IsConnected()
}

// Drain stops accepting new messages, lets in-flight handlers finish and
// then closes the connection.
func (q *Queue) Drain() error {
	if err := q.nc.Drain(); err != nil {
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}

// Close shuts down the NATS connection.
func (q *Queue) Close() error {
	q.nc.Close()
	return nil
}
