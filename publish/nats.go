package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/camsys/onebusaway-application-modules-sub000/matching"
)

const DefaultSubjectPrefix = "transit.vehicles"

// The part of *nats.Conn used for publishing.
type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSSink publishes each record as JSON on
// <prefix>.<agency_route>.<vehicle>.
type NATSSink struct {
	conn   natsConn
	prefix string
	logger *slog.Logger
}

func NewNATSSink(url, prefix string, logger *slog.Logger) (*NATSSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "nats")

	nc, err := nats.Connect(url,
		nats.Name("transit-matching"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	return newNATSSink(nc, prefix, logger), nil
}

func newNATSSink(conn natsConn, prefix string, logger *slog.Logger) *NATSSink {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSSink{conn: conn, prefix: prefix, logger: logger}
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Subject(r *matching.Record) string {
	return fmt.Sprintf("%s.%s.%s", s.prefix, subjectToken(r.BlockID.Agency), subjectToken(recordKey(r)))
}

// Publishes every record of the result. A failed record doesn't stop
// the others; all errors are returned together.
func (s *NATSSink) Publish(ctx context.Context, result *matching.Result) error {
	errs := []error{}
	for _, r := range result.Records {
		if err := ctx.Err(); err != nil {
			return err
		}

		b, err := json.Marshal(NewMessage(result.CycleID, r))
		if err != nil {
			errs = append(errs, fmt.Errorf("marshaling %s: %w", recordKey(r), err))
			continue
		}

		subject := s.Subject(r)
		if err := s.conn.Publish(subject, b); err != nil {
			errs = append(errs, fmt.Errorf("publishing %s: %w", subject, err))
		}
	}

	if len(errs) > 0 {
		s.logger.Error("publishing records", "cycle", result.CycleID, "failed", len(errs))
	}
	return errors.Join(errs...)
}

func (s *NATSSink) Close() error {
	return s.conn.Drain()
}
