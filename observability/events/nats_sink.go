package events

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ragforge/ragforge/rlog"
)

// NATSSink fans events out to a NATS subject so other processes (a
// separate metrics collector, an audit log) can observe pipeline
// activity without the event logger depending on their availability. A
// connection failure at construction time degrades to a disabled sink
// that silently drops events, the same graceful-degrade shape the
// teacher's cache and event subscriber use for optional infrastructure.
type NATSSink struct {
	conn    *nats.Conn
	subject string
	enabled bool
}

// NewNATSSink connects to url and returns a sink publishing to subject.
// If url is empty or the connection fails, a disabled sink is returned
// rather than an error, since this sink is always optional.
func NewNATSSink(url, subject string) *NATSSink {
	if url == "" {
		return &NATSSink{enabled: false}
	}
	conn, err := nats.Connect(url,
		nats.Name("ragforge-events"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(10),
	)
	if err != nil {
		rlog.Observability().Warn().Err(err).Str("url", url).Msg("NATS event sink disabled")
		return &NATSSink{enabled: false}
	}
	return &NATSSink{conn: conn, subject: subject, enabled: true}
}

// Publish implements Sink. It never blocks the caller on a network
// error; a publish failure is logged and dropped.
func (s *NATSSink) Publish(ev Event) {
	if !s.enabled {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.conn.Publish(s.subject, data); err != nil {
		rlog.Observability().Warn().Err(err).Msg("failed to publish event to NATS")
	}
}

// Close drains and closes the underlying connection, if any.
func (s *NATSSink) Close() {
	if s.enabled && s.conn != nil {
		s.conn.Close()
	}
}
