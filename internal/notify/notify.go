package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/nats-io/nats.go"

	"github.com/vocdoni/gofirma/receiptsync/internal/model"
	"github.com/vocdoni/gofirma/receiptsync/internal/storage"
)

const DefaultSubject = "receiptsync.validation"

// Listener is told about every validation result that was persisted.
type Listener interface {
	ValidationUpdated(ctx context.Context, r *model.ValidationResult)
}

type ListenerFunc func(ctx context.Context, r *model.ValidationResult)

func (f ListenerFunc) ValidationUpdated(ctx context.Context, r *model.ValidationResult) { f(ctx, r) }

// Multi fans a result out to several listeners in order.
type Multi []Listener

func (m Multi) ValidationUpdated(ctx context.Context, r *model.ValidationResult) {
	for _, l := range m {
		if l != nil {
			l.ValidationUpdated(ctx, r)
		}
	}
}

// Publisher is the subset of *nats.Conn used for publishing.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes the canonical JSON of each result on a subject.
type NATSPublisher struct {
	pub     Publisher
	subject string
	conn    *nats.Conn
}

func ConnectNATS(url, subject string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("receiptsync"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			glog.Warningf("notify: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			glog.Infof("notify: NATS reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	p := NewNATSPublisher(conn, subject)
	p.conn = conn
	return p, nil
}

func NewNATSPublisher(pub Publisher, subject string) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{pub: pub, subject: subject}
}

func (p *NATSPublisher) ValidationUpdated(ctx context.Context, r *model.ValidationResult) {
	if err := p.Publish(r); err != nil {
		glog.Warningf("notify: %v", err)
	}
}

func (p *NATSPublisher) Publish(r *model.ValidationResult) error {
	data, err := storage.Canonical(r)
	if err != nil {
		return err
	}
	if err := p.pub.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.subject, err)
	}
	glog.V(2).Infof("notify: published %d bytes on %s", len(data), p.subject)
	return nil
}

// Close drains and closes the connection opened by ConnectNATS.
func (p *NATSPublisher) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
