package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	logs "github.com/danmuck/republish/internal/logging"
	"github.com/danmuck/republish/internal/reconcile"
)

const DefaultSubject = "republish.outcomes"

var ErrNotConnected = errors.New("notify: nats not connected")

// Publisher announces reconcile outcomes on a NATS subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
	publish func(subject string, payload []byte) error
}

func Connect(url, subject string) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("republishd"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logs.Warnf("notify.Publisher disconnected err=%v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logs.Infof("notify.Publisher reconnected url=%s", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	p := newPublisher(subject, nil)
	p.nc = nc
	p.publish = func(subject string, payload []byte) error {
		if nc.IsClosed() {
			return ErrNotConnected
		}
		return nc.Publish(subject, payload)
	}
	return p, nil
}

func newPublisher(subject string, publish func(string, []byte) error) *Publisher {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{subject: subject, publish: publish}
}

func (p *Publisher) Subject() string { return p.subject }

// Record implements reconcile.Sink.
func (p *Publisher) Record(_ context.Context, o reconcile.Outcome) error {
	if p.publish == nil {
		return ErrNotConnected
	}
	payload, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return p.publish(p.subject, payload)
}

func (p *Publisher) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
		p.nc.Close()
	}
}
