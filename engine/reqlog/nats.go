package reqlog

import (
	"context"
	"fmt"

	"github.com/veicheck/veicheck/engine/lookup"
	"github.com/veicheck/veicheck/pkg/natsutil"
)

// DefaultSubject is the NATS subject request log entries are published on.
const DefaultSubject = "veicheck.requests"

// Publisher publishes each entry to NATS for an out-of-process sink.
type Publisher struct {
	conn    natsutil.Publisher
	subject string
}

// NewPublisher creates a Publisher. An empty subject selects DefaultSubject.
func NewPublisher(conn natsutil.Publisher, subject string) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{conn: conn, subject: subject}
}

func (p *Publisher) Append(ctx context.Context, e lookup.Entry) error {
	if err := natsutil.Publish(ctx, p.conn, p.subject, e); err != nil {
		return fmt.Errorf("reqlog: publish %s: %w", e.ID, err)
	}
	return nil
}
