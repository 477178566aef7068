package lookup

import (
	"context"
	"time"

	"github.com/veicheck/veicheck/engine/domain"
	"github.com/veicheck/veicheck/engine/provider"
)

// Entry is one immutable provider attempt.
type Entry struct {
	ID          string            `json:"id"`
	At          time.Time         `json:"at"`
	Kind        domain.Kind       `json:"kind"`
	Value       string            `json:"value"`
	UF          string            `json:"uf,omitempty"`
	Variant     domain.Variant    `json:"variant"`
	Code        int               `json:"code"`
	Success     bool              `json:"success"`
	Category    provider.Category `json:"category,omitempty"`
	Message     string            `json:"message,omitempty"`
	ElapsedMS   int64             `json:"elapsed_ms"`
	RawResponse string            `json:"raw_response,omitempty"`
}

// RequestLog receives one Entry per provider attempt. Implementations must
// treat entries as append-only.
type RequestLog interface {
	Append(ctx context.Context, e Entry) error
}

// RequestLogFunc adapts a function to RequestLog.
type RequestLogFunc func(ctx context.Context, e Entry) error

func (f RequestLogFunc) Append(ctx context.Context, e Entry) error { return f(ctx, e) }

type discardLog struct{}

func (discardLog) Append(context.Context, Entry) error { return nil }
