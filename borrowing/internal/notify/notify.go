// Package notify delivers human-readable lifecycle messages. Delivery never blocks or fails the
// operation that triggered it.
package notify

import (
	"context"
)

type Notifier interface {
	Notify(ctx context.Context, text string)
}

type Multi []Notifier

func (m Multi) Notify(ctx context.Context, text string) {
	for _, n := range m {
		n.Notify(ctx, text)
	}
}

type Nop struct{}

func (Nop) Notify(context.Context, string) {}
