package notify

import (
	"context"
	"errors"
)

// Multi fans an event out to every configured channel. All channels are
// attempted even when earlier ones fail; the errors are joined.
type Multi struct {
	channels []Notifier
}

// NewMulti creates a Multi over the given channels.
func NewMulti(channels ...Notifier) *Multi {
	return &Multi{channels: channels}
}

// Notify implements Notifier.
func (m *Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, ch := range m.channels {
		if err := ch.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
