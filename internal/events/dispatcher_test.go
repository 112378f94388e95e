package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishContinuesPastFailingHandler(t *testing.T) {
	d := NewInMemoryDispatcher(nil)

	var calls []string
	d.Subscribe(EventScanDenied, func(context.Context, Event) error {
		calls = append(calls, "first")
		return errors.New("handler down")
	})
	d.Subscribe(EventScanDenied, func(context.Context, Event) error {
		calls = append(calls, "second")
		return nil
	})

	err := d.Publish(context.Background(), Event{ID: "evt-1", Type: EventScanDenied})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestPublishSkipsUnsubscribedTypes(t *testing.T) {
	d := NewInMemoryDispatcher(nil)

	called := false
	d.Subscribe(EventScanGranted, func(context.Context, Event) error {
		called = true
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventScanDenied}))
	assert.False(t, called)
}
