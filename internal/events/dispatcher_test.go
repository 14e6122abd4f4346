package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/cuadrilla-dispatch/internal/domain"
)

func TestPublishRunsAllHandlers(t *testing.T) {
	d := NewInMemoryDispatcher()
	var calls []string
	d.Subscribe(EventComplaintAssigned, func(context.Context, Event) error {
		calls = append(calls, "first")
		return errors.New("first failed")
	})
	d.Subscribe(EventComplaintAssigned, func(_ context.Context, e Event) error {
		calls = append(calls, "second")
		assert.Equal(t, int64(101), e.ComplaintID)
		return nil
	})
	d.Subscribe(EventComplaintCompleted, func(context.Context, Event) error {
		calls = append(calls, "other")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventComplaintAssigned, ComplaintID: 101})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first failed")
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestPublishRecoversPanickingHandler(t *testing.T) {
	d := NewInMemoryDispatcher()
	var seen Event
	d.Subscribe(EventComplaintCompleted, func(context.Context, Event) error {
		panic("boom")
	})
	d.Subscribe(EventComplaintCompleted, func(_ context.Context, e Event) error {
		seen = e
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventComplaintCompleted, ComplaintID: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: boom")
	assert.Equal(t, int64(5), seen.ComplaintID)
	assert.NotEmpty(t, seen.ID)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher()
	assert.NoError(t, d.Publish(context.Background(), Event{Type: EventComplaintInProgress}))
}

func TestEventForStatus(t *testing.T) {
	assert.Equal(t, EventComplaintAssigned, EventForStatus(domain.AssignmentStatusAssigned))
	assert.Equal(t, EventComplaintInProgress, EventForStatus(domain.AssignmentStatusInProgress))
	assert.Equal(t, EventComplaintCompleted, EventForStatus(domain.AssignmentStatusCompleted))
}
