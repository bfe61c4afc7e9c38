package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_PublishDeliversInRegistrationOrder(t *testing.T) {
	b := New()
	var got []string

	b.Subscribe(TopicSessionProgress, func(payload any) {
		got = append(got, "first:"+payload.(string))
	})
	b.Subscribe(TopicSessionProgress, func(payload any) {
		got = append(got, "second:"+payload.(string))
	})

	b.Publish(TopicSessionProgress, "chunk")

	assert.Equal(t, []string{"first:chunk", "second:chunk"}, got)
}

func TestBus_TopicsAreIsolated(t *testing.T) {
	b := New()
	var calls int

	b.Subscribe(TopicSessionError, func(any) { calls++ })
	b.Publish(TopicSessionComplete, nil)

	assert.Zero(t, calls)
}

func TestSubscription_Unsubscribe(t *testing.T) {
	b := New()
	var calls int

	sub := b.Subscribe(TopicStateChange, func(any) { calls++ })
	b.Publish(TopicStateChange, nil)
	sub.Unsubscribe()
	b.Publish(TopicStateChange, nil)

	assert.Equal(t, 1, calls)

	// Idempotent.
	sub.Unsubscribe()
}

func TestBus_RecoveredHandlerPanicDoesNotBlockOthers(t *testing.T) {
	b := New()
	var reached bool

	b.Subscribe(TopicSessionError, func(any) { panic("boom") })
	b.Subscribe(TopicSessionError, func(any) { reached = true })

	b.Publish(TopicSessionError, nil)

	assert.True(t, reached)
}
