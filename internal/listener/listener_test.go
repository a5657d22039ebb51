package listener

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisabledByDefaultIsNoOp(t *testing.T) {
	l := New()
	fired := false
	l.On("a://event/x", func(ev Event) { fired = true })

	l.Emit(Event{Path: "a://event/x", Outcome: OnSuccess})
	assert.False(t, fired)
}

func TestEnableDeliversToPlainHandler(t *testing.T) {
	l := New()
	l.Enable()
	var got Event
	l.On("a://event/x", func(ev Event) { got = ev })

	l.Emit(Event{Path: "a://event/x", Outcome: OnSuccess, Body: 42})
	assert.Equal(t, 42, got.Body)
}

func TestHandlerGroupPicksMemberByOutcome(t *testing.T) {
	l := New()
	l.Enable()
	var successCalled, failureCalled, timeoutCalled bool
	l.OnGroup("a://event/x", HandlerGroup{
		OnSuccess: func(ev Event) { successCalled = true },
		OnFailure: func(ev Event) { failureCalled = true },
		OnTimeout: func(ev Event) { timeoutCalled = true },
	})

	l.Emit(Event{Path: "a://event/x", Outcome: OnFailure})

	assert.False(t, successCalled)
	assert.True(t, failureCalled)
	assert.False(t, timeoutCalled)
}

func TestOffRemovesSubscriptions(t *testing.T) {
	l := New()
	l.Enable()
	fired := false
	l.On("a://event/x", func(ev Event) { fired = true })
	l.Off("a://event/x")

	l.Emit(Event{Path: "a://event/x", Outcome: OnSuccess})
	assert.False(t, fired)
}

func TestEmitOnlyReachesMatchingPath(t *testing.T) {
	l := New()
	l.Enable()
	fired := false
	l.On("a://event/x", func(ev Event) { fired = true })

	l.Emit(Event{Path: "a://event/y", Outcome: OnSuccess})
	assert.False(t, fired)
}
