package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	block  chan struct{}
}

func (s *recordingSink) Write(_ context.Context, e Event) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

type dropCount struct {
	mu sync.Mutex
	n  int
}

func (d *dropCount) AuditDropped() {
	d.mu.Lock()
	d.n++
	d.mu.Unlock()
}

func TestDispatcherDeliversAndFlushesOnClose(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink, 8, nil, nil)

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	d.Emit(Event{Action: ActionView, Resource: "/dashboard", UserID: UserRef(7)})
	d.Emit(Event{Action: ActionFailedLogin, Resource: "middleware-auth-check"})
	d.Close()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}

	events := sink.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, ActionView, events[0].Action)
	assert.False(t, events[0].Timestamp.IsZero())
	assert.NotNil(t, events[1].Details)
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &recordingSink{}
	drops := &dropCount{}
	d := NewDispatcher(sink, 1, nil, drops)

	start := time.Now()
	d.Emit(Event{Action: ActionView})
	d.Emit(Event{Action: ActionView})
	d.Emit(Event{Action: ActionView})
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 2, drops.n)
}

func TestDispatcherSurvivesSinkErrors(t *testing.T) {
	sink := &recordingSink{err: errors.New("db down")}
	d := NewDispatcher(sink, 4, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	d.Emit(Event{Action: ActionLogin})
	d.Emit(Event{Action: ActionLogout})
	cancel()

	require.NoError(t, <-done)
	assert.Len(t, sink.snapshot(), 2)
}

func TestEmitAfterCloseIsIgnored(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink, 4, nil, nil)
	d.Close()
	d.Emit(Event{Action: ActionView})
	require.NoError(t, d.Run(context.Background()))
	assert.Empty(t, sink.snapshot())
}
