package server

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter blocks in Serve until its context is cancelled, or fails
// immediately when serveErr is set.
type fakeAdapter struct {
	protocol string
	port     int
	serveErr error

	started atomic.Bool
	stopped atomic.Int32
}

func (f *fakeAdapter) Serve(ctx context.Context) error {
	f.started.Store(true)
	if f.serveErr != nil {
		return f.serveErr
	}
	<-ctx.Done()
	return nil
}

func (f *fakeAdapter) Stop(ctx context.Context) error {
	f.stopped.Add(1)
	return nil
}

func (f *fakeAdapter) Protocol() string { return f.protocol }
func (f *fakeAdapter) Port() int        { return f.port }

func TestAddAdapter_Conflicts(t *testing.T) {
	s := New(time.Second)

	require.NoError(t, s.AddAdapter(&fakeAdapter{protocol: "Gopher", port: 70}))

	assert.Error(t, s.AddAdapter(&fakeAdapter{protocol: "Gopher", port: 7070}), "duplicate protocol")
	assert.Error(t, s.AddAdapter(&fakeAdapter{protocol: "Finger", port: 70}), "duplicate port")

	require.NoError(t, s.AddAdapter(&fakeAdapter{protocol: "Finger", port: 79}))
	assert.Len(t, s.Adapters(), 2)

	assert.Panics(t, func() { _ = s.AddAdapter(nil) })
}

func TestAddAdapter_ZeroPortsNeverConflict(t *testing.T) {
	s := New(time.Second)

	require.NoError(t, s.AddAdapter(&fakeAdapter{protocol: "Gopher"}))
	require.NoError(t, s.AddAdapter(&fakeAdapter{protocol: "Finger"}))
}

func TestServe_StopsAdaptersOnCancel(t *testing.T) {
	s := New(time.Second)
	a := &fakeAdapter{protocol: "Gopher", port: 70}
	require.NoError(t, s.AddAdapter(a))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	require.Eventually(t, a.started.Load, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Equal(t, int32(1), a.stopped.Load())
}

func TestServe_AdapterFailureStopsOthers(t *testing.T) {
	s := New(time.Second)
	healthy := &fakeAdapter{protocol: "Finger", port: 79}
	broken := &fakeAdapter{protocol: "Gopher", port: 70, serveErr: errors.New("address already in use")}
	require.NoError(t, s.AddAdapter(healthy))
	require.NoError(t, s.AddAdapter(broken))

	err := s.Serve(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Gopher adapter error")
	assert.Contains(t, err.Error(), "address already in use")
	assert.Equal(t, int32(1), healthy.stopped.Load())
}

func TestServe_NoAdapters(t *testing.T) {
	assert.Error(t, New(time.Second).Serve(context.Background()))
}

func TestServe_OnlyOnce(t *testing.T) {
	s := New(time.Second)
	require.NoError(t, s.AddAdapter(&fakeAdapter{protocol: "Gopher", port: 70}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Serve(ctx))

	assert.ErrorIs(t, s.Serve(ctx), ErrAlreadyServed)
	assert.Error(t, s.AddAdapter(&fakeAdapter{protocol: "Finger", port: 79}))
}
