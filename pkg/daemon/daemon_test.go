package daemon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingService struct {
	initErr    error
	inited     bool
	served     bool
	terminated bool
}

func (s *recordingService) InitializeDaemon() error {
	s.inited = true
	return s.initErr
}

func (s *recordingService) Serve(ctx context.Context) {
	s.served = true
	<-ctx.Done()
}

func (s *recordingService) TerminateDaemon() error {
	s.terminated = true
	return nil
}

func TestDaemonLifecycle(t *testing.T) {
	s1 := &recordingService{}
	s2 := &recordingService{}
	d := New(s1, s2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	// Give the services a moment to start, then stop the daemon.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not shut down")
	}

	for _, s := range []*recordingService{s1, s2} {
		assert.True(t, s.inited)
		assert.True(t, s.served)
		assert.True(t, s.terminated)
	}
}

func TestDaemonInitFailure(t *testing.T) {
	boom := errors.New("boom")
	s1 := &recordingService{initErr: boom}
	s2 := &recordingService{}
	d := New(s1, s2)

	err := d.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.False(t, s1.served)
	assert.False(t, s2.served)
}

func TestDaemonRequiresServices(t *testing.T) {
	err := New().Run(context.Background())
	require.Error(t, err)
}

func TestDaemonRunTwice(t *testing.T) {
	s := &recordingService{}
	d := New(s)

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	err := d.Run(context.Background())
	require.Error(t, err)
	cancel()
}
