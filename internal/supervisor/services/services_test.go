// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/mahiru/internal/recalc"
)

var (
	_ suture.Service = (*HTTPServerService)(nil)
	_ suture.Service = (*QueueService)(nil)
	_ suture.Service = (*SweepService)(nil)
)

type stubHTTPServer struct {
	listenErr   error
	shutdownErr error
	started     chan struct{}
	stop        chan struct{}
	shutdowns   atomic.Int32
}

func newStubHTTPServer() *stubHTTPServer {
	return &stubHTTPServer{started: make(chan struct{}, 1), stop: make(chan struct{})}
}

func (s *stubHTTPServer) ListenAndServe() error {
	select {
	case s.started <- struct{}{}:
	default:
	}
	if s.listenErr != nil {
		return s.listenErr
	}
	<-s.stop
	return http.ErrServerClosed
}

func (s *stubHTTPServer) Shutdown(context.Context) error {
	s.shutdowns.Add(1)
	close(s.stop)
	return s.shutdownErr
}

func TestNewHTTPServerService_DefaultTimeout(t *testing.T) {
	t.Parallel()

	for _, d := range []time.Duration{0, -time.Second} {
		if svc := NewHTTPServerService(newStubHTTPServer(), d); svc.shutdownTimeout != 10*time.Second {
			t.Errorf("timeout %v: got %v, want 10s", d, svc.shutdownTimeout)
		}
	}
}

func TestHTTPServerService_Serve(t *testing.T) {
	t.Parallel()

	t.Run("graceful shutdown on cancel", func(t *testing.T) {
		t.Parallel()

		server := newStubHTTPServer()
		svc := NewHTTPServerService(server, time.Second)
		ctx, cancel := context.WithCancel(context.Background())

		errCh := make(chan error, 1)
		go func() { errCh <- svc.Serve(ctx) }()
		<-server.started
		cancel()

		select {
		case err := <-errCh:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("Serve() = %v, want context.Canceled", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Serve did not return")
		}
		if server.shutdowns.Load() != 1 {
			t.Errorf("Shutdown called %d times, want 1", server.shutdowns.Load())
		}
	})

	t.Run("startup failure", func(t *testing.T) {
		t.Parallel()

		bindErr := errors.New("bind: address already in use")
		server := newStubHTTPServer()
		server.listenErr = bindErr

		if err := NewHTTPServerService(server, time.Second).Serve(context.Background()); !errors.Is(err, bindErr) {
			t.Errorf("Serve() = %v, want %v", err, bindErr)
		}
	})

	t.Run("shutdown failure", func(t *testing.T) {
		t.Parallel()

		shutdownErr := errors.New("shutdown timeout")
		server := newStubHTTPServer()
		server.shutdownErr = shutdownErr
		svc := NewHTTPServerService(server, time.Second)
		ctx, cancel := context.WithCancel(context.Background())

		errCh := make(chan error, 1)
		go func() { errCh <- svc.Serve(ctx) }()
		<-server.started
		cancel()

		if err := <-errCh; !errors.Is(err, shutdownErr) {
			t.Errorf("Serve() = %v, want %v", err, shutdownErr)
		}
	})
}

type stubQueue struct {
	err error
}

func (q stubQueue) Run(ctx context.Context) error {
	if q.err != nil {
		return q.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestQueueService_Serve(t *testing.T) {
	t.Parallel()

	transient := errors.New("store unavailable")
	corrupted := fmt.Errorf("%w: job 7 not in flight", recalc.ErrQueueCorrupted)

	tests := []struct {
		name          string
		runErr        error
		wantTerminate bool
	}{
		{"transient failure restarts", transient, false},
		{"corruption terminates the tree", corrupted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := NewQueueService(stubQueue{err: tt.runErr}).Serve(context.Background())
			if !errors.Is(err, tt.runErr) {
				t.Errorf("Serve() = %v, want it to wrap %v", err, tt.runErr)
			}
			if got := errors.Is(err, suture.ErrTerminateSupervisorTree); got != tt.wantTerminate {
				t.Errorf("terminates tree = %v, want %v", got, tt.wantTerminate)
			}
		})
	}

	t.Run("stops on cancel", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := NewQueueService(stubQueue{}).Serve(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	})
}

type stubSweep struct {
	served atomic.Int32
}

func (s *stubSweep) Serve(ctx context.Context) error {
	s.served.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func TestSweepService_UnderSupervisor(t *testing.T) {
	t.Parallel()

	job := &stubSweep{}
	svc := NewSweepService(job)
	if svc.String() != "flag-sweep" {
		t.Errorf("String() = %q", svc.String())
	}

	sup := suture.New("test", suture.Spec{Timeout: time.Second})
	sup.Add(svc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := sup.ServeBackground(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for job.served.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweep was not started")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-errCh
}
