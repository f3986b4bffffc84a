package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestShutdown_ClosesInReverseOrder(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{})
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		sm.RegisterCloser(CloserFunc(func() error {
			order = append(order, i)
			return nil
		}))
	}

	if err := sm.Shutdown(context.Background(), "test"); err != nil {
		t.Fatal(err)
	}
	if len(order) != 3 || order[0] != 2 || order[2] != 0 {
		t.Errorf("close order = %v", order)
	}
	if !sm.IsShuttingDown() {
		t.Error("expected shutting down")
	}
	select {
	case <-sm.ShutdownCh():
	default:
		t.Error("shutdown channel not closed")
	}

	// A second call is a no-op.
	if err := sm.Shutdown(context.Background(), "again"); err != nil {
		t.Fatal(err)
	}
	if len(order) != 3 {
		t.Errorf("closers ran twice: %v", order)
	}
}

func TestShutdown_JoinsCloseErrors(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{})
	first := errors.New("first")
	second := errors.New("second")
	sm.RegisterCloser(CloserFunc(func() error { return first }))
	sm.RegisterCloser(CloserFunc(func() error { return second }))

	err := sm.Shutdown(context.Background(), "test")
	if !errors.Is(err, first) || !errors.Is(err, second) {
		t.Errorf("err = %v", err)
	}
}

func TestShutdown_DrainTimeout(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{DrainTimeout: 100 * time.Millisecond})
	if !sm.TrackRequest() {
		t.Fatal("request rejected before shutdown")
	}
	if err := sm.Shutdown(context.Background(), "test"); err == nil {
		t.Error("expected drain timeout")
	}
	if sm.TrackRequest() {
		t.Error("request accepted after shutdown")
	}
	sm.UntrackRequest()
	if sm.InFlightCount() != 0 {
		t.Errorf("in flight = %d", sm.InFlightCount())
	}
}

func TestShutdownMiddleware(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{})
	h := ShutdownMiddleware(sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sm.InFlightCount() != 1 {
			t.Errorf("in flight = %d", sm.InFlightCount())
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d", rec.Code)
	}

	sm.Shutdown(context.Background(), "test")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status after shutdown = %d", rec.Code)
	}
}

func TestServeHTTP(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	sm := NewShutdownManager(ShutdownConfig{})
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})}
	errCh := make(chan error, 1)
	sm.ServeHTTP(srv, lis, errCh)

	resp, err := http.Get("http://" + lis.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	if err := sm.Shutdown(context.Background(), "test"); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-errCh:
		t.Errorf("unexpected serve error: %v", err)
	default:
	}
}
