// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// harness is a fake accounts API in front of a gateway. Routes see the
// gateway through h.gw, which is set before the server starts.
type harness struct {
	srv  *httptest.Server
	gw   *Gateway
	navs atomic.Int32

	mu   sync.Mutex
	hits map[string]int
}

type route func(h *harness, w http.ResponseWriter, r *http.Request)

func newHarness(t *testing.T, handle route, opts ...Option) *harness {
	t.Helper()
	h := &harness{hits: make(map[string]int)}
	h.srv = httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		h.hits[r.URL.Path]++
		h.mu.Unlock()
		handle(h, w, r)
	}))

	opts = append([]Option{
		WithNavigator(NavigatorFunc(func(context.Context) { h.navs.Add(1) })),
	}, opts...)
	gw, err := New("http://"+h.srv.Listener.Addr().String(), opts...)
	require.NoError(t, err)
	h.gw = gw

	h.srv.Start()
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) count(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hits[path]
}

// waitForQueued blocks until n calls are parked on the current refresh cycle.
// It runs inside handlers, so it gives up quietly instead of failing the test.
func (h *harness) waitForQueued(n int) {
	deadline := time.Now().Add(5 * time.Second)
	for h.gw.coordinator.pending() < n && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// concurrently runs fn n times behind a shared start barrier and waits for all.
func concurrently(n int, fn func(i int)) {
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			fn(i)
		}(i)
	}
	close(start)
	wg.Wait()
}
