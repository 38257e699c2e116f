// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// expiringAPI answers 401 on every item path until the session is refreshed.
// The refresh waits for queued followers before succeeding (or failing).
func expiringAPI(followers int, refreshStatus int, refreshed *atomic.Bool) route {
	return func(h *harness, w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == DefaultRefreshPath {
			h.waitForQueued(followers)
			if refreshStatus == http.StatusOK {
				refreshed.Store(true)
			}
			w.WriteHeader(refreshStatus)
			return
		}
		if !refreshed.Load() {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "token expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"path": r.URL.Path})
	}
}

func TestSingleFlightRefresh(t *testing.T) {
	for _, n := range []int{1, 5, 50} {
		t.Run(fmt.Sprintf("%d callers", n), func(t *testing.T) {
			var refreshed atomic.Bool
			h := newHarness(t, expiringAPI(n-1, http.StatusOK, &refreshed))

			results := make([]*Result, n)
			errs := make([]error, n)
			concurrently(n, func(i int) {
				results[i], errs[i] = h.gw.Call(context.Background(), fmt.Sprintf("/api/items/%d/", i), Options{})
			})

			assert.Equal(t, 1, h.count(DefaultRefreshPath))
			for i := 0; i < n; i++ {
				require.NoError(t, errs[i])
				require.True(t, results[i].OK(), "call %d", i)
				var body map[string]string
				require.NoError(t, results[i].Decode(&body))
				assert.Equal(t, fmt.Sprintf("/api/items/%d/", i), body["path"])
				assert.Equal(t, 2, h.count(fmt.Sprintf("/api/items/%d/", i)))
			}
			assert.False(t, h.gw.coordinator.InFlight())
			assert.Zero(t, h.navs.Load())
		})
	}
}

func TestThreeCallsShareOneRefresh(t *testing.T) {
	var refreshed atomic.Bool
	h := newHarness(t, expiringAPI(2, http.StatusOK, &refreshed))

	paths := []string{"/a", "/b", "/c"}
	results := make([]*Result, len(paths))
	errs := make([]error, len(paths))
	concurrently(len(paths), func(i int) {
		results[i], errs[i] = h.gw.Call(context.Background(), paths[i], Options{})
	})

	assert.Equal(t, 1, h.count(DefaultRefreshPath))
	replays := 0
	for i, p := range paths {
		require.NoError(t, errs[i])
		var body map[string]string
		require.NoError(t, results[i].Decode(&body))
		assert.Equal(t, p, body["path"])
		replays += h.count(p) - 1
	}
	assert.Equal(t, 3, replays)
}

func TestQueueDrainOnSuccessResolvesEachReplayIndependently(t *testing.T) {
	var refreshed atomic.Bool
	h := newHarness(t, func(h *harness, w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == DefaultRefreshPath {
			h.waitForQueued(2)
			refreshed.Store(true)
			w.WriteHeader(http.StatusOK)
			return
		}
		if !refreshed.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/ok":
			writeJSON(w, http.StatusOK, map[string]int{"id": 7})
		case "/invalid":
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"code":    "invalid",
				"message": "email is taken",
				"errors":  map[string][]string{"email": {"taken"}},
			})
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	})

	paths := []string{"/ok", "/invalid", "/down"}
	results := make([]*Result, len(paths))
	errs := make([]error, len(paths))
	concurrently(len(paths), func(i int) {
		results[i], errs[i] = h.gw.Call(context.Background(), paths[i], Options{})
	})

	for i := range paths {
		require.NoError(t, errs[i], paths[i])
	}
	assert.True(t, results[0].OK())

	require.NotNil(t, results[1].Failure)
	assert.Equal(t, KindClientRejected, results[1].Failure.Kind)
	assert.Equal(t, "invalid", results[1].Failure.Code)
	assert.Equal(t, "email is taken", results[1].Failure.Message)
	assert.NotNil(t, results[1].Failure.Detail)
	assert.JSONEq(t,
		`{"status":false,"code":"invalid","message":"email is taken","detail":{"email":["taken"]}}`,
		string(results[1].Body))

	require.NotNil(t, results[2].Failure)
	assert.Equal(t, KindNetworkOrServer, results[2].Failure.Kind)
	assert.Equal(t, http.StatusBadGateway, results[2].Failure.HTTPStatus)

	assert.Equal(t, 1, h.count(DefaultRefreshPath))
	assert.Equal(t, StatusUnknown, h.gw.Session().Current())
}

func TestQueueDrainOnFailureRejectsWithoutNetworkCalls(t *testing.T) {
	var refreshed atomic.Bool
	h := newHarness(t, expiringAPI(4, http.StatusUnauthorized, &refreshed))

	const n = 5
	errs := make([]error, n)
	results := make([]*Result, n)
	concurrently(n, func(i int) {
		results[i], errs[i] = h.gw.Call(context.Background(), fmt.Sprintf("/api/items/%d/", i), Options{})
	})

	assert.Equal(t, 1, h.count(DefaultRefreshPath))
	for i := 0; i < n; i++ {
		assert.Nil(t, results[i])
		require.Error(t, errs[i])
		assert.ErrorIs(t, errs[i], ErrRefreshFailed)
		assert.ErrorIs(t, errs[i], ErrAuthExpired, "the refresh failure is the cause")
		assert.Equal(t, 1, h.count(fmt.Sprintf("/api/items/%d/", i)), "no replay after a failed refresh")
	}
	assert.Equal(t, int32(1), h.navs.Load())
	assert.Equal(t, StatusUnauthenticated, h.gw.Session().Current())
}

func TestRefreshEndpointExpiryDoesNotRefresh(t *testing.T) {
	h := newHarness(t, func(h *harness, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	res, err := h.gw.Call(context.Background(), DefaultRefreshPath, Options{Method: http.MethodPost})
	assert.Nil(t, res)
	require.ErrorIs(t, err, ErrRefreshFailed)

	assert.Equal(t, 1, h.count(DefaultRefreshPath))
	assert.False(t, h.gw.coordinator.InFlight())
	assert.Equal(t, int32(1), h.navs.Load())
	assert.Equal(t, StatusUnauthenticated, h.gw.Session().Current())
}

func TestReplayIsBoundedToOneRetry(t *testing.T) {
	h := newHarness(t, func(h *harness, w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == DefaultRefreshPath {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	})

	res, err := h.gw.Call(context.Background(), "/api/items/", Options{})
	assert.Nil(t, res)
	require.ErrorIs(t, err, ErrRefreshFailed)

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, http.StatusUnauthorized, e.Status)

	assert.Equal(t, 1, h.count(DefaultRefreshPath))
	assert.Equal(t, 2, h.count("/api/items/"))
	assert.Equal(t, int32(1), h.navs.Load())
	assert.Equal(t, StatusUnauthenticated, h.gw.Session().Current())
}

func TestRejectedReplaysNavigateOncePerCycle(t *testing.T) {
	const n = 5
	h := newHarness(t, func(h *harness, w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == DefaultRefreshPath {
			if h.count(DefaultRefreshPath) == 1 {
				h.waitForQueued(n - 1)
			}
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	})

	errs := make([]error, n)
	results := make([]*Result, n)
	concurrently(n, func(i int) {
		results[i], errs[i] = h.gw.Call(context.Background(), fmt.Sprintf("/x/%d", i), Options{})
	})

	assert.Equal(t, 1, h.count(DefaultRefreshPath))
	for i := 0; i < n; i++ {
		assert.Nil(t, results[i])
		require.ErrorIs(t, errs[i], ErrRefreshFailed, "call %d", i)
		assert.Equal(t, 2, h.count(fmt.Sprintf("/x/%d", i)), "each call is replayed once")
	}
	assert.Equal(t, int32(1), h.navs.Load())
	assert.Equal(t, StatusUnauthenticated, h.gw.Session().Current())

	// A later cycle that loses the session again navigates again.
	_, err := h.gw.Call(context.Background(), "/x/again", Options{})
	require.ErrorIs(t, err, ErrRefreshFailed)
	assert.Equal(t, 2, h.count(DefaultRefreshPath))
	assert.Equal(t, int32(2), h.navs.Load())
}

func TestPathEndingInLoginPathIsNotExempt(t *testing.T) {
	var refreshed atomic.Bool
	h := newHarness(t, expiringAPI(0, http.StatusOK, &refreshed))

	target := "/legacy" + DefaultLoginPath
	res, err := h.gw.Call(context.Background(), target, Options{Method: http.MethodPost})
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, 1, h.count(DefaultRefreshPath))
	assert.Equal(t, 2, h.count(target))
	assert.Equal(t, StatusUnknown, h.gw.Session().Current(), "only the real login endpoint authenticates")
}

func TestLoginFailureIsPassedThrough(t *testing.T) {
	const raw = `{"detail":"Invalid credentials"}`
	h := newHarness(t, func(h *harness, w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(raw))
	})

	res, err := h.gw.Call(context.Background(), DefaultLoginPath, Options{
		Method: http.MethodPost,
		Body:   map[string]string{"username": "ada", "password": "wrong"},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Failure)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, raw, string(res.Body))
	assert.Equal(t, "Invalid credentials", res.Failure.Message)

	assert.Zero(t, h.count(DefaultRefreshPath))
	assert.Zero(t, h.navs.Load())
	assert.Equal(t, StatusUnknown, h.gw.Session().Current())
}

func TestLoginAndProfileMarkSessionAuthenticated(t *testing.T) {
	h := newHarness(t, func(h *harness, w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": true})
	})
	ctx := context.Background()

	_, err := h.gw.Call(ctx, DefaultProfilePath, Options{})
	require.NoError(t, err)
	assert.True(t, h.gw.Session().Authenticated())

	_, err = h.gw.Logout(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusUnauthenticated, h.gw.Session().Current())
	assert.Zero(t, h.navs.Load(), "explicit logout does not redirect")

	_, err = h.gw.Call(ctx, DefaultLoginPath, Options{Method: http.MethodPost})
	require.NoError(t, err)
	assert.True(t, h.gw.Session().Authenticated())
}

func TestClientErrorsAreReturnedAsData(t *testing.T) {
	h := newHarness(t, func(h *harness, w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/forbidden":
			writeJSON(w, http.StatusForbidden, map[string]string{"detail": "not allowed"})
		case "/html":
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("<h1>Not Found</h1>"))
		}
	})
	ctx := context.Background()

	res, err := h.gw.Call(ctx, "/forbidden", Options{})
	require.NoError(t, err)
	require.NotNil(t, res.Failure)
	assert.Equal(t, KindClientRejected, res.Failure.Kind)
	assert.Equal(t, "http_403", res.Failure.Code)
	assert.Equal(t, "not allowed", res.Failure.Message)
	assert.False(t, res.Failure.Status)

	res, err = h.gw.Call(ctx, "/html", Options{})
	require.NoError(t, err)
	require.NotNil(t, res.Failure)
	assert.Equal(t, KindNetworkOrServer, res.Failure.Kind)
	assert.Equal(t, "Not Found", res.Failure.Message)

	assert.Zero(t, h.count(DefaultRefreshPath))
	assert.Equal(t, StatusUnknown, h.gw.Session().Current())
}

func TestNetworkFailureIsReturnedAsData(t *testing.T) {
	gw, err := New("http://127.0.0.1:1", WithTimeout(time.Second))
	require.NoError(t, err)

	res, err := gw.Call(context.Background(), "/api/items/", Options{})
	require.NoError(t, err)
	require.NotNil(t, res.Failure)
	assert.Equal(t, KindNetworkOrServer, res.Failure.Kind)
	assert.Equal(t, "network_error", res.Failure.Code)
}

func TestNextCycleStartsAfterDrain(t *testing.T) {
	var generation atomic.Int32
	var valid atomic.Bool
	h := newHarness(t, func(h *harness, w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == DefaultRefreshPath {
			h.waitForQueued(2)
			generation.Add(1)
			valid.Store(true)
			w.WriteHeader(http.StatusOK)
			return
		}
		if !valid.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int32{"generation": generation.Load()})
	})

	for round := 1; round <= 2; round++ {
		valid.Store(false)
		errs := make([]error, 3)
		concurrently(3, func(i int) {
			_, errs[i] = h.gw.Call(context.Background(), fmt.Sprintf("/r%d/%d", round, i), Options{})
		})
		for _, err := range errs {
			require.NoError(t, err)
		}
		assert.Equal(t, round, h.count(DefaultRefreshPath))
		assert.False(t, h.gw.coordinator.InFlight())
	}
}

func TestConcurrentRefreshCallsShareOneRequest(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, func(h *harness, w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	})

	const n = 10
	errs := make([]error, n)
	done := make(chan struct{})
	go func() {
		concurrently(n, func(i int) {
			errs[i] = h.gw.Refresh(context.Background())
		})
		close(done)
	}()

	require.Eventually(t, h.gw.coordinator.InFlight, 5*time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	<-done

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, h.count(DefaultRefreshPath))
}

func TestFollowerStopsWaitingWhenContextEnds(t *testing.T) {
	release := make(chan struct{})
	var refreshed atomic.Bool
	h := newHarness(t, func(h *harness, w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == DefaultRefreshPath {
			<-release
			refreshed.Store(true)
			w.WriteHeader(http.StatusOK)
			return
		}
		if !refreshed.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	initiator := make(chan error, 1)
	go func() {
		_, err := h.gw.Call(context.Background(), "/first", Options{})
		initiator <- err
	}()
	require.Eventually(t, h.gw.coordinator.InFlight, 5*time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	follower := make(chan error, 1)
	go func() {
		_, err := h.gw.Call(ctx, "/second", Options{})
		follower <- err
	}()
	require.Eventually(t, func() bool { return h.gw.coordinator.pending() == 1 }, 5*time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-follower, context.Canceled)

	close(release)
	require.NoError(t, <-initiator)
	// The abandoned entry is still drained exactly once.
	require.Eventually(t, func() bool { return h.count("/second") == 2 }, 5*time.Second, time.Millisecond)
}

func TestSessionSubscribersSeeTransitions(t *testing.T) {
	var refreshed atomic.Bool
	h := newHarness(t, expiringAPI(0, http.StatusForbidden, &refreshed))

	updates, cancel := h.gw.Session().Subscribe()
	defer cancel()

	_, err := h.gw.Call(context.Background(), "/api/items/", Options{})
	require.ErrorIs(t, err, ErrRefreshFailed)

	select {
	case s := <-updates:
		assert.Equal(t, StatusUnauthenticated, s)
	case <-time.After(time.Second):
		t.Fatal("no session update")
	}
}

func TestDoDecodesTypedBody(t *testing.T) {
	h := newHarness(t, func(h *harness, w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/user":
			writeJSON(w, http.StatusOK, map[string]any{"id": 3, "email": "ada@example.com"})
		default:
			writeJSON(w, http.StatusConflict, map[string]string{"code": "conflict", "message": "exists"})
		}
	})
	type user struct {
		ID    int    `json:"id"`
		Email string `json:"email"`
	}

	u, err := Do[user](context.Background(), h.gw, "/user", Options{})
	require.NoError(t, err)
	assert.Equal(t, user{ID: 3, Email: "ada@example.com"}, u)

	_, err = Do[user](context.Background(), h.gw, "/other", Options{Method: http.MethodPost})
	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, "conflict", f.Code)
}

func TestNewRejectsRelativeBaseURL(t *testing.T) {
	_, err := New("/api")
	require.Error(t, err)
}
