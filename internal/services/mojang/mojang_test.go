// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package mojang_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/ksrminecraft/whitelist-registration/internal/config"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/metrics"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/services/mojang"
	"codeberg.org/ksrminecraft/whitelist-registration/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const notchID = "069a79f444e94726a5befca90e38aaf5"

func newServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		name := strings.TrimPrefix(r.URL.Path, "/users/profiles/minecraft/")
		switch strings.ToLower(name) {
		case "notch":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"069a79f4-44e9-4726-a5be-fca90e38aaf5","name":"Notch"}`))
		case "ghost":
			w.WriteHeader(http.StatusNoContent)
		case "broken":
			w.WriteHeader(http.StatusInternalServerError)
		case "garbage":
			_, _ = w.Write([]byte(`{not json`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newClient(srv *httptest.Server, ttl time.Duration, opts ...mojang.Option) *mojang.Client {
	return mojang.NewClient(config.MojangConfig{
		BaseURL:  srv.URL + "/",
		Timeout:  time.Second,
		CacheTTL: ttl,
	}, opts...)
}

func TestResolveID(t *testing.T) {
	client := newClient(newServer(t, nil), 0)
	ctx := context.Background()

	id, err := client.ResolveID(ctx, " Notch ")
	require.NoError(t, err)
	assert.Equal(t, notchID, id)

	id, err = client.ResolveID(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, id)

	id, err = client.ResolveID(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, id)

	id, err = client.ResolveID(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestResolveID_Unavailable(t *testing.T) {
	client := newClient(newServer(t, nil), time.Minute)

	for _, name := range []string{"broken", "garbage"} {
		_, err := client.ResolveID(context.Background(), name)
		assert.ErrorIs(t, err, mojang.ErrUnavailable, name)
	}
}

func TestResolveID_ServerDown(t *testing.T) {
	srv := newServer(t, nil)
	client := newClient(srv, time.Minute)
	srv.Close()

	_, err := client.ResolveID(context.Background(), "Notch")

	assert.ErrorIs(t, err, mojang.ErrUnavailable)
}

func TestIsOfficial(t *testing.T) {
	client := newClient(newServer(t, nil), 0)
	ctx := context.Background()

	ok, err := client.IsOfficial(ctx, "Notch")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.IsOfficial(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = client.IsOfficial(ctx, "broken")
	assert.ErrorIs(t, err, mojang.ErrUnavailable)
}

func TestResolveID_Cache(t *testing.T) {
	var hits atomic.Int32
	clock := testutil.NewClock(time.Now())
	client := newClient(newServer(t, &hits), time.Minute, mojang.WithClock(clock.Now))
	ctx := context.Background()

	for _, name := range []string{"Notch", "notch", "NOTCH"} {
		id, err := client.ResolveID(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, notchID, id)
	}
	assert.Equal(t, int32(1), hits.Load())

	clock.Advance(2 * time.Minute)
	_, err := client.ResolveID(ctx, "Notch")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestResolveID_FailuresNotCached(t *testing.T) {
	var hits atomic.Int32
	client := newClient(newServer(t, &hits), time.Minute)

	_, _ = client.ResolveID(context.Background(), "broken")
	_, _ = client.ResolveID(context.Background(), "broken")

	assert.Equal(t, int32(2), hits.Load())
}

func TestResolveID_Concurrent(t *testing.T) {
	client := newClient(newServer(t, nil), time.Minute)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := client.ResolveID(context.Background(), "Notch")
			assert.NoError(t, err)
			assert.Equal(t, notchID, id)
		}()
	}
	wg.Wait()
}

func TestResolveID_CancelledCallerDoesNotFailOthers(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		_, _ = w.Write([]byte(`{"id":"069a79f444e94726a5befca90e38aaf5","name":"Notch"}`))
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
	})
	client := newClient(srv, 0)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := client.ResolveID(ctxA, "Notch")
		errA <- err
	}()
	<-started

	type result struct {
		id  string
		err error
	}
	resB := make(chan result, 1)
	go func() {
		id, err := client.ResolveID(context.Background(), "Notch")
		resB <- result{id, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	err := <-errA
	assert.ErrorIs(t, err, mojang.ErrUnavailable)
	assert.ErrorContains(t, err, context.Canceled.Error())

	close(release)
	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, notchID, b.id)
}

func TestResolveID_Metrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	client := newClient(newServer(t, nil), time.Minute, mojang.WithMetrics(m))
	ctx := context.Background()

	_, _ = client.ResolveID(ctx, "Notch")
	_, _ = client.ResolveID(ctx, "Notch")
	_, _ = client.ResolveID(ctx, "ghost")
	_, _ = client.ResolveID(ctx, "broken")

	assert.InDelta(t, 1, promtest.ToFloat64(m.MojangLookups.WithLabelValues("found")), 0)
	assert.InDelta(t, 1, promtest.ToFloat64(m.MojangLookups.WithLabelValues("cached")), 0)
	assert.InDelta(t, 1, promtest.ToFloat64(m.MojangLookups.WithLabelValues("not_found")), 0)
	assert.InDelta(t, 1, promtest.ToFloat64(m.MojangLookups.WithLabelValues("error")), 0)
}
