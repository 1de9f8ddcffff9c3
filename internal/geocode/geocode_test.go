package geocode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	q := NewQueue(time.Millisecond)
	t.Cleanup(q.Close)
	return NewClient(Options{BaseURL: srv.URL, UserAgent: "fieldvisit-test", Country: "br"}, q, nil, zap.NewNop())
}

func TestGeocode_StructuredSearch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Rua A", r.URL.Query().Get("street"))
		assert.Equal(t, "br", r.URL.Query().Get("country"))
		assert.Equal(t, "fieldvisit-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"lat":"-8.05","lon":"-34.9","address":{"road":"Rua A","suburb":"Boa Vista","city":"Recife","state":"Pernambuco","postcode":"50050-000"}}]`)
	})

	res, err := c.Geocode(context.Background(), Query{Street: "Rua A", City: "Recife"})
	require.NoError(t, err)
	assert.Equal(t, "Boa Vista", res.Neighborhood)
	assert.Equal(t, "Recife", res.City)
	assert.Equal(t, "Pernambuco", res.Region)
	assert.Equal(t, "50050-000", res.PostalCode)
	require.NotNil(t, res.Latitude)
	assert.InDelta(t, -8.05, *res.Latitude, 1e-9)
}

func TestGeocode_PostalCodeFallbackThenReverse(t *testing.T) {
	var calls []string
	var mu sync.Mutex
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.URL.Path+"?"+r.URL.Query().Get("postalcode"))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/search" && r.URL.Query().Get("postalcode") == "":
			fmt.Fprint(w, `[]`)
		case r.URL.Path == "/search":
			fmt.Fprint(w, `[{"lat":"-8.1","lon":"-34.95","address":{"city":"Recife","postcode":"50000-000"}}]`)
		case r.URL.Path == "/reverse":
			fmt.Fprint(w, `{"lat":"-8.1","lon":"-34.95","address":{"road":"Av. B","suburb":"Centro","state":"Pernambuco"}}`)
		}
	})

	res, err := c.Geocode(context.Background(), Query{City: "Recife", PostalCode: "50000-000"})
	require.NoError(t, err)
	assert.Equal(t, "Av. B", res.Street)
	assert.Equal(t, "Centro", res.Neighborhood)
	assert.Equal(t, "Recife", res.City)
	assert.Equal(t, "Pernambuco", res.Region)
	assert.Equal(t, []string{"/search?", "/search?50000-000", "/reverse?"}, calls)
}

func TestGeocode_NonOKIsNoData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.Geocode(context.Background(), Query{Street: "x", PostalCode: "1"})
	assert.True(t, errors.Is(err, ErrNoMatch))
}

func TestGeocode_EmptyQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := c.Geocode(context.Background(), Query{})
	assert.True(t, errors.Is(err, ErrNoMatch))
}

func TestQueue_SpacesTasks(t *testing.T) {
	interval := 40 * time.Millisecond
	q := NewQueue(interval)
	defer q.Close()

	var mu sync.Mutex
	var starts []time.Time
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := q.Do(context.Background(), func(context.Context) error {
				mu.Lock()
				starts = append(starts, time.Now())
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, starts, 3)
	for i := 1; i < len(starts); i++ {
		// allow a little scheduler jitter below the nominal interval
		assert.GreaterOrEqual(t, starts[i].Sub(starts[i-1]), interval-5*time.Millisecond)
	}
}

func TestQueue_CancelledWaitRejectsImmediately(t *testing.T) {
	q := NewQueue(time.Hour)
	defer q.Close()

	// consume the single burst token
	require.NoError(t, q.Do(context.Background(), func(context.Context) error { return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	done := make(chan error, 1)
	go func() {
		done <- q.Do(ctx, func(context.Context) error { ran.Store(true); return nil })
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("cancelled task did not return")
	}
	assert.False(t, ran.Load())
}

func TestQueue_PropagatesTaskError(t *testing.T) {
	q := NewQueue(time.Millisecond)
	defer q.Close()

	boom := errors.New("boom")
	err := q.Do(context.Background(), func(context.Context) error { return boom })
	assert.Equal(t, boom, err)
}
