package overpass

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JonathonClaypool/MilMap-sub001/internal/fetcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, endpoint string, opts ...fetcher.Option) *Client {
	t.Helper()
	opts = append([]fetcher.Option{fetcher.WithAbsentStatus()}, opts...)
	f, err := fetcher.New(fetcher.Config{
		Name:              "overpass",
		Timeout:           5 * time.Second,
		UserAgent:         "milmap-test/1.0",
		MaxConcurrency:    1,
		MaxRetries:        2,
		InitialRetryDelay: time.Millisecond,
		MaxRetryDelay:     2 * time.Millisecond,
	}, opts...)
	require.NoError(t, err)

	c, err := NewClient(endpoint, f)
	require.NoError(t, err)
	return c
}

func TestQuery(t *testing.T) {
	const query = `[out:json];node["military"](50.0,8.0,50.1,8.1);out;`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, query, r.PostForm.Get("data"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"elements":[]}`))
	}))
	defer srv.Close()

	body, err := newTestClient(t, srv.URL).Query(context.Background(), query)
	require.NoError(t, err)
	require.JSONEq(t, `{"elements":[]}`, string(body))
}

func TestQueryRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Query(context.Background(), "node(1);out;")
	require.NoError(t, err)
	require.EqualValues(t, 2, calls.Load())
}

func TestQueryNotFoundIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Query(context.Background(), "node(1);out;")
	require.ErrorIs(t, err, fetcher.ErrFetchFailed)
}

func TestQueryAbsenceStatusIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, fetcher.WithAbsentStatus(http.StatusGone))
	body, err := c.Query(context.Background(), "node(1);out;")
	require.ErrorIs(t, err, ErrNoResult)
	require.ErrorIs(t, err, fetcher.ErrFetchFailed)
	var fe *fetcher.Error
	require.False(t, errors.As(err, &fe))
	require.Nil(t, body)
}

func TestQueryRejectsEmpty(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1/api/interpreter")
	_, err := c.Query(context.Background(), "  ")
	require.ErrorIs(t, err, ErrEmptyQuery)
}

func TestNewClientRejectsBadEndpoint(t *testing.T) {
	f, err := fetcher.New(fetcher.Config{Name: "o", Timeout: time.Second, UserAgent: "ua", MaxConcurrency: 1})
	require.NoError(t, err)
	_, err = NewClient("not a url", f)
	require.Error(t, err)
}
