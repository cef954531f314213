// Package fetcher performs single remote requests with bounded concurrency,
// request pacing and exponential-backoff retries. One Fetcher is created per
// remote source and shared by all of that source's callers.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JonathonClaypool/MilMap-sub001/pkg/logger"
	"github.com/JonathonClaypool/MilMap-sub001/pkg/metrics"
	"github.com/JonathonClaypool/MilMap-sub001/pkg/telemetry"
	"github.com/cenkalti/backoff/v5"
	"github.com/go-playground/validator/v10"
	"github.com/klauspost/compress/gzip"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// maxBodySize bounds a single payload; a 1 arc-second elevation tile is ~25MB.
const maxBodySize = 64 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

type Config struct {
	Name               string        `validate:"required"`
	Timeout            time.Duration `validate:"gt=0"`
	UserAgent          string        `validate:"required"`
	MaxConcurrency     int           `validate:"min=1,max=16"`
	MaxRetries         int           `validate:"min=0,max=10"`
	InitialRetryDelay  time.Duration `validate:"gte=0"`
	MaxRetryDelay      time.Duration `validate:"gtefield=InitialRetryDelay"`
	MinRequestInterval time.Duration `validate:"gte=0"`
}

// Request describes one outbound call. An empty Method means GET.
type Request struct {
	Method      string
	URL         string
	Body        []byte
	ContentType string
}

type Fetcher struct {
	cfg      Config
	client   *http.Client
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	isAbsent func(status int) bool
	jitter   float64
	logger   logger.Logger
}

func New(cfg Config, opts ...Option) (*Fetcher, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid fetcher config %q: %w", cfg.Name, err)
	}

	options := loadOptions(opts...)

	client := options.client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	limit := rate.Inf
	if cfg.MinRequestInterval > 0 {
		limit = rate.Every(cfg.MinRequestInterval)
	}

	return &Fetcher{
		cfg:      cfg,
		client:   client,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		limiter:  rate.NewLimiter(limit, 1),
		isAbsent: options.isAbsent,
		jitter:   options.jitter,
		logger:   options.logger.With("source", cfg.Name),
	}, nil
}

func (f *Fetcher) Name() string {
	return f.cfg.Name
}

// MaxConcurrency is the number of requests this source runs at once.
func (f *Fetcher) MaxConcurrency() int {
	return f.cfg.MaxConcurrency
}

// Fetch issues a GET request for url. See Do.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, bool, error) {
	return f.Do(ctx, Request{Method: http.MethodGet, URL: url})
}

// Do performs the request and returns the (decompressed) payload. A response
// the source reports as absent yields found == false with a nil error.
// Transient failures are retried; when retries run out an *Error is returned.
// Cancellation is reported as the context's error, never as *Error.
func (f *Fetcher) Do(ctx context.Context, req Request) ([]byte, bool, error) {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return nil, false, err
	}
	defer f.sem.Release(1)

	ctx, span := telemetry.Tracer().Start(ctx, "fetch "+f.cfg.Name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("fetch.source", f.cfg.Name),
			attribute.String("url.full", req.URL),
		),
	)
	defer span.End()

	var (
		attempts   int
		lastStatus int
	)

	operation := func() (payload, error) {
		attempts++
		if attempts > 1 {
			metrics.TilesUpstreamRetries.WithLabelValues(f.cfg.Name).Inc()
		}

		if err := f.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return payload{}, backoff.Permanent(ctx.Err())
			}
			return payload{}, backoff.Permanent(fmt.Errorf("request pacing: %w", err))
		}

		p, status, err := f.attempt(ctx, req)
		lastStatus = status
		return p, err
	}

	p, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(f.newBackOff()),
		backoff.WithMaxTries(uint(f.cfg.MaxRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			f.logger.Debug("retrying upstream request", "url", req.URL, "attempt", attempts, "next", next, "error", err)
		}),
	)
	span.SetAttributes(attribute.Int("fetch.attempts", attempts))

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			metrics.TilesUpstreamRequests.WithLabelValues(f.cfg.Name, "canceled").Inc()
			span.SetStatus(codes.Error, "canceled")
			return nil, false, ctxErr
		}

		metrics.TilesUpstreamRequests.WithLabelValues(f.cfg.Name, "failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		f.logger.Warn("upstream request failed", "url", req.URL, "attempts", attempts, "status", lastStatus, "error", err)

		return nil, false, &Error{
			URL:        req.URL,
			StatusCode: lastStatus,
			Attempts:   attempts,
			Err:        err,
		}
	}

	if !p.found {
		metrics.TilesUpstreamRequests.WithLabelValues(f.cfg.Name, "absent").Inc()
		span.SetAttributes(attribute.Bool("fetch.absent", true))
		return nil, false, nil
	}

	metrics.TilesUpstreamRequests.WithLabelValues(f.cfg.Name, "ok").Inc()
	span.SetAttributes(attribute.Int("fetch.bytes", len(p.data)))
	return p.data, true, nil
}

type payload struct {
	data  []byte
	found bool
}

func (f *Fetcher) attempt(ctx context.Context, req Request) (payload, int, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return payload{}, 0, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("User-Agent", f.cfg.UserAgent)
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}

	start := time.Now()
	resp, err := f.client.Do(httpReq)
	metrics.TilesUpstreamLatency.WithLabelValues(f.cfg.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return payload{}, 0, backoff.Permanent(ctx.Err())
		}
		return payload{}, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	status := resp.StatusCode
	switch {
	case status >= 200 && status < 300:
		data, err := readBody(resp)
		if err != nil {
			if ctx.Err() != nil {
				return payload{}, status, backoff.Permanent(ctx.Err())
			}
			return payload{}, status, err
		}
		return payload{data: data, found: true}, status, nil

	case f.isAbsent(status):
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return payload{}, status, nil

	case isTransient(status):
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		if wait := retryAfter(resp.Header, f.cfg.MaxRetryDelay); wait > 0 {
			return payload{}, status, backoff.RetryAfter(wait)
		}
		return payload{}, status, &StatusError{StatusCode: status}

	default:
		return payload{}, status, backoff.Permanent(&StatusError{StatusCode: status})
	}
}

func (f *Fetcher) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.cfg.InitialRetryDelay
	b.MaxInterval = f.cfg.MaxRetryDelay
	b.Multiplier = 2
	b.RandomizationFactor = f.jitter
	return b
}

func readBody(resp *http.Response) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	declared := strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip")
	if !declared && !hasGzipMagic(data) {
		return data, nil
	}

	out, err := gunzip(data)
	if err != nil {
		if !declared {
			// the magic bytes were payload, e.g. an 8075 m sample in a raw height tile
			return data, nil
		}
		return nil, fmt.Errorf("failed to decompress: %w", err)
	}
	return out, nil
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	return io.ReadAll(io.LimitReader(zr, maxBodySize))
}

func hasGzipMagic(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

func isTransient(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		status >= 500
}

// retryAfter returns the server-requested delay in whole seconds, capped at
// maxDelay. Zero means "use the regular backoff".
func retryAfter(h http.Header, maxDelay time.Duration) int {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}

	var wait time.Duration
	if secs, err := strconv.Atoi(v); err == nil {
		wait = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(v); err == nil {
		wait = time.Until(at)
	}

	wait = min(wait, maxDelay)
	if wait < time.Second {
		return 0
	}
	return int(wait / time.Second)
}

var _ error = (*StatusError)(nil)

// StatusError is an unexpected HTTP status from the remote source.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// IsStatus reports whether err carries the given upstream status code.
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == status
}
