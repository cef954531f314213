package fetcher

import (
	"net/http"

	"github.com/JonathonClaypool/MilMap-sub001/pkg/logger"
)

type options struct {
	client   *http.Client
	isAbsent func(status int) bool
	jitter   float64
	logger   logger.Logger
}

func loadOptions(opts ...Option) options {
	o := options{
		isAbsent: statusSet(http.StatusNotFound),
		jitter:   0.2,
		logger:   logger.Noop(),
	}
	for _, opt := range opts {
		opt.apply(&o)
	}
	return o
}

type Option interface {
	apply(*options)
}

type absentStatuses []int

func (s absentStatuses) apply(o *options) {
	o.isAbsent = statusSet(s...)
}

// WithAbsentStatus sets the HTTP statuses meaning "the source has no such
// resource". Default: 404.
func WithAbsentStatus(statuses ...int) Option {
	return absentStatuses(statuses)
}

type httpClient struct{ c *http.Client }

func (h httpClient) apply(o *options) {
	o.client = h.c
}

// WithHTTPClient replaces the default client. The client's own timeout is
// used as-is.
func WithHTTPClient(c *http.Client) Option {
	return httpClient{c: c}
}

type jitter float64

func (j jitter) apply(o *options) {
	o.jitter = float64(j)
}

// WithJitter sets the randomization factor of retry delays. Default: 0.2
func WithJitter(factor float64) Option {
	return jitter(factor)
}

type withLogger struct{ l logger.Logger }

func (w withLogger) apply(o *options) {
	if w.l != nil {
		o.logger = w.l
	}
}

func WithLogger(l logger.Logger) Option {
	return withLogger{l: l}
}

func statusSet(statuses ...int) func(int) bool {
	set := make(map[int]struct{}, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return func(status int) bool {
		_, ok := set[status]
		return ok
	}
}
