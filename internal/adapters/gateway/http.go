package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/okian/geoasistencia/internal/domain/geofence"
	"github.com/okian/geoasistencia/internal/domain/model"
	"github.com/okian/geoasistencia/pkg/logger"
	"github.com/okian/geoasistencia/pkg/metrics"
)

// Backend routes.
const (
	pathMark    = "/asistencia/marcar"
	pathHistory = "/asistencia/hoy"
	pathSites   = "/sedes"
)

const (
	defaultTimeout       = 10 * time.Second
	defaultRetryWait     = 500 * time.Millisecond
	defaultRetryMaxWait  = 3 * time.Second
	defaultUserAgent     = "geoasistencia-engine"
	maxErrorMessageBytes = 512
)

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithToken sets the bearer token sent on every call.
func WithToken(token string) HTTPOption {
	return func(c *HTTPClient) { c.token = token }
}

// WithTimeout bounds every call.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetryCount sets how many times idempotent reads are retried.
// Mark submissions are never retried by the client.
func WithRetryCount(n int) HTTPOption {
	return func(c *HTTPClient) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// WithHTTPLogger sets a custom logger.
func WithHTTPLogger(l logger.Logger) HTTPOption {
	return func(c *HTTPClient) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithOnUnauthorized registers a callback fired whenever the backend answers 401.
func WithOnUnauthorized(fn func()) HTTPOption {
	return func(c *HTTPClient) { c.onUnauthorized = fn }
}

// HTTPClient talks to the attendance REST backend.
type HTTPClient struct {
	baseURL        string
	token          string
	timeout        time.Duration
	retries        int
	onUnauthorized func()
	logger         logger.Logger

	client *resty.Client
}

var (
	_ Gateway       = (*HTTPClient)(nil)
	_ SiteDirectory = (*HTTPClient)(nil)
)

// NewHTTPClient creates a client for the backend at baseURL.
func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: baseURL,
		timeout: defaultTimeout,
		logger:  logger.Get().Named("gateway"),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.client = resty.New().
		SetBaseURL(baseURL).
		SetTimeout(c.timeout).
		SetRetryCount(c.retries).
		SetRetryWaitTime(defaultRetryWait).
		SetRetryMaxWaitTime(defaultRetryMaxWait).
		AddRetryCondition(retryReads).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", defaultUserAgent)
	if c.token != "" {
		c.client.SetAuthToken(c.token)
	}
	return c
}

// retryReads retries GETs on transport errors and 5xx answers.
func retryReads(r *resty.Response, err error) bool {
	if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
		return false
	}
	return err != nil || r.StatusCode() >= http.StatusInternalServerError
}

// SubmitMark posts one mark. A 2xx answer is an acceptance.
func (c *HTTPClient) SubmitMark(ctx context.Context, req MarkRequest) (Receipt, error) {
	var reply markReply
	var failure errorBody
	start := time.Now()

	r := c.client.R().
		SetContext(ctx).
		SetBody(newMarkBody(req)).
		SetResult(&reply).
		SetError(&failure)
	if req.RequestID != "" {
		r.SetHeader("X-Request-ID", req.RequestID)
	}
	resp, err := r.Post(pathMark)
	if err = c.check("submit_mark", start, resp, err, failure); err != nil {
		c.logger.Warn(ctx, "mark submission failed",
			logger.String("request_id", req.RequestID),
			logger.String("type", string(req.Type)),
			logger.Bool("auto", req.Automatic),
			logger.Error(err),
		)
		return Receipt{}, err
	}

	c.logger.Info(ctx, "mark submitted",
		logger.String("request_id", req.RequestID),
		logger.String("type", string(req.Type)),
		logger.String("site_id", req.SiteID),
		logger.Bool("auto", req.Automatic),
	)
	return Receipt{
		Accepted:        true,
		ServerTimestamp: time.Time(reply.ServerTimestamp),
		Message:         reply.Message,
	}, nil
}

// FetchTodayHistory reads today's marks, most recent first.
func (c *HTTPClient) FetchTodayHistory(ctx context.Context) (model.DailyHistory, error) {
	var rows []historyRow
	var failure errorBody
	start := time.Now()

	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&rows).
		SetError(&failure).
		Get(pathHistory)
	if err = c.check("fetch_history", start, resp, err, failure); err != nil {
		return model.DailyHistory{}, err
	}

	entries := make([]model.Mark, 0, len(rows))
	for i, row := range rows {
		m, err := row.toMark()
		if err != nil {
			return model.DailyHistory{}, fmt.Errorf("%w: history row %d: %w", ErrDecode, i, err)
		}
		entries = append(entries, m)
	}
	return model.DailyHistory{Entries: entries}, nil
}

// ListSites reads the site directory.
func (c *HTTPClient) ListSites(ctx context.Context) ([]geofence.Site, error) {
	var rows []siteRow
	var failure errorBody
	start := time.Now()

	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&rows).
		SetError(&failure).
		Get(pathSites)
	if err = c.check("list_sites", start, resp, err, failure); err != nil {
		return nil, err
	}

	sites := make([]geofence.Site, 0, len(rows))
	for _, row := range rows {
		s, err := row.toSite()
		if err != nil {
			c.logger.Warn(ctx, "skipping invalid site", logger.String("site_id", string(row.ID)), logger.Error(err))
			continue
		}
		sites = append(sites, s)
	}
	return sites, nil
}

// check maps a resty outcome to the gateway error kinds and records metrics.
func (c *HTTPClient) check(op string, start time.Time, resp *resty.Response, err error, failure errorBody) error {
	latency := float64(time.Since(start).Milliseconds())
	outcome := "ok"
	defer func() { metrics.RecordGatewayRequest(op, outcome, latency) }()

	if err != nil {
		outcome = "transport"
		if resp != nil && resp.IsSuccess() {
			// The exchange worked but the body did not decode.
			outcome = "decode"
			return fmt.Errorf("%w: %s: %w", ErrDecode, op, err)
		}
		return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
	}

	status := resp.StatusCode()
	switch {
	case resp.IsSuccess():
		return nil
	case status == http.StatusUnauthorized:
		outcome = "unauthorized"
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return fmt.Errorf("%w: %s", ErrUnauthorized, op)
	case status == http.StatusConflict || status == http.StatusUnprocessableEntity || status == http.StatusBadRequest:
		outcome = "rejected"
		msg := failure.text()
		if msg == "" {
			msg = truncate(string(resp.Body()), maxErrorMessageBytes)
		}
		return fmt.Errorf("%w: %s", ErrRejectedByServer, msg)
	default:
		outcome = "transport"
		return fmt.Errorf("%w: %s: unexpected status %d", ErrTransport, op, status)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
