// Package httpsink implements a generalized bulk-HTTP sink, the shape
// shared by the teacher's Loki and Elasticsearch sinks: POST the encoded,
// compressed batch body to a configured URL with auth/tenant headers,
// classify the response status for retry, and release finalizers on the
// outcome.
//
// Grounded on internal/sinks/loki_sink.go's sendBatch (HTTP client
// construction, header wiring, body draining for connection reuse) and its
// classifyLokiError status-code table, generalized from Loki's specific
// push-endpoint/stream-payload shape onto an arbitrary URL + caller-supplied
// Content-Type, per SPEC_FULL.md §4.7.5's canonical HTTP retry mapping.
package httpsink

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"flowcore/internal/sinkpipeline"
	"flowcore/internal/topology"
	"flowcore/pkg/circuit"
	"flowcore/pkg/retry"
)

// AuthType selects how requests are authenticated.
type AuthType string

const (
	AuthNone   AuthType = ""
	AuthBasic  AuthType = "basic"
	AuthBearer AuthType = "bearer"
)

// Auth configures request authentication.
type Auth struct {
	Type     AuthType
	Username string
	Password string
	Token    string
}

// Config configures an httpsink Sink.
type Config struct {
	URL      string
	Method   string // defaults to POST
	Headers  map[string]string
	TenantID string // sent as X-Scope-OrgID, matching the teacher's Loki multi-tenant header
	Auth     Auth
	Timeout  time.Duration

	Partition sinkpipeline.Partitioner
	Batch     sinkpipeline.BatchConfig
	Service   sinkpipeline.ServiceConfig
	Logger    *logrus.Logger
}

// Sink posts each batch's encoded, compressed body to Config.URL.
type Sink struct {
	cfg        Config
	pipeline   *sinkpipeline.Pipeline
	httpClient *http.Client
	logger     *logrus.Logger
}

func New(cfg Config) (*Sink, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("httpsink: URL is required")
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Partition == nil {
		cfg.Partition = sinkpipeline.StaticPartitioner("http")
	}

	s := &Sink{
		cfg:    cfg,
		logger: cfg.Logger,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				MaxConnsPerHost:       50,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: time.Second,
				ResponseHeaderTimeout: cfg.Timeout,
			},
		},
	}

	svcCfg := cfg.Service
	if svcCfg.RetryLogic == nil {
		svcCfg.RetryLogic = ClassifyHTTPResponse
	}
	if svcCfg.Breaker == nil {
		svcCfg.Breaker = circuit.NewBreaker(circuit.BreakerConfig{
			Name:             "httpsink",
			FailureThreshold: 20,
			SuccessThreshold: 3,
			Timeout:          60 * time.Second,
			HalfOpenMaxCalls: 10,
		}, cfg.Logger)
	}

	s.pipeline = sinkpipeline.NewPipeline(sinkpipeline.Config{
		Partition: cfg.Partition,
		Batch:     cfg.Batch,
		Service:   svcCfg,
		Transport: s.transport,
		Logger:    cfg.Logger,
	})
	return s, nil
}

var _ topology.Sink = (*Sink)(nil)

// httpResponse is what Transport returns for ClassifyHTTPResponse to
// inspect; the response body has already been drained and discarded by the
// time Transport returns, matching the teacher's full-read-for-reuse
// pattern.
type httpResponse struct {
	statusCode int
	body       string
}

func (s *Sink) transport(ctx context.Context, req sinkpipeline.Request) (interface{}, error) {
	httpReq, err := http.NewRequestWithContext(ctx, s.cfg.Method, s.cfg.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("httpsink: build request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/octet-stream")
	if req.Encoding != "" {
		httpReq.Header.Set("Content-Encoding", req.Encoding)
	}
	for k, v := range s.cfg.Headers {
		httpReq.Header.Set(k, v)
	}
	if s.cfg.TenantID != "" {
		httpReq.Header.Set("X-Scope-OrgID", s.cfg.TenantID)
	}
	switch s.cfg.Auth.Type {
	case AuthBasic:
		if s.cfg.Auth.Username != "" {
			httpReq.SetBasicAuth(s.cfg.Auth.Username, s.cfg.Auth.Password)
		}
	case AuthBearer:
		if s.cfg.Auth.Token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+s.cfg.Auth.Token)
		}
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("httpsink: request failed: %w", err)
	}
	defer resp.Body.Close()

	var bodyText string
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		bodyText = string(b)
	} else {
		io.Copy(io.Discard, resp.Body)
	}

	return httpResponse{statusCode: resp.StatusCode, body: bodyText}, nil
}

// ClassifyHTTPResponse implements SPEC_FULL.md §4.7.5's canonical HTTP
// retry mapping: 2xx is Successful, 408/429/5xx is Retryable, any other
// non-2xx is Rejected without retry. Grounded on loki_sink.go's
// classifyLokiError table, generalized beyond Loki's Loki-specific 400
// special-casing.
func ClassifyHTTPResponse(response interface{}, err error) (retry.Outcome, error) {
	if err != nil {
		return retry.Retryable, err
	}
	resp, ok := response.(httpResponse)
	if !ok {
		return retry.Retryable, fmt.Errorf("httpsink: unexpected response type %T", response)
	}
	switch {
	case resp.statusCode >= 200 && resp.statusCode < 300:
		return retry.Successful, nil
	case resp.statusCode == 408, resp.statusCode == 429, resp.statusCode >= 500:
		return retry.Retryable, fmt.Errorf("httpsink: status %d: %s", resp.statusCode, resp.body)
	default:
		return retry.Rejected, fmt.Errorf("httpsink: status %d: %s", resp.statusCode, resp.body)
	}
}

func (s *Sink) Run(ctx context.Context, in topology.Input) error {
	return s.pipeline.Run(ctx, in)
}

func (s *Sink) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.cfg.URL, nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}
