package judge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// HTTPExecutorConfig configures HTTPExecutor.
type HTTPExecutorConfig struct {
	BaseURL      string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// HTTPExecutor posts submissions to the execution service:
//
//	POST {BaseURL}/execute
//	{"language": "...", "code": "...", "test_cases": [{"input": "..."}], "timeout_ms": 15000}
//	-> {"results": [{"output": "...", "error": "..."}]}
//
// Transport failures and 5xx answers are retried by resty with exponential
// backoff. Each attempt gets its own Timeout; a timed out attempt is final.
type HTTPExecutor struct {
	client *resty.Client
	cfg    HTTPExecutorConfig
	log    zerolog.Logger
}

func NewHTTPExecutor(cfg HTTPExecutorConfig, log zerolog.Logger) *HTTPExecutor {
	log = log.With().Str("component", "judge_client").Logger()

	maxWait := cfg.RetryBackoff
	for i := 0; i < cfg.MaxRetries; i++ {
		maxWait *= 2
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetLogger(restyLogger{log}).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(cfg.RetryBackoff).
		SetRetryMaxWaitTime(maxWait).
		AddRetryCondition(retryable).
		AddRetryHook(func(resp *resty.Response, err error) {
			ev := log.Warn().Err(err)
			if resp != nil {
				ev = ev.Int("status", resp.StatusCode()).Int("attempt", resp.Request.Attempt)
			}
			ev.Msg("Executor call failed, retrying")
		})

	return &HTTPExecutor{client: client, cfg: cfg, log: log}
}

type executeBody struct {
	Language  string      `json:"language"`
	Code      string      `json:"code"`
	TestCases []inputBody `json:"test_cases"`
	TimeoutMS int64       `json:"timeout_ms"`
}

type inputBody struct {
	Input string `json:"input"`
}

type executeResponse struct {
	Results []ExecutionResult `json:"results"`
}

// retryable replaces resty's default condition: only transport failures and
// 5xx answers are transient. Timeouts and 4xx are final.
func retryable(resp *resty.Response, err error) bool {
	if err != nil {
		return !isTimeout(err) && !errors.Is(err, context.Canceled)
	}
	if resp == nil {
		return true
	}
	code := resp.StatusCode()
	return code >= 500 && code != http.StatusGatewayTimeout
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Execute sends the request and maps the outcome onto the judge errors.
func (e *HTTPExecutor) Execute(ctx context.Context, req ExecuteRequest) ([]ExecutionResult, error) {
	body := executeBody{
		Language:  req.Language,
		Code:      req.Code,
		TestCases: make([]inputBody, len(req.TestCases)),
		TimeoutMS: e.cfg.Timeout.Milliseconds(),
	}
	for i, tc := range req.TestCases {
		body.TestCases[i] = inputBody{Input: tc.Input}
	}

	var out executeResponse
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/execute")
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isTimeout(err) {
			return nil, ErrExecutionTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrExecutionUnavailable, err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusGatewayTimeout || code == http.StatusRequestTimeout:
		return nil, ErrExecutionTimeout
	case code >= 500:
		return nil, fmt.Errorf("%w: executor status %d after %d attempts", ErrExecutionUnavailable, code, resp.Request.Attempt)
	case code >= 400:
		return nil, fmt.Errorf("%w: status %d: %s", ErrExecutionRejected, code, resp.String())
	}

	if len(out.Results) != len(req.TestCases) {
		e.log.Error().
			Int("expected", len(req.TestCases)).
			Int("got", len(out.Results)).
			Msg("Executor returned misaligned results")
		return nil, fmt.Errorf("%w: %d results for %d test cases", ErrExecutionUnavailable, len(out.Results), len(req.TestCases))
	}
	return out.Results, nil
}

// restyLogger routes resty's internal messages into zerolog.
type restyLogger struct {
	log zerolog.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) { l.log.Error().Msgf(format, v...) }
func (l restyLogger) Warnf(format string, v ...interface{})  { l.log.Debug().Msgf(format, v...) }
func (l restyLogger) Debugf(format string, v ...interface{}) { l.log.Debug().Msgf(format, v...) }
