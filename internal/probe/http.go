package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cronbox/cronbox-core/internal/domain"
	"github.com/cronbox/cronbox-core/internal/requestid"
	"github.com/cronbox/cronbox-core/internal/ssrf"
)

// HTTPProbe executes an HTTP(S) check. The client construction mirrors the
// teacher's scheduler.Executor: a shared client with a generous top-level
// timeout as a safety net, per-call cancellation via context, TLS 1.2
// minimum, a bounded redirect chain, and connection reuse via idle-conn
// pooling.
type HTTPProbe struct {
	client         *http.Client
	ssrfChecker    *ssrf.Checker
	logger         *slog.Logger
	maxResponseLen int64
}

func NewHTTPProbe(checker *ssrf.Checker, maxResponseBytes int64, logger *slog.Logger) *HTTPProbe {
	return &HTTPProbe{
		client: &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
		ssrfChecker:    checker,
		logger:         logger.With("component", "http_probe"),
		maxResponseLen: maxResponseBytes,
	}
}

// Run executes one HTTP probe. success ⇔ 200 ≤ status < 400 (§4.1).
func (p *HTTPProbe) Run(ctx context.Context, params *domain.HTTPParams, timeout time.Duration) domain.ProbeResult {
	start := time.Now()

	if err := p.ssrfChecker.Check(ctx, params.URL); err != nil {
		if errors.Is(err, ssrf.ErrBlocked) {
			return domain.ProbeResult{
				Success:    false,
				DurationMS: time.Since(start).Milliseconds(),
				Error:      err.Error(),
				ErrorKind:  domain.ErrorKindSSRFBlocked,
			}
		}
		return domain.ProbeResult{
			Success:    false,
			DurationMS: time.Since(start).Milliseconds(),
			Error:      err.Error(),
			ErrorKind:  domain.ErrorKindRequestError,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	if params.Body != nil {
		bodyReader = strings.NewReader(*params.Body)
	}

	req, err := http.NewRequestWithContext(ctx, params.Method, params.URL, bodyReader)
	if err != nil {
		return domain.ProbeResult{
			Success:    false,
			DurationMS: time.Since(start).Milliseconds(),
			Error:      fmt.Errorf("build request: %w", err).Error(),
			ErrorKind:  domain.ErrorKindRequestError,
		}
	}
	for k, v := range params.Headers {
		req.Header.Set(k, v)
	}

	reqID := requestid.New()
	req.Header.Set("X-Request-ID", reqID)
	ctx = requestid.WithRequestID(ctx, reqID)

	p.logger.InfoContext(ctx, "sending probe request", "method", params.Method, "url", params.URL)

	resp, err := p.client.Do(req)
	if err != nil {
		kind := domain.ErrorKindRequestError
		if ctx.Err() != nil {
			kind = domain.ErrorKindTimeout
		}
		return domain.ProbeResult{
			Success:    false,
			DurationMS: time.Since(start).Milliseconds(),
			Error:      fmt.Errorf("do request: %w", err).Error(),
			ErrorKind:  kind,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	limited := io.LimitReader(resp.Body, p.maxResponseLen)
	body, readErr := io.ReadAll(limited)
	bodySize := int64(len(body))
	if n, _ := io.Copy(io.Discard, resp.Body); n > 0 {
		bodySize += n // drained past the truncation point so conn can be reused
	}
	if readErr != nil {
		return domain.ProbeResult{
			Success:    false,
			DurationMS: time.Since(start).Milliseconds(),
			Error:      fmt.Errorf("read body: %w", readErr).Error(),
			ErrorKind:  domain.ErrorKindRequestError,
		}
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	duration := time.Since(start)
	success := resp.StatusCode >= 200 && resp.StatusCode < 400

	p.logger.InfoContext(ctx, "received probe response", "status", resp.StatusCode, "duration", duration)

	return domain.ProbeResult{
		Success:    success,
		DurationMS: duration.Milliseconds(),
		HTTP: &domain.HTTPProbeResult{
			StatusCode: resp.StatusCode,
			Headers:    headers,
			Body:       body,
			BodySize:   bodySize,
		},
	}
}
