package probe

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/cronbox/cronbox-core/internal/domain"
)

// TCPProbe opens a connection to host:port and immediately closes it.
// success ⇔ connect returned without error.
type TCPProbe struct{}

func NewTCPProbe() *TCPProbe { return &TCPProbe{} }

func (p *TCPProbe) Run(ctx context.Context, params *domain.TCPParams, timeout time.Duration) domain.ProbeResult {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addr := net.JoinHostPort(params.Host, strconv.Itoa(params.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	duration := time.Since(start)
	if err != nil {
		kind := domain.ErrorKindTCPError
		if ctx.Err() != nil {
			kind = domain.ErrorKindTimeout
		}
		return domain.ProbeResult{
			Success:    false,
			DurationMS: duration.Milliseconds(),
			Error:      fmt.Errorf("dial %s: %w", addr, err).Error(),
			ErrorKind:  kind,
		}
	}
	_ = conn.Close()

	return domain.ProbeResult{
		Success:    true,
		DurationMS: duration.Milliseconds(),
		TCP: &domain.TCPProbeResult{
			ConnectTime: duration,
		},
	}
}
