package probe

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/cronbox/cronbox-core/internal/domain"
)

// ICMPProbe shells out to the host's ping utility, since Go's stdlib has no
// portable way to send raw ICMP without elevated privileges. Output parsing
// covers the canonical Linux (iputils), BSD/macOS formats per §4.1.
type ICMPProbe struct{}

func NewICMPProbe() *ICMPProbe { return &ICMPProbe{} }

// Run pings params.Host params.Count times (clamped 1..10), with a
// per-packet timeout of max(1s, totalTimeout/count).
func (p *ICMPProbe) Run(ctx context.Context, params *domain.ICMPParams, timeout time.Duration) domain.ProbeResult {
	start := time.Now()

	count := params.Count
	if count < 1 {
		count = 1
	}
	if count > 10 {
		count = 10
	}
	perPacket := timeout / time.Duration(count)
	if perPacket < time.Second {
		perPacket = time.Second
	}

	args := pingArgs(params.Host, count, perPacket, timeout)
	cmd := exec.CommandContext(ctx, "ping", args...)
	out, runErr := cmd.CombinedOutput()
	duration := time.Since(start)

	stats, parseErr := parsePingOutput(string(out))
	if parseErr != nil {
		kind, msg := classifyPingFailure(string(out), runErr)
		return domain.ProbeResult{
			Success:    false,
			DurationMS: duration.Milliseconds(),
			Error:      msg,
			ErrorKind:  kind,
		}
	}

	return domain.ProbeResult{
		Success:    stats.PacketsReceived > 0,
		DurationMS: duration.Milliseconds(),
		ICMP:       stats,
	}
}

func pingArgs(host string, count int, perPacket, total time.Duration) []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"-c", strconv.Itoa(count), "-t", fmt.Sprintf("%.0f", total.Seconds()), host}
	default: // linux / other iputils-compatible
		return []string{"-c", strconv.Itoa(count), "-W", fmt.Sprintf("%.0f", perPacket.Seconds()), host}
	}
}

var (
	reLinuxStats = regexp.MustCompile(`(\d+) packets transmitted, (\d+) (?:packets )?received`)
	reLoss       = regexp.MustCompile(`([\d.]+)% packet loss`)
	reRTT        = regexp.MustCompile(`= ([\d.]+)/([\d.]+)/([\d.]+)`)
)

func parsePingOutput(out string) (*domain.ICMPProbeResult, error) {
	m := reLinuxStats.FindStringSubmatch(out)
	if m == nil {
		return nil, fmt.Errorf("unrecognized ping output")
	}
	sent, _ := strconv.Atoi(m[1])
	recv, _ := strconv.Atoi(m[2])

	loss := 0.0
	if lm := reLoss.FindStringSubmatch(out); lm != nil {
		loss, _ = strconv.ParseFloat(lm[1], 64)
	}

	var minRTT, avgRTT, maxRTT time.Duration
	if rm := reRTT.FindStringSubmatch(out); rm != nil {
		minF, _ := strconv.ParseFloat(rm[1], 64)
		avgF, _ := strconv.ParseFloat(rm[2], 64)
		maxF, _ := strconv.ParseFloat(rm[3], 64)
		minRTT = time.Duration(minF * float64(time.Millisecond))
		avgRTT = time.Duration(avgF * float64(time.Millisecond))
		maxRTT = time.Duration(maxF * float64(time.Millisecond))
	}

	return &domain.ICMPProbeResult{
		PacketsSent:     sent,
		PacketsReceived: recv,
		PacketLoss:      loss,
		MinRTT:          minRTT,
		AvgRTT:          avgRTT,
		MaxRTT:          maxRTT,
	}, nil
}

func classifyPingFailure(out string, runErr error) (domain.ErrorKind, string) {
	lower := strings.ToLower(out)
	switch {
	case strings.Contains(lower, "unknown host") || strings.Contains(lower, "name or service not known"):
		return domain.ErrorKindICMPError, "unknown host"
	case strings.Contains(lower, "network unreachable") || strings.Contains(lower, "network is unreachable"):
		return domain.ErrorKindICMPError, "network unreachable"
	case strings.Contains(lower, "host unreachable") || strings.Contains(lower, "no route to host"):
		return domain.ErrorKindICMPError, "host unreachable"
	case runErr != nil:
		return domain.ErrorKindICMPError, runErr.Error()
	default:
		return domain.ErrorKindUnknown, "could not parse ping output"
	}
}
