package domain

import "time"

// Protocol is the wire protocol an entity's probe speaks. Exactly one of the
// corresponding *Params fields on CronTask/DelayedTask is non-nil, selected by
// this tag — the tagged-union replacement for the source's dynamically typed
// per-protocol ORM rows.
type Protocol string

const (
	ProtocolHTTP Protocol = "http"
	ProtocolICMP Protocol = "icmp"
	ProtocolTCP  Protocol = "tcp"
)

// HTTPParams describes an HTTP(S) probe.
type HTTPParams struct {
	URL     string
	Method  string // GET, POST, PUT, PATCH, DELETE
	Headers map[string]string
	Body    *string
}

// ICMPParams describes an ICMP ping probe.
type ICMPParams struct {
	Host  string
	Count int // 1..10
}

// TCPParams describes a TCP connect probe.
type TCPParams struct {
	Host string
	Port int // 1..65535
}

// ErrorKind classifies why a probe or step failed. Surfaced on Execution /
// StepExecution rows for retry-policy and alerting decisions.
type ErrorKind string

const (
	ErrorKindSSRFBlocked           ErrorKind = "ssrf_blocked"
	ErrorKindTimeout               ErrorKind = "timeout"
	ErrorKindRequestError          ErrorKind = "request_error"
	ErrorKindICMPError             ErrorKind = "icmp_error"
	ErrorKindTCPError              ErrorKind = "tcp_error"
	ErrorKindVariableSubstitution  ErrorKind = "variable_substitution"
	ErrorKindUnknown               ErrorKind = "unknown"
)

// Transient reports whether an ErrorKind is eligible for retry per §7.
func (k ErrorKind) Transient() bool {
	switch k {
	case ErrorKindTimeout, ErrorKindRequestError, ErrorKindICMPError, ErrorKindTCPError:
		return true
	default:
		return false
	}
}

// ProbeResult is the uniform outcome of any C1 probe, independent of protocol.
type ProbeResult struct {
	Success    bool
	DurationMS int64
	Error      string
	ErrorKind  ErrorKind

	// Exactly one of these is populated, matching the probe's protocol.
	HTTP *HTTPProbeResult
	ICMP *ICMPProbeResult
	TCP  *TCPProbeResult
}

type HTTPProbeResult struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte // truncated to probe.http.max_response_bytes
	BodySize   int64  // actual untruncated size
}

type ICMPProbeResult struct {
	PacketsSent     int
	PacketsReceived int
	PacketLoss      float64
	MinRTT          time.Duration
	AvgRTT          time.Duration
	MaxRTT          time.Duration
}

type TCPProbeResult struct {
	ConnectTime time.Duration
}
