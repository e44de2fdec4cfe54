package handler

const (
	errInternalServer           = "Internal server error"
	errHeartbeatNotFound        = "Heartbeat not found"
	errHeartbeatPaused          = "Heartbeat is paused"
	errProcessMonitorNotFound   = "Process monitor not found"
	errProcessMonitorPaused     = "Process monitor is paused"
	errProcessMonitorConflict   = "Process monitor is already running"
	errProcessMonitorNotRunning = "Process monitor is not running"
	errNoTaskAvailable          = "No task available"
)
