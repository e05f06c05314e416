package client

import transport "github.com/charlie0129/slmcal/internal/client"

var (
	// ErrDaemonNotRunning is returned when the daemon is not running
	ErrDaemonNotRunning = transport.ErrDaemonNotRunning

	// ErrPermissionDenied is returned when the user does not have permission to perform the requested action
	ErrPermissionDenied = transport.ErrPermissionDenied

	// ErrNotFound is returned when 404 is returned from the daemon
	ErrNotFound = transport.ErrNotFound
)

// StatusError carries the status code and message of a failed request.
type StatusError = transport.StatusError
