package mediahaven

import (
	"errors"
	"fmt"
	"net/http"
)

// BackendError is a definitive error response from MediaHaven.
type BackendError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("mediahaven %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// ConnectivityError means MediaHaven could not be reached at all.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("mediahaven %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// IsConnectivity reports whether err is a ConnectivityError.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

// StatusCode returns the backend status of err, or 0 when err is not a BackendError.
func StatusCode(err error) int {
	var be *BackendError
	if errors.As(err, &be) {
		return be.StatusCode
	}
	return 0
}

// ResponseBody returns the raw backend body attached to err, if any.
func ResponseBody(err error) string {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Body
	}
	return ""
}

// IsNotYetWritable matches the statuses MediaHaven returns while a freshly
// created fragment is still being provisioned.
func IsNotYetWritable(err error) bool {
	switch StatusCode(err) {
	case http.StatusNotFound, http.StatusForbidden:
		return true
	}
	return false
}
