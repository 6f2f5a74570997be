// Package errors provides custom error types for the sync engine.
// These errors enable programmatic error checking across the source client,
// the orchestrator, and the HTTP trigger surface.
package errors

import (
	"errors"
	"fmt"
	"net"
	"os"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Is and As are aliases for the standard library equivalents so callers
// need only one errors import.
var (
	Is = errors.Is
	As = errors.As
)

// Sentinel errors for the sync engine.
var (
	// ErrNotFound indicates that a requested record or entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrConnectivity indicates the source API could not be reached at all;
	// fatal to the current sync run.
	ErrConnectivity = errors.New("source unreachable")

	// ErrRateLimited indicates the source API rejected a request with a
	// rate-limit status.
	ErrRateLimited = errors.New("rate limited")

	// ErrServerError indicates a server-side failure from the source API.
	ErrServerError = errors.New("source server error")

	// ErrTimeout indicates that a request to the source API timed out.
	ErrTimeout = errors.New("request timed out")

	// ErrMissingDependency indicates that a record's parent entity is absent
	// from the local store at merge time.
	ErrMissingDependency = errors.New("missing dependency")

	// ErrAlreadyInProgress indicates that a sync run is already executing.
	ErrAlreadyInProgress = errors.New("sync already in progress")

	// ErrInvalidEntity indicates an unknown entity type was requested.
	ErrInvalidEntity = errors.New("invalid entity type")
)

// APIError represents a non-2xx response from the source API.
type APIError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error from %s (status %d): %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error from %s (status %d)", e.Endpoint, e.StatusCode)
}

// Is implements errors.Is support, classifying by status code.
func (e *APIError) Is(target error) bool {
	switch {
	case e.StatusCode == 404:
		return target == ErrNotFound
	case e.StatusCode == 429:
		return target == ErrRateLimited
	case e.StatusCode >= 500:
		return target == ErrServerError
	}
	return false
}

// NewAPIError creates a new APIError.
func NewAPIError(endpoint string, statusCode int, message string) *APIError {
	return &APIError{Endpoint: endpoint, StatusCode: statusCode, Message: message}
}

// TransportError represents a network-level failure (timeout, host not
// found, connection refused) classified inside the source client.
type TransportError struct {
	Endpoint string
	Kind     string // "timeout", "host_not_found", "connection_refused", "network"
	Err      error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error (%s) for %s: %v", e.Kind, e.Endpoint, e.Err)
}

// Unwrap implements errors.Unwrap.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support.
func (e *TransportError) Is(target error) bool {
	if e.Kind == "timeout" {
		return target == ErrTimeout || target == ErrConnectivity
	}
	return target == ErrConnectivity
}

// NewTransportError classifies err and wraps it with the endpoint context.
func NewTransportError(endpoint string, err error) *TransportError {
	return &TransportError{Endpoint: endpoint, Kind: classifyNetwork(err), Err: err}
}

// classifyNetwork maps an underlying network error onto a transport kind.
func classifyNetwork(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return "timeout"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "host_not_found"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return "connection_refused"
	}
	return "network"
}

// MissingDependencyError indicates that a record references a parent that
// does not resolve in the local store.
type MissingDependencyError struct {
	Entity   string // entity type being merged
	Parent   string // parent entity type that failed to resolve
	ID       int    // external id of the record being merged
	ParentID int    // external id of the missing parent
}

// Error implements the error interface.
func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("%s %d references missing %s %d", e.Entity, e.ID, e.Parent, e.ParentID)
}

// Is implements errors.Is support.
func (e *MissingDependencyError) Is(target error) bool {
	return target == ErrMissingDependency
}

// NewMissingDependencyError creates a new MissingDependencyError.
func NewMissingDependencyError(entity, parent string, id, parentID int) *MissingDependencyError {
	return &MissingDependencyError{Entity: entity, Parent: parent, ID: id, ParentID: parentID}
}

// Retryable reports whether err is worth retrying under backoff. Transport
// failures, rate limiting, and server-side errors are transient; everything
// else (404s, decode failures, missing dependencies) is terminal.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConnectivity) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrServerError)
}
