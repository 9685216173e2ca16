package domain

import "errors"

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a transport failure that may be retriable
type NetworkError struct {
	Op        string // Operation that failed (e.g., "dial", "send", "read")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// StorageError wraps a durable storage failure for one key.
type StorageError struct {
	Op  string // "get" or "set"
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return "storage " + e.Op + " [" + e.Key + "]: " + e.Err.Error()
}

// IsRetriable is true: local storage failures are usually transient (locked db, full disk).
func (e *StorageError) IsRetriable() bool {
	return true
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrInvalidMessage is returned for frames that cannot be applied.
	ErrInvalidMessage = errors.New("invalid replication message")

	// ErrUnknownMessageType is returned for well-formed frames of a type this version does not handle.
	ErrUnknownMessageType = errors.New("unknown message type")

	// ErrNotConnected is returned when sending on a transport with no live connection. It's retriable.
	ErrNotConnected = errors.New("not connected")

	// ErrTransportClosed is returned after Close.
	ErrTransportClosed = errors.New("transport closed")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)
