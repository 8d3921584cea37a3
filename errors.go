package sampledata

import (
	"errors"
	"fmt"
)

// Sentinel errors for caller bugs. Neither is retryable.
var (
	// ErrUnknownAsset is returned when a logical name is not present in
	// the registry. No network or filesystem I/O is performed.
	ErrUnknownAsset = errors.New("unknown asset")

	// ErrUnsupportedKind is returned when decode is asked for an asset
	// kind it has no reader for.
	ErrUnsupportedKind = errors.New("unsupported asset kind")
)

// FetchError indicates a transport failure while downloading from a remote
// origin. It is transient; callers may retry the operation.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IntegrityError indicates that downloaded content did not match the
// registered integrity token even after a fresh download. It signals
// tampering, corruption in transit, or a changed origin, and is fatal.
type IntegrityError struct {
	Name string
	Want Token
	Got  Token
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity mismatch for %s: want %s, got %s", e.Name, e.Want, e.Got)
}

// StorageError indicates the local filesystem could not be written or
// created. It is an environment problem and is fatal.
type StorageError struct {
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure at %s: %v", e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// DecodeError indicates a file exists (and passed verification where
// configured) but could not be parsed by its decoder.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
