package domain

import "errors"

var (
	// ErrWineNotFound is returned when a wine ID is unknown to the catalog
	ErrWineNotFound = errors.New("wine not found")

	// ErrSourceNotFound is returned when a price source ID is unknown
	ErrSourceNotFound = errors.New("price source not found")

	// ErrSourceInactive is returned when a refresh targets a disabled source
	ErrSourceInactive = errors.New("price source is not active")

	// ErrUnknownAdapter is returned when a source names an adapter type that is not registered
	ErrUnknownAdapter = errors.New("unknown adapter type")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrRecorderBusy is returned when a diagnostic recorder is already installed
	ErrRecorderBusy = errors.New("diagnostic recorder already installed")
)
