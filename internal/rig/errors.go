package rig

import "errors"

// Sentinel errors for the rig package. Callers branch on them with
// errors.Is:
//
//	if errors.Is(err, rig.ErrRecordNotFound) {
//	    w.WriteHeader(http.StatusNotFound)
//	}
var (
	// ErrRecordNotFound is returned when an instrument record does not exist.
	ErrRecordNotFound = errors.New("rig: instrument record not found")

	// ErrRecordExists is returned when creating a record whose ID or name
	// already exists.
	ErrRecordExists = errors.New("rig: instrument record already exists")

	// ErrInvalidRecord is returned when record validation fails.
	ErrInvalidRecord = errors.New("rig: invalid instrument record")

	// ErrInvalidTransport is returned when a transport spec is malformed.
	ErrInvalidTransport = errors.New("rig: invalid transport spec")

	// ErrDriverUnknown is returned when no builder is registered for a
	// record's driver name.
	ErrDriverUnknown = errors.New("rig: unknown driver")

	// ErrDriverExists is returned when registering a driver name twice.
	ErrDriverExists = errors.New("rig: driver already registered")

	// ErrAlreadyRunning is returned when starting an instrument that is
	// already live.
	ErrAlreadyRunning = errors.New("rig: instrument already running")

	// ErrNotRunning is returned when an instrument is not live.
	ErrNotRunning = errors.New("rig: instrument not running")

	// ErrDisabled is returned when starting an instrument whose record
	// is disabled.
	ErrDisabled = errors.New("rig: instrument disabled")

	// ErrRegistryClosed is returned when starting an instrument after
	// the registry has shut down.
	ErrRegistryClosed = errors.New("rig: registry closed")
)
