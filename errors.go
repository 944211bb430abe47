package sensecam

import (
	"errors"
	"fmt"
)

var (
	// ErrNoProfiles is returned (wrapped in a ConnectionError) when a device
	// reports an empty media profile list.
	ErrNoProfiles = errors.New("device returned no media profiles")

	// ErrSOAPFault is matched by every *SOAPFault.
	ErrSOAPFault = errors.New("soap fault")

	errWrongDiscoveryResponse = errors.New("response is not related to discovery request")
)

// DiscoverySessionError means the WS-Discovery session could not be started,
// driven or stopped. The whole Discover call is aborted.
type DiscoverySessionError struct {
	Op  string
	Err error
}

func (e *DiscoverySessionError) Error() string {
	return fmt.Sprintf("discovery session %s: %v", e.Op, e.Err)
}

func (e *DiscoverySessionError) Unwrap() error { return e.Err }

// ConnectionError means a Camera could not be opened: the device is
// unreachable, rejected the credentials or has no media profiles.
type ConnectionError struct {
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// DeviceQueryError is a failed metadata query on an open Camera. The camera
// remains usable.
type DeviceQueryError struct {
	Op      string
	Address string
	Err     error
}

func (e *DeviceQueryError) Error() string {
	return fmt.Sprintf("%s on %s: %v", e.Op, e.Address, e.Err)
}

func (e *DeviceQueryError) Unwrap() error { return e.Err }

// SOAPFault is a fault returned in a SOAP response body.
type SOAPFault struct {
	Code   string
	Reason string
}

func (f *SOAPFault) Error() string {
	if f.Code == "" {
		return "soap fault: " + f.Reason
	}
	return fmt.Sprintf("soap fault %s: %s", f.Code, f.Reason)
}

func (f *SOAPFault) Is(target error) bool { return target == ErrSOAPFault }
