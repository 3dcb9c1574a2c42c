package llas

import (
	"errors"

	"github.com/Delta-Zero-Games/llas/internal/turnclient"
)

// AllocationError reports a TURN server's rejection of an Allocate
// request. Re-exported so callers can errors.As against it without
// importing internal/turnclient.
type AllocationError = turnclient.AllocationError

// ErrAllocationFailed is the sentinel every AllocationError wraps.
var ErrAllocationFailed = turnclient.ErrAllocationFailed

// ErrSessionClosed is returned by SendFrame when called after Close.
var ErrSessionClosed = errors.New("llas: session is closed")

// ErrUnknownPeer is returned when an operation names a peer that is not
// currently registered.
var ErrUnknownPeer = errors.New("llas: unknown peer")
