package cells

import (
	"errors"

	"github.com/nvandessel/cellgraph/internal/locator"
)

// ErrMissingLocatorComponent aliases the locator package sentinel so callers
// of this package can test for it without importing locator.
var ErrMissingLocatorComponent = locator.ErrMissingComponent

var (
	// ErrLocatorNotFound is returned when a graph holds no cell at a locator.
	ErrLocatorNotFound = errors.New("locator not found")

	// ErrUnknownGraphID is returned for graph identities the manager does not track.
	ErrUnknownGraphID = errors.New("unknown graph id")

	// ErrDuplicateCandidate means a neighbor scan reached the same remote
	// cell twice. It indicates broken adjacency geometry.
	ErrDuplicateCandidate = errors.New("duplicate candidate neighbor")

	// ErrInvalidReciprocalState means a connection is recorded on one
	// endpoint only. It is never repaired.
	ErrInvalidReciprocalState = errors.New("invalid reciprocal connection state")

	// ErrDuplicateLocator is returned when a second live cell would share a locator.
	ErrDuplicateLocator = errors.New("duplicate locator")

	// ErrAlreadyInserted is returned when inserting a cell that has a graph.
	ErrAlreadyInserted = errors.New("cell already inserted")

	// ErrNotInserted is returned when removing a cell that has no graph.
	ErrNotInserted = errors.New("cell not inserted")

	// ErrCellDestroyed is returned for any operation on a destroyed cell.
	ErrCellDestroyed = errors.New("cell destroyed")

	// ErrNoContainer is returned when a cell must be scanned but is not
	// bound to a resident container.
	ErrNoContainer = errors.New("cell has no container")

	// ErrDisconnectedGraph means a graph's members were found not to be
	// connected, which can only follow from corrupted state.
	ErrDisconnectedGraph = errors.New("graph membership is not connected")

	// ErrConcurrentMutation is returned when a structural mutation starts
	// while another one is running, including re-entrant calls from
	// container callbacks.
	ErrConcurrentMutation = errors.New("concurrent graph mutation")
)
