package netpoll

import "time"

// Interest is the subset of {Readable, Writable} a descriptor is
// currently waiting on. Per spec.md §4.3, a client is always waiting on
// exactly one of the two, never both, in a given iteration.
type Interest uint8

const (
	Readable Interest = 1 << iota
	Writable
)

// Event reports what became ready for one descriptor.
type Event struct {
	Key   uint64 // opaque token supplied at Register time
	Ready Interest
}

// Registrar is the level-triggered readiness primitive spec.md C4
// describes: register/modify/unregister descriptors with an interest
// set, then Wait with a timeout for a batch of ready events.
type Registrar interface {
	// Register starts watching fd for the given interest, associated with
	// the opaque key returned later in Event.Key.
	Register(fd *FD, key uint64, interest Interest) error
	// Modify changes the interest set for an already-registered fd. A
	// failed Modify must not leave the descriptor in an indeterminate
	// state: the caller is expected to close the client on error.
	Modify(fd *FD, key uint64, interest Interest) error
	// Unregister stops watching fd. Idempotent.
	Unregister(fd *FD) error
	// Wait blocks up to timeout for ready events. EINTR is reported as a
	// zero-length, nil-error result (normal during signal-driven shutdown).
	Wait(timeout time.Duration, out []Event) ([]Event, error)
	// Close releases the registrar's own kernel resources.
	Close() error
}

// New opens the platform-appropriate registrar (epoll on linux, kqueue
// on the BSD family).
func New() (Registrar, error) {
	return newPlatformRegistrar()
}
