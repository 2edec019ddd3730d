package field

import "time"

// A Committer receives the values a field hands over for persistence. Commit
// is fire-and-forget from the field's point of view: the field never waits
// for the write to land, never retries, and never rolls back its local value.
type Committer[K comparable] interface {
	Commit(identity K, value string)
}

// CommitFunc adapts a plain function to the Committer interface.
type CommitFunc[K comparable] func(identity K, value string)

// Commit calls f(identity, value).
func (f CommitFunc[K]) Commit(identity K, value string) {
	f(identity, value)
}

// CommitReason tells why a commit happened.
type CommitReason int

const (
	// ReasonQuiescence marks a commit fired by the debounce timer.
	ReasonQuiescence CommitReason = iota

	// ReasonExit marks a commit forced by Exit.
	ReasonExit
)

func (r CommitReason) String() string {
	switch r {
	case ReasonQuiescence:
		return "quiescence"
	case ReasonExit:
		return "exit"
	default:
		return "unknown"
	}
}

// CommitRecord is the hook item that describes a commit, a discarded pending
// commit or a resync. Identity holds the K of the controller that produced it.
type CommitRecord struct {
	Field    string
	Identity any
	Value    string
	Reason   CommitReason
	Time     time.Duration
}
