package field

import (
	"fmt"
	"time"
)

// Snapshot is a point-in-time copy of a field's state.
type Snapshot struct {
	Name          string        `json:"name"`
	Identity      string        `json:"identity"`
	Value         string        `json:"value"`
	Source        string        `json:"source"`
	LastCommitted string        `json:"last_committed"`
	State         string        `json:"state"`
	Quiescence    time.Duration `json:"quiescence"`
}

// Snapshot copies the state of the field under its lock.
func (c *Controller[K]) Snapshot() Snapshot {
	c.lock.Lock()
	defer c.lock.Unlock()

	return Snapshot{
		Name:          c.name,
		Identity:      fmt.Sprint(c.identity),
		Value:         c.value,
		Source:        c.source,
		LastCommitted: c.lastCommitted,
		State:         c.stateLocked().String(),
		Quiescence:    c.quiescence,
	}
}
