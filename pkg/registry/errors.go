package registry

import (
	"fmt"
)

// ErrNodeNotFound is returned when no live lease exists for a requested node id
type ErrNodeNotFound struct {
	nodeID string
}

func NewErrNodeNotFound(nodeID string) ErrNodeNotFound {
	return ErrNodeNotFound{nodeID: nodeID}
}

func (e ErrNodeNotFound) Error() string {
	return fmt.Sprintf("no live lease found for nodeID: %s", e.nodeID)
}
