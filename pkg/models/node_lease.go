package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

type NodeStatus string

const (
	NodeStatusIdle    NodeStatus = "IDLE"
	NodeStatusBusy    NodeStatus = "BUSY"
	NodeStatusOffline NodeStatus = "OFFLINE"
)

func ParseNodeStatus(s string) (NodeStatus, error) {
	switch NodeStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case NodeStatusIdle:
		return NodeStatusIdle, nil
	case NodeStatusBusy:
		return NodeStatusBusy, nil
	case NodeStatusOffline:
		return NodeStatusOffline, nil
	}
	return "", fmt.Errorf("invalid node status: %s", s)
}

// Engine describes one inference engine a node runs. A node advertises its
// engines ordered by priority; the first engine is the one it would pick
// for a job if it supports the requested model.
type Engine struct {
	Type    string   `json:"Type"`
	Version string   `json:"Version,omitempty"`
	Models  []string `json:"Models,omitempty"`
}

// HardwareInfo is the self-reported hardware summary carried on heartbeats.
type HardwareInfo struct {
	GPU      string `json:"GPU,omitempty"`
	VRAMFree uint64 `json:"VRAMFree,omitempty"`
}

// NodeLease is the registry record for a compute-donating node. It is owned
// and refreshed exclusively by the node it describes; the registry only
// resets ExpiresAt on refresh and overlays the benchmark-assigned
// multiplier. A lease whose ExpiresAt has passed is logically absent from
// discovery even if not yet physically purged.
type NodeLease struct {
	NodeID     string       `json:"NodeID"`
	Address    string       `json:"Address"`
	Status     NodeStatus   `json:"Status"`
	Models     []string     `json:"Models"`
	Engines    []Engine     `json:"Engines,omitempty"` // ordered by priority
	Multiplier float64      `json:"Multiplier"`
	Hardware   HardwareInfo `json:"Hardware,omitempty"`
	ExpiresAt  time.Time    `json:"ExpiresAt"`
}

// ID returns the node ID.
func (n NodeLease) ID() string {
	return n.NodeID
}

// Live reports whether the lease is still within its TTL.
func (n NodeLease) Live(now time.Time) bool {
	return now.Before(n.ExpiresAt)
}

// HasModel reports whether the node advertises the given model.
func (n NodeLease) HasModel(model string) bool {
	return lo.Contains(n.Models, model)
}

// ServesNatively reports whether the node's highest-priority engine serves
// the given model, as opposed to a lower-priority fallback engine.
func (n NodeLease) ServesNatively(model string) bool {
	if len(n.Engines) == 0 {
		return false
	}
	return lo.Contains(n.Engines[0].Models, model)
}

func (n NodeLease) Validate() error {
	if n.NodeID == "" {
		return fmt.Errorf("node lease missing node ID")
	}
	if n.Address == "" {
		return fmt.Errorf("node lease %s missing address", n.NodeID)
	}
	if _, err := ParseNodeStatus(string(n.Status)); err != nil {
		return err
	}
	if n.Multiplier != 0 && n.Multiplier < 1.0 {
		return fmt.Errorf("node lease %s has multiplier below 1.0: %f", n.NodeID, n.Multiplier)
	}
	return nil
}

// Normalize fills defaults a heartbeat is allowed to omit.
func (n *NodeLease) Normalize() {
	if n.Multiplier == 0 {
		n.Multiplier = 1.0
	}
	if n.Status == "" {
		n.Status = NodeStatusIdle
	}
}
