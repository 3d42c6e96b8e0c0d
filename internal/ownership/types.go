package ownership

import "time"

// ControllerConfig describes a registered controller instance.
type ControllerConfig struct {
	Name string `json:"name"`
	Zone string `json:"zone,omitempty"`

	// Parent is the controller this one reports to, empty for the root.
	Parent string `json:"parent,omitempty"`
}

// Controller is a known controller and its registration history.
type Controller struct {
	ID           string           `json:"id"`
	Config       ControllerConfig `json:"config"`
	RegisteredAt time.Time        `json:"registered_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Transfer records one ownership handover. Transfer history is append
// only: past entries are never modified.
type Transfer struct {
	DeviceID      string    `json:"device_id"`
	NewOwner      string    `json:"new_owner"`
	PreviousOwner string    `json:"previous_owner,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// CommandStatus is the lifecycle state of a tracked command.
type CommandStatus string

const (
	StatusPending      CommandStatus = "pending"
	StatusAcknowledged CommandStatus = "acknowledged"
	StatusFailed       CommandStatus = "failed"
)

// Valid reports whether s is a recognized command status.
func (s CommandStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAcknowledged, StatusFailed:
		return true
	}
	return false
}

// Response is one hop's answer to a tracked command. The response list
// is append only.
type Response struct {
	Hop     string    `json:"hop"`
	Payload string    `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// CommandChain correlates a command with the ordered path of controllers
// it traverses and the responses received along the way.
type CommandChain struct {
	ID        string        `json:"id"`
	Path      []string      `json:"path"`
	Status    CommandStatus `json:"status"`
	Responses []Response    `json:"responses,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// deepCopy returns an independent copy of the chain.
func (c *CommandChain) deepCopy() *CommandChain {
	cp := *c
	cp.Path = append([]string(nil), c.Path...)
	cp.Responses = append([]Response(nil), c.Responses...)
	return &cp
}
