package orchestrator

import (
	"context"
	"fmt"
	"time"
)

// InstanceOrchestrator manages the lifecycle of the cloud instances users
// open shells on.
type InstanceOrchestrator interface {
	BackendName() string

	// Lifecycle
	CreateInstance(ctx context.Context, params CreateParams) (Instance, error)
	// DeleteInstance terminates an instance and returns its new state.
	DeleteInstance(ctx context.Context, instanceID string) (string, error)

	// DescribeInstances returns the instances among ids that the backend
	// still knows about. Unknown ids are omitted rather than reported as an
	// error.
	DescribeInstances(ctx context.Context, ids []string) ([]Instance, error)
}

type CreateParams struct {
	// Name is the display name tag. Empty means a generated name.
	Name string
}

// Instance is the backend's view of one instance.
type Instance struct {
	ID         string    `json:"instanceId"`
	Name       string    `json:"name"`
	State      string    `json:"state"`
	PublicIP   string    `json:"publicIp,omitempty"`
	PublicDNS  string    `json:"publicDns,omitempty"`
	LaunchedAt time.Time `json:"launchedAt,omitempty"`
}

// Instance states the rest of the service cares about.
const (
	StatePending    = "pending"
	StateRunning    = "running"
	StateTerminated = "terminated"
)

// InstanceName builds the display name for an instance launched at t.
func InstanceName(prefix string, t time.Time) string {
	return fmt.Sprintf("%s-%d", prefix, t.UnixMilli())
}
