package container

import "context"

// Info is the subset of container state the orchestrator cares about.
type Info struct {
	ID    string
	Name  string
	State string
}

// Spec describes a worker container to launch.
type Spec struct {
	Name        string
	Image       string
	Env         []string
	Binds       []string
	NetworkMode string
	LogMaxSize  string
	LogMaxFiles string
}

// Runtime is the container engine the fleet runs on.
type Runtime interface {
	Ping(ctx context.Context) error
	ListRunning(ctx context.Context) ([]Info, error)
	// Create creates and starts a detached container and returns its id.
	Create(ctx context.Context, spec Spec) (string, error)
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Remove(ctx context.Context, name string) error
}
