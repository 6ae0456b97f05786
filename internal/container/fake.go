package container

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNoSuchContainer is returned by Fake for unknown names.
var ErrNoSuchContainer = errors.New("no such container")

// Fake is an in-memory Runtime for tests and dry runs.
type Fake struct {
	mu         sync.Mutex
	containers map[string]*fakeContainer
	nextID     int

	PingErr   error
	CreateErr error
	ListErr   error
}

type fakeContainer struct {
	info Info
	spec Spec
}

func NewFake() *Fake {
	return &Fake{containers: make(map[string]*fakeContainer)}
}

func (f *Fake) Ping(ctx context.Context) error {
	return f.PingErr
}

func (f *Fake) ListRunning(ctx context.Context) ([]Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	out := make([]Info, 0, len(f.containers))
	for _, c := range f.containers {
		if c.info.State == "running" {
			out = append(out, c.info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *Fake) Create(ctx context.Context, spec Spec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	if _, ok := f.containers[spec.Name]; ok {
		return "", fmt.Errorf("container name %s already in use", spec.Name)
	}
	f.nextID++
	id := fmt.Sprintf("fake-%d", f.nextID)
	f.containers[spec.Name] = &fakeContainer{info: Info{ID: id, Name: spec.Name, State: "running"}, spec: spec}
	return id, nil
}

// Run registers an already running container, e.g. one started outside the orchestrator.
func (f *Fake) Run(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.containers[name] = &fakeContainer{info: Info{ID: fmt.Sprintf("fake-%d", f.nextID), Name: name, State: "running"}}
}

func (f *Fake) Start(ctx context.Context, name string) error {
	return f.setState(name, "running")
}

func (f *Fake) Stop(ctx context.Context, name string) error {
	return f.setState(name, "exited")
}

func (f *Fake) setState(name, state string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	if !ok {
		return ErrNoSuchContainer
	}
	c.info.State = state
	return nil
}

func (f *Fake) Remove(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, name)
	return nil
}

// SpecOf returns the spec a container was created with.
func (f *Fake) SpecOf(name string) (Spec, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[name]
	if !ok {
		return Spec{}, false
	}
	return c.spec, true
}
