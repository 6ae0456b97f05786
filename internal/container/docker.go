package container

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/GoPolymarket/botfleet/internal/pkg/logger"
	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// Docker implements Runtime against the local Docker engine.
type Docker struct {
	cli *client.Client
	log *slog.Logger
}

// NewDocker reads DOCKER_HOST and friends from the environment. It does not contact the daemon.
func NewDocker() (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return &Docker{cli: cli, log: logger.Component("docker")}, nil
}

func (d *Docker) Ping(ctx context.Context) error {
	_, err := d.cli.Ping(ctx)
	return err
}

func (d *Docker) ListRunning(ctx context.Context) ([]Info, error) {
	list, err := d.cli.ContainerList(ctx, dockercontainer.ListOptions{
		Filters: filters.NewArgs(filters.Arg("status", "running")),
	})
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(list))
	for _, c := range list {
		name := c.ID
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		out = append(out, Info{ID: c.ID, Name: name, State: c.State})
	}
	return out, nil
}

func (d *Docker) Create(ctx context.Context, spec Spec) (string, error) {
	cfg := &dockercontainer.Config{
		Image:        spec.Image,
		Env:          spec.Env,
		Tty:          false,
		AttachStdin:  false,
		AttachStdout: false,
		AttachStderr: false,
	}
	logConfig := map[string]string{}
	if spec.LogMaxSize != "" {
		logConfig["max-size"] = spec.LogMaxSize
	}
	if spec.LogMaxFiles != "" {
		logConfig["max-file"] = spec.LogMaxFiles
	}
	hostCfg := &dockercontainer.HostConfig{
		Binds:       spec.Binds,
		NetworkMode: dockercontainer.NetworkMode(spec.NetworkMode),
		LogConfig:   dockercontainer.LogConfig{Type: "json-file", Config: logConfig},
	}

	created, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("create container %s: %w", spec.Name, err)
	}
	if err := d.cli.ContainerStart(ctx, created.ID, dockercontainer.StartOptions{}); err != nil {
		_ = d.cli.ContainerRemove(context.Background(), created.ID, dockercontainer.RemoveOptions{Force: true})
		return "", fmt.Errorf("start container %s: %w", spec.Name, err)
	}
	for _, w := range created.Warnings {
		d.log.Warn("docker warning", "container", spec.Name, "warning", w)
	}
	return created.ID, nil
}

func (d *Docker) Start(ctx context.Context, name string) error {
	return d.cli.ContainerStart(ctx, name, dockercontainer.StartOptions{})
}

func (d *Docker) Stop(ctx context.Context, name string) error {
	return d.cli.ContainerStop(ctx, name, dockercontainer.StopOptions{})
}

func (d *Docker) Remove(ctx context.Context, name string) error {
	err := d.cli.ContainerRemove(ctx, name, dockercontainer.RemoveOptions{Force: true})
	if client.IsErrNotFound(err) {
		return nil
	}
	return err
}

func (d *Docker) Close() error {
	return d.cli.Close()
}
