package inspect

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// dockerAPI is the slice of the Docker client the API source needs.
type dockerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
}

// API inspects containers through the Docker Engine API.
type API struct {
	docker dockerAPI
}

// NewAPI connects to the Docker Engine using the standard environment
// configuration (DOCKER_HOST and friends) and verifies the daemon is
// reachable.
func NewAPI(ctx context.Context) (*API, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, &BackendError{Err: fmt.Errorf("new docker client: %w", err)}
	}
	if _, err := cli.Ping(ctx); err != nil {
		return nil, &BackendError{Err: fmt.Errorf("ping docker daemon: %w", err)}
	}
	return &API{docker: cli}, nil
}

// Inspect implements Source.
func (a *API) Inspect(ctx context.Context, id string) ([]Record, error) {
	if id != "" {
		rec, err := a.docker.ContainerInspect(ctx, id)
		if err != nil {
			if errdefs.IsNotFound(err) {
				return nil, &NotFoundError{ID: id}
			}
			return nil, &BackendError{Err: fmt.Errorf("inspect container %s: %w", id, err)}
		}
		return []Record{rec}, nil
	}

	summaries, err := a.docker.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, &BackendError{Err: fmt.Errorf("list containers: %w", err)}
	}

	records := make([]Record, 0, len(summaries))
	for _, s := range summaries {
		rec, err := a.docker.ContainerInspect(ctx, s.ID)
		if err != nil {
			return nil, &BackendError{Err: fmt.Errorf("inspect container %s: %w", s.ID, err)}
		}
		records = append(records, rec)
	}
	slog.Debug("Inspected running containers.", "count", len(records))
	return records, nil
}
