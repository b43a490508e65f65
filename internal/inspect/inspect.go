// Package inspect fetches runtime inspection records for Docker containers.
//
// Two interchangeable sources exist: API talks to the Docker Engine API
// directly, CLI shells out to the docker command line client. Both yield
// the same record shape; which one runs is decided once at startup.
package inspect

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
)

// Record is the full attribute snapshot Docker reports for one container.
type Record = container.InspectResponse

// Source yields inspection records for running containers.
type Source interface {
	// Inspect returns the record for the named container, or one record
	// per running container when id is empty. Records come back in a
	// stable order so downstream output is deterministic.
	Inspect(ctx context.Context, id string) ([]Record, error)
}

// NotFoundError reports that the requested container does not exist or is
// not running.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("container %s not found", e.ID)
}

// BackendError reports that the inspection backend could not be reached or
// rejected the call.
type BackendError struct {
	Err error
}

func (e *BackendError) Error() string { return fmt.Sprintf("docker backend: %v", e.Err) }
func (e *BackendError) Unwrap() error { return e.Err }

// MalformedOutputError reports backend output that could not be decoded as
// inspection records.
type MalformedOutputError struct {
	Err error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed inspect output: %v", e.Err)
}

func (e *MalformedOutputError) Unwrap() error { return e.Err }
