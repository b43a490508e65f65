// Package compose translates container inspection records into Docker
// Compose documents and handles loading, merging and writing those
// documents.
package compose

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/go-connections/nat"

	"composify/internal/inspect"
)

// Service is one normalized compose service definition. Struct field order
// is the field order in the emitted YAML, which is part of the output
// contract.
type Service struct {
	Image         string   `yaml:"image"`
	ContainerName string   `yaml:"container_name"`
	Ports         []string `yaml:"ports"`
	Volumes       []string `yaml:"volumes"`
	Environment   []string `yaml:"environment,omitempty"`
	Deploy        *Deploy  `yaml:"deploy,omitempty"`
	Logging       *Logging `yaml:"logging,omitempty"`
	Networks      []string `yaml:"networks,omitempty"`
}

// Deploy is emitted only when at least one of its sub-sections is set.
type Deploy struct {
	RestartPolicy *RestartPolicy `yaml:"restart_policy,omitempty"`
	Resources     *Resources     `yaml:"resources,omitempty"`
}

// RestartPolicy mirrors the engine's restart policy. MaxAttempts is a
// pointer so "on-failure" with zero retries still emits max_attempts: 0.
type RestartPolicy struct {
	Condition   string `yaml:"condition"`
	MaxAttempts *int   `yaml:"max_attempts,omitempty"`
}

// Resources holds per-service limits. CPUs is a decimal core count,
// Memory a byte count passed through from the engine unchanged.
type Resources struct {
	CPUs   string `yaml:"cpus,omitempty"`
	Memory int64  `yaml:"memory,omitempty"`
}

// Logging carries the log driver and its options verbatim.
type Logging struct {
	Driver  string            `yaml:"driver"`
	Options map[string]string `yaml:"options"`
}

// MissingFieldError reports an inspection record that lacks a section the
// translation needs.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("inspect data missing expected field %s", e.Field)
}

// FromInspect translates one inspection record into a named compose
// service. The returned name is the container name with its leading slash
// stripped; it doubles as the service key and the container_name field.
func FromInspect(rec inspect.Record, includePathEnv bool) (string, Service, error) {
	if err := validate(rec); err != nil {
		return "", Service{}, err
	}

	name := strings.Trim(rec.Name, "/")
	svc := Service{
		Image:         rec.Config.Image,
		ContainerName: name,
		Ports:         ports(rec.NetworkSettings.Ports),
		Volumes:       volumes(rec.Mounts),
		Environment:   environment(rec.Config.Env, includePathEnv),
		Deploy:        deploySection(rec.HostConfig),
		Logging:       logging(rec.HostConfig.LogConfig),
		Networks:      networks(rec.NetworkSettings.Networks),
	}
	return name, svc, nil
}

// validate checks the record sections the extractors dereference. A nil
// section means the backend handed us something that is not a container
// inspection record.
func validate(rec inspect.Record) error {
	switch {
	case rec.ContainerJSONBase == nil || rec.Name == "":
		return &MissingFieldError{Field: "Name"}
	case rec.HostConfig == nil:
		return &MissingFieldError{Field: "HostConfig"}
	case rec.Config == nil:
		return &MissingFieldError{Field: "Config"}
	case rec.NetworkSettings == nil:
		return &MissingFieldError{Field: "NetworkSettings"}
	}
	return nil
}

// ports flattens published port bindings into "host:container" entries.
// A container port with no published bindings contributes nothing. Keys
// are walked in sorted order so repeated runs emit identical documents.
func ports(pm nat.PortMap) []string {
	keys := make([]nat.Port, 0, len(pm))
	for port := range pm {
		keys = append(keys, port)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := []string{}
	for _, port := range keys {
		for _, binding := range pm[port] {
			out = append(out, binding.HostPort+":"+port.Port())
		}
	}
	return out
}

func volumes(mounts []container.MountPoint) []string {
	out := make([]string, 0, len(mounts))
	for _, m := range mounts {
		out = append(out, m.Source+":"+m.Destination)
	}
	return out
}

func environment(env []string, includePath bool) []string {
	if includePath {
		return env
	}
	out := make([]string, 0, len(env))
	for _, e := range env {
		if strings.HasPrefix(e, "PATH=") {
			continue
		}
		out = append(out, e)
	}
	return out
}

func deploySection(hc *container.HostConfig) *Deploy {
	d := &Deploy{
		RestartPolicy: restartPolicy(hc.RestartPolicy),
		Resources:     resources(hc.Resources),
	}
	if d.RestartPolicy == nil && d.Resources == nil {
		return nil
	}
	return d
}

func restartPolicy(rp container.RestartPolicy) *RestartPolicy {
	if rp.Name == "" {
		return nil
	}
	out := &RestartPolicy{Condition: string(rp.Name)}
	if rp.Name == container.RestartPolicyOnFailure {
		attempts := rp.MaximumRetryCount
		out.MaxAttempts = &attempts
	}
	return out
}

// resources converts engine quotas into compose deploy resources. NanoCPUs
// are billionths of a core; the division is emitted with no fixed
// precision, so non-round quotas keep their full decimal expansion.
func resources(res container.Resources) *Resources {
	out := &Resources{}
	if res.NanoCPUs != 0 {
		out.CPUs = strconv.FormatFloat(float64(res.NanoCPUs)/1e9, 'f', -1, 64)
	}
	if res.Memory != 0 {
		out.Memory = res.Memory
	}
	if out.CPUs == "" && out.Memory == 0 {
		return nil
	}
	return out
}

func logging(lc container.LogConfig) *Logging {
	if lc.Type == "" {
		return nil
	}
	opts := lc.Config
	if opts == nil {
		opts = map[string]string{}
	}
	return &Logging{Driver: lc.Type, Options: opts}
}

func networks(nets map[string]*network.EndpointSettings) []string {
	if len(nets) == 0 {
		return nil
	}
	names := make([]string, 0, len(nets))
	for name := range nets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
