package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/afero"

	"github.com/ranstack/oai-ue-operator/internal/ueconfig"
	"github.com/ranstack/oai-ue-operator/pkg/rfconfig"
)

// StatusKind classifies the unit status.
type StatusKind string

const (
	StatusActive  StatusKind = "active"
	StatusWaiting StatusKind = "waiting"
	StatusBlocked StatusKind = "blocked"
)

// Status is the externally visible condition of the operator, exposed on
// the status endpoint and mirrored into the status gauge.
type Status struct {
	Kind            StatusKind `json:"kind"`
	Message         string     `json:"message,omitempty"`
	WorkloadVersion string     `json:"workload-version,omitempty"`
}

func blocked(msg string) Status { return Status{Kind: StatusBlocked, Message: msg} }
func waiting(msg string) Status { return Status{Kind: StatusWaiting, Message: msg} }

// CollectStatus evaluates the readiness ladder and returns the first
// condition that is not satisfied. It performs no mutation; the ordering
// is fixed so that the reported status is always the most fundamental
// unmet precondition.
func (c *Controller) CollectStatus(ctx context.Context) (Status, error) {
	if !c.isLeader() {
		return blocked("Scaling is not implemented for this charm"), nil
	}
	cfg, err := ueconfig.Load(c.fs, c.settings.UEConfigFile)
	if err != nil {
		var invalid *ueconfig.InvalidConfigError
		if errors.As(err, &invalid) {
			return blocked(invalid.Error()), nil
		}
		return Status{}, err
	}
	if !c.workload.Ready(ctx) {
		return waiting("Waiting for container to be ready"), nil
	}
	ip, err := c.resources.PodIP(ctx)
	if err != nil {
		return Status{}, err
	}
	if ip == "" {
		return waiting("Waiting for Pod IP address to be available"), nil
	}
	storageReady, err := afero.DirExists(c.fs, c.settings.ConfigMountPath)
	if err != nil {
		return Status{}, err
	}
	if !storageReady {
		return waiting("Waiting for storage to be attached"), nil
	}
	patched, err := c.resources.IsPatched(ctx, c.settings.ContainerName)
	if err != nil {
		return Status{}, err
	}
	if !patched {
		return waiting("Waiting for statefulset to be patched"), nil
	}
	created, err := c.rf.Created(ctx)
	if err != nil {
		return Status{}, err
	}
	if !created {
		return blocked(fmt.Sprintf("Waiting for %s relation to be created", c.settings.RelationName)), nil
	}
	version, ok, err := c.rf.ProviderVersion(ctx)
	if err != nil {
		return Status{}, err
	}
	if ok && version != rfconfig.Version {
		return blocked(fmt.Sprintf("Can't establish communication over the `%s` interface due to version mismatch!", c.settings.RelationName)), nil
	}
	if !cfg.SimulationMode {
		mounted, err := c.resources.IsUSBMounted(ctx, c.settings.ContainerName)
		if err != nil {
			return Status{}, err
		}
		if !mounted {
			return waiting("Waiting for USB device to be mounted"), nil
		}
	}
	data, err := c.rf.ProviderData(ctx)
	if err != nil {
		return Status{}, err
	}
	if data == nil || (cfg.SimulationMode && data.RFSIMAddress == nil) {
		return waiting("Waiting for RF configuration information"), nil
	}
	return Status{Kind: StatusActive, WorkloadVersion: c.workloadVersion(ctx)}, nil
}
