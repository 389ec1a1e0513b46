package controller

import (
	"context"
	"errors"
	"fmt"
)

// pingCommand probes end-to-end connectivity through the UE tunnel
// interface towards a well-known address.
var pingCommand = []string{"ping", "-I", "oaitun_ue1", "8.8.8.8", "-c", "10"}

// PingResult is the payload of a successful connectivity check. Values are
// strings to keep the action result a flat string map on the wire.
type PingResult struct {
	Success string `json:"success"`
	Result  string `json:"result"`
}

// Ping runs a connectivity check inside the workload container. Failures
// are reported as errors with operator-facing messages; they never panic
// and never leave the action boundary as anything but an error value.
func (c *Controller) Ping(ctx context.Context) (PingResult, error) {
	if !c.workload.Ready(ctx) {
		return PingResult{}, errors.New("Container is not ready")
	}
	infos, err := c.workload.Services(ctx, []string{c.settings.ServiceName})
	if err != nil || len(infos) == 0 {
		return PingResult{}, errors.New("UE service is not ready")
	}
	stdout, err := c.exec.Exec(ctx, pingCommand)
	if err != nil {
		return PingResult{}, fmt.Errorf("Failed to execute simulation: %s", stdout)
	}
	return PingResult{Success: "true", Result: stdout}, nil
}
