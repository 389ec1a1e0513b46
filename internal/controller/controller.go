// Package controller implements the reconciliation core of the UE
// operator: on every trigger it gathers current state, decides unit
// status, and drives the workload configuration and the supervised
// service towards the desired state.
//
// All collaborators are injected as narrow interfaces so the whole ladder
// can be exercised against fakes. Nothing is cached between invocations:
// the operator's view of the world is rebuilt from scratch on every
// trigger.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/ranstack/oai-ue-operator/internal/config"
	"github.com/ranstack/oai-ue-operator/internal/render"
	"github.com/ranstack/oai-ue-operator/internal/ueconfig"
	"github.com/ranstack/oai-ue-operator/internal/workload"
	"github.com/ranstack/oai-ue-operator/pkg/rfconfig"
)

// Workload is the slice of the Pebble client the controller needs.
type Workload interface {
	Ready(ctx context.Context) bool
	Plan(ctx context.Context) (workload.Plan, error)
	AddLayer(ctx context.Context, label string, layer workload.Plan) error
	Replan(ctx context.Context) error
	Restart(ctx context.Context, service string) error
	Services(ctx context.Context, names []string) ([]workload.ServiceInfo, error)
	ReadFile(ctx context.Context, path string) (string, error)
}

// Resources is the slice of the Kubernetes patcher the controller needs.
type Resources interface {
	IsPatched(ctx context.Context, container string) (bool, error)
	Patch(ctx context.Context, container string) error
	IsUSBMounted(ctx context.Context, container string) (bool, error)
	MountUSB(ctx context.Context, container string) error
	UnmountUSB(ctx context.Context, container string) error
	PodIP(ctx context.Context) (string, error)
}

// Executor runs diagnostic commands inside the workload container.
type Executor interface {
	Exec(ctx context.Context, command []string) (string, error)
}

// RFConfig is the requirer side of the fiveg_rf_config relation.
type RFConfig interface {
	Created(ctx context.Context) (bool, error)
	ProviderVersion(ctx context.Context) (version int, ok bool, err error)
	ProviderData(ctx context.Context) (*rfconfig.ProviderData, error)
	PublishVersion(ctx context.Context) error
}

// Controller reconciles the UE workload. It holds no mutable state of its
// own; external state is the single source of truth.
type Controller struct {
	settings  config.Settings
	fs        afero.Fs
	workload  Workload
	resources Resources
	exec      Executor
	rf        RFConfig
	isLeader  func() bool
	log       *zap.Logger
}

// New constructs a Controller. fs covers both the workload configuration
// file and the shared config mount.
func New(settings config.Settings, fs afero.Fs, wl Workload, res Resources, exec Executor, rf RFConfig, isLeader func() bool, log *zap.Logger) *Controller {
	return &Controller{
		settings:  settings,
		fs:        fs,
		workload:  wl,
		resources: res,
		exec:      exec,
		rf:        rf,
		isLeader:  isLeader,
		log:       log.Named("controller"),
	}
}

// Result reports what a reconciliation pass actually changed.
type Result struct {
	ConfigWritten bool
	LayerApplied  bool
	Restarted     bool
}

// Reconcile drives external state towards the desired state. Preconditions
// that are not yet met abort the pass silently: status reporting is a
// separate path (CollectStatus) and the next trigger retries implicitly.
func (c *Controller) Reconcile(ctx context.Context) (Result, error) {
	var res Result
	if !c.isLeader() {
		return res, nil
	}
	cfg, err := ueconfig.Load(c.fs, c.settings.UEConfigFile)
	if err != nil {
		var invalid *ueconfig.InvalidConfigError
		if errors.As(err, &invalid) {
			c.log.Debug("configuration invalid, skipping reconciliation", zap.Error(err))
			return res, nil
		}
		return res, err
	}
	if !c.workload.Ready(ctx) {
		return res, nil
	}
	ip, err := c.resources.PodIP(ctx)
	if err != nil {
		return res, err
	}
	if ip == "" {
		return res, nil
	}

	patched, err := c.resources.IsPatched(ctx, c.settings.ContainerName)
	if err != nil {
		return res, err
	}
	if !patched {
		if err := c.resources.Patch(ctx, c.settings.ContainerName); err != nil {
			return res, err
		}
	}
	if err := c.reconcileUSB(ctx, cfg); err != nil {
		return res, err
	}

	if err := c.rf.PublishVersion(ctx); err != nil {
		if errors.Is(err, rfconfig.ErrNotLeader) || errors.Is(err, rfconfig.ErrRelationNotCreated) {
			c.log.Debug("cannot publish interface version yet", zap.Error(err))
		} else {
			return res, err
		}
	}
	data, err := c.rf.ProviderData(ctx)
	if err != nil {
		return res, err
	}
	if data == nil {
		return res, nil
	}
	if cfg.SimulationMode && data.RFSIMAddress == nil {
		return res, nil
	}

	storageReady, err := afero.DirExists(c.fs, c.settings.ConfigMountPath)
	if err != nil {
		return res, err
	}
	if !storageReady {
		return res, nil
	}

	content, err := c.renderConfig(cfg, data)
	if err != nil {
		return res, err
	}
	restartRequired, err := c.writeConfigIfChanged(content)
	if err != nil {
		return res, err
	}
	res.ConfigWritten = restartRequired

	desired := c.serviceLayer(cfg, data)
	plan, err := c.workload.Plan(ctx)
	if err != nil {
		return res, err
	}
	if !planMatches(plan, desired, c.settings.ServiceName) {
		if err := c.workload.AddLayer(ctx, c.settings.ServiceName, desired); err != nil {
			return res, err
		}
		res.LayerApplied = true
	}
	// A restart is keyed off configuration content, not off the layer: a
	// changed command without a changed file still only replans.
	if restartRequired {
		if err := c.workload.Restart(ctx, c.settings.ServiceName); err != nil {
			return res, err
		}
		res.Restarted = true
		c.log.Info("service restarted after configuration change",
			zap.String("service", c.settings.ServiceName))
	} else {
		if err := c.workload.Replan(ctx); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (c *Controller) reconcileUSB(ctx context.Context, cfg ueconfig.Config) error {
	mounted, err := c.resources.IsUSBMounted(ctx, c.settings.ContainerName)
	if err != nil {
		return err
	}
	switch {
	case cfg.SimulationMode && mounted:
		return c.resources.UnmountUSB(ctx, c.settings.ContainerName)
	case !cfg.SimulationMode && !mounted:
		return c.resources.MountUSB(ctx, c.settings.ContainerName)
	}
	return nil
}

// renderConfig resolves the substitution parameters and renders the
// workload configuration. Slice identity comes from the relation; the
// static sd knob is only a fallback when the provider does not assign one.
func (c *Controller) renderConfig(cfg ueconfig.Config, data *rfconfig.ProviderData) (string, error) {
	sd := data.SD
	if sd == nil {
		sd = cfg.SD
	}
	content, err := render.Render(render.Params{
		IMSI:  cfg.IMSI,
		Key:   cfg.Key,
		OPC:   cfg.OPC,
		DNN:   cfg.DNN,
		SST:   data.SST,
		SDHex: render.SDHex(sd),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimRight(content, " \t\n"), nil
}

// writeConfigIfChanged compares content byte-for-byte against the on-disk
// file and writes only on difference. The returned flag is the restart
// signal.
func (c *Controller) writeConfigIfChanged(content string) (bool, error) {
	path := c.settings.ConfigFilePath()
	existing, err := afero.ReadFile(c.fs, path)
	if err == nil && string(existing) == content {
		return false, nil
	}
	if err := afero.WriteFile(c.fs, path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("writing %s: %w", path, err)
	}
	c.log.Info("configuration file written", zap.String("path", path))
	return true, nil
}

func planMatches(plan, desired workload.Plan, service string) bool {
	current, ok := plan.Services[service]
	if !ok {
		return false
	}
	want := desired.Services[service]
	if current.Override != want.Override ||
		current.Startup != want.Startup ||
		current.Command != want.Command ||
		len(current.Environment) != len(want.Environment) {
		return false
	}
	for k, v := range want.Environment {
		if current.Environment[k] != v {
			return false
		}
	}
	return true
}

// workloadVersion reads the version marker from inside the workload
// container, empty when absent or unreadable. Never an error: an
// unversioned workload is a valid state.
func (c *Controller) workloadVersion(ctx context.Context) string {
	raw, err := c.workload.ReadFile(ctx, c.settings.VersionFile)
	if err != nil {
		c.log.Debug("workload version unavailable", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(raw)
}
