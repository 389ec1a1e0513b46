// Package config holds the operator's own settings, as opposed to the
// workload configuration the operator manages (internal/ueconfig).
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Settings configures one ue-operator instance. Values come from flags,
// environment (UE_OPERATOR_ prefix) and an optional config file, merged by
// viper; flags win.
type Settings struct {
	// Namespace and PodName identify where this operator runs; both are
	// normally injected via the downward API.
	Namespace string `mapstructure:"namespace"`
	PodName   string `mapstructure:"pod-name"`
	// AppName is the workload StatefulSet name.
	AppName string `mapstructure:"app-name"`

	ContainerName string `mapstructure:"container-name"`
	ServiceName   string `mapstructure:"service-name"`
	RelationName  string `mapstructure:"relation-name"`

	// PebbleSocket is the daemon socket shared with the workload container.
	PebbleSocket string `mapstructure:"pebble-socket"`
	// UEConfigFile is the operator-facing workload configuration (YAML).
	UEConfigFile string `mapstructure:"ue-config-file"`
	// ConfigMountPath is the shared volume carrying the rendered file.
	ConfigMountPath string `mapstructure:"config-mount-path"`
	ConfigFileName  string `mapstructure:"config-file-name"`
	// VersionFile is the version marker inside the workload container,
	// read through the Pebble files API.
	VersionFile string `mapstructure:"version-file"`
	// UEBinaryPath is the nr-uesoftmodem binary inside the workload.
	UEBinaryPath string `mapstructure:"ue-binary-path"`

	ListenAddr string `mapstructure:"listen-addr"`
	LeaseName  string `mapstructure:"lease-name"`

	UpdateStatusInterval time.Duration `mapstructure:"update-status-interval"`
	PebblePollInterval   time.Duration `mapstructure:"pebble-poll-interval"`
	ExecTimeout          time.Duration `mapstructure:"exec-timeout"`

	// Kubeconfig enables out-of-cluster development; empty means
	// in-cluster credentials.
	Kubeconfig string `mapstructure:"kubeconfig"`
	DevLogging bool   `mapstructure:"dev-logging"`
}

// SetDefaults registers every default on v. Callers bind flags and env on
// top of these.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("container-name", "ue")
	v.SetDefault("service-name", "ue")
	v.SetDefault("relation-name", "fiveg_rf_config")
	v.SetDefault("pebble-socket", "/charm/containers/ue/pebble.socket")
	v.SetDefault("ue-config-file", "/etc/ue-operator/ue-config.yaml")
	v.SetDefault("config-mount-path", "/tmp/conf")
	v.SetDefault("config-file-name", "ue.conf")
	v.SetDefault("version-file", "/etc/workload-version")
	v.SetDefault("ue-binary-path", "/opt/oai-gnb/bin/nr-uesoftmodem")
	v.SetDefault("listen-addr", ":9602")
	v.SetDefault("lease-name", "ue-operator-leader")
	v.SetDefault("update-status-interval", 5*time.Minute)
	v.SetDefault("pebble-poll-interval", 10*time.Second)
	v.SetDefault("exec-timeout", time.Minute)
}

// Load materializes and validates Settings from v.
func Load(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("unmarshalling settings: %w", err)
	}
	if err := s.validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) validate() error {
	required := map[string]string{
		"namespace": s.Namespace,
		"pod-name":  s.PodName,
		"app-name":  s.AppName,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("setting %q is required", name)
		}
	}
	if s.UpdateStatusInterval <= 0 {
		return fmt.Errorf("update-status-interval must be positive")
	}
	return nil
}

// ConfigFilePath is the full path of the rendered workload configuration.
func (s Settings) ConfigFilePath() string {
	return s.ConfigMountPath + "/" + s.ConfigFileName
}
