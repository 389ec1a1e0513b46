package controller

import (
	"strconv"
	"strings"

	"github.com/ranstack/oai-ue-operator/internal/ueconfig"
	"github.com/ranstack/oai-ue-operator/internal/workload"
	"github.com/ranstack/oai-ue-operator/pkg/rfconfig"
)

// serviceLayer builds the Pebble layer that supervises the softmodem.
// Radio parameters come verbatim from the relation; the mode flags come
// from local configuration.
func (c *Controller) serviceLayer(cfg ueconfig.Config, data *rfconfig.ProviderData) workload.Plan {
	args := []string{
		c.settings.UEBinaryPath,
		"-O", c.settings.ConfigFilePath(),
		"--sa",
	}
	if cfg.SimulationMode {
		args = append(args, "--rfsim")
	}
	args = append(args,
		"-r", strconv.Itoa(data.CarrierBandwidth),
		"--numerology", strconv.Itoa(data.Numerology),
		"-C", strconv.Itoa(data.DLFreq),
		"--ssb", strconv.Itoa(data.StartSubcarrier),
		"--band", strconv.Itoa(data.Band),
	)
	if cfg.UseThreeQuarterSampling {
		args = append(args, "-E")
	}
	if cfg.UseMIMO {
		args = append(args, "--ue-nb-ant-tx", "2", "--ue-nb-ant-rx", "2")
	}
	args = append(args, "--log_config.global_log_options", "level,nocolor,time")
	if cfg.SimulationMode && data.RFSIMAddress != nil {
		args = append(args, "--rfsimulator.serveraddr", *data.RFSIMAddress)
	}
	return workload.Plan{
		Services: map[string]workload.Service{
			c.settings.ServiceName: {
				Override: "replace",
				Startup:  "enabled",
				Command:  strings.Join(args, " "),
				Environment: map[string]string{
					"TZ": "UTC",
				},
			},
		},
	}
}
