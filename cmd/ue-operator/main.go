// Command ue-operator runs the OAI RAN UE operator: it supervises the
// nr-uesoftmodem workload through Pebble, keeps its configuration in step
// with operator settings and the fiveg_rf_config relation, and serves the
// status and action API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/ranstack/oai-ue-operator/internal/agent"
	"github.com/ranstack/oai-ue-operator/internal/config"
	"github.com/ranstack/oai-ue-operator/internal/controller"
	"github.com/ranstack/oai-ue-operator/internal/k8s"
	"github.com/ranstack/oai-ue-operator/internal/workload"
	"github.com/ranstack/oai-ue-operator/pkg/rfconfig"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:           "ue-operator",
		Short:         "Operator for the OAI RAN UE simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), v)
		},
	}

	config.SetDefaults(v)
	v.SetEnvPrefix("UE_OPERATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	flags := cmd.Flags()
	flags.String("namespace", "", "namespace the operator runs in")
	flags.String("pod-name", "", "name of this operator pod")
	flags.String("app-name", "", "application name, used for the workload statefulset")
	flags.String("kubeconfig", "", "path to a kubeconfig, in-cluster config when empty")
	flags.String("listen-addr", "", "address of the status and action API")
	flags.Bool("dev-logging", false, "enable development logging")
	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}
	return cmd
}

func run(ctx context.Context, v *viper.Viper) error {
	settings, err := config.Load(v)
	if err != nil {
		return err
	}

	log, err := newLogger(settings.DevLogging)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	restConfig, err := kubeConfig(settings.Kubeconfig)
	if err != nil {
		return fmt.Errorf("loading kubernetes config: %w", err)
	}
	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return fmt.Errorf("creating kubernetes client: %w", err)
	}

	fs := afero.NewOsFs()
	leader := agent.NewLeaderFlag()

	wl := workload.NewClient(settings.PebbleSocket, log)
	resources := k8s.NewPatcher(client, settings.Namespace, settings.AppName, settings.PodName, log)
	executor := k8s.NewExecutor(client, restConfig, settings.Namespace, settings.PodName, settings.ContainerName, settings.ExecTimeout, log)
	bag := rfconfig.NewConfigMapDatabag(client, settings.Namespace, settings.RelationName, rfconfig.SideRequirer)
	relation := rfconfig.NewRequires(bag, leader.IsLeader, log)

	ctrl := controller.New(settings, fs, wl, resources, executor, relation, leader.IsLeader, log)
	a := agent.New(settings, ctrl, wl, client, leader, log)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting UE operator",
		zap.String("namespace", settings.Namespace),
		zap.String("app", settings.AppName),
		zap.String("listen", settings.ListenAddr))
	return a.Run(ctx)
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func kubeConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig != "" {
		return clientcmd.BuildConfigFromFlags("", kubeconfig)
	}
	return rest.InClusterConfig()
}
