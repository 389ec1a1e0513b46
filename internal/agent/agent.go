// Package agent wires the reconciliation controller into a long-running
// process: leader election, event sources, the trigger loop and the
// operator API all live here.
package agent

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"k8s.io/client-go/kubernetes"

	"github.com/ranstack/oai-ue-operator/internal/config"
	"github.com/ranstack/oai-ue-operator/internal/controller"
)

// Agent owns the operator runtime. Events from all sources funnel into a
// single coalescing queue consumed by one goroutine, so reconciliation
// passes never overlap.
type Agent struct {
	settings   config.Settings
	controller *controller.Controller
	workload   controller.Workload
	client     kubernetes.Interface
	triggers   *triggerQueue
	leader     *LeaderFlag
	metrics    *Metrics
	registry   *prometheus.Registry
	log        *zap.Logger
}

// New assembles an Agent. The returned leader flag must be the same one
// the controller was constructed with.
func New(settings config.Settings, ctrl *controller.Controller, wl controller.Workload, client kubernetes.Interface, leader *LeaderFlag, log *zap.Logger) *Agent {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Agent{
		settings:   settings,
		controller: ctrl,
		workload:   wl,
		client:     client,
		triggers:   newTriggerQueue(),
		leader:     leader,
		metrics:    NewMetrics(registry),
		registry:   registry,
		log:        log.Named("agent"),
	}
}

// Run starts all event sources and blocks until ctx is cancelled or a
// component fails.
func (a *Agent) Run(ctx context.Context) error {
	a.triggers.Raise(TriggerStartup)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.runLeaderElection(ctx, a.client) })
	g.Go(func() error { return a.watchConfigFile(ctx) })
	g.Go(func() error {
		return a.watchRelation(ctx, a.client, relationConfigMapName(a.settings.RelationName))
	})
	g.Go(func() error { return a.pollWorkloadReadiness(ctx) })
	g.Go(func() error { return a.tickUpdateStatus(ctx) })
	g.Go(func() error { return a.consume(ctx) })
	g.Go(func() error { return a.serveHTTP(ctx, a.routes(a.registry)) })
	return g.Wait()
}

// consume is the single reconciliation loop. Each pending trigger gets
// one pass followed by a status refresh.
func (a *Agent) consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.triggers.Wait():
		}
		for {
			trigger, ok := a.triggers.Next()
			if !ok {
				break
			}
			a.dispatch(ctx, trigger)
		}
	}
}

func (a *Agent) dispatch(ctx context.Context, trigger Trigger) {
	log := a.log.With(zap.String("trigger", string(trigger)))
	log.Debug("reconciling")
	a.metrics.Reconciles.WithLabelValues(string(trigger)).Inc()

	result, err := a.controller.Reconcile(ctx)
	if err != nil {
		a.metrics.ReconcileFails.Inc()
		log.Error("reconciliation failed", zap.Error(err))
	} else {
		if result.ConfigWritten {
			a.metrics.ConfigWrites.Inc()
		}
		if result.Restarted {
			a.metrics.Restarts.Inc()
		}
	}

	status, err := a.controller.CollectStatus(ctx)
	if err != nil {
		log.Error("status collection failed", zap.Error(err))
		return
	}
	a.metrics.SetStatus(status.Kind)
	log.Info("status evaluated",
		zap.String("kind", string(status.Kind)),
		zap.String("message", status.Message))
}
