package agent

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"
)

// LeaderFlag is the process-wide leadership bit. It is read on every
// reconciliation pass and flipped by the election callbacks.
type LeaderFlag struct {
	v atomic.Bool
}

// NewLeaderFlag returns a flag that starts as non-leader.
func NewLeaderFlag() *LeaderFlag { return &LeaderFlag{} }

// IsLeader reports whether this replica currently holds the lease.
func (f *LeaderFlag) IsLeader() bool { return f.v.Load() }

func (f *LeaderFlag) set(b bool) { f.v.Store(b) }

// runLeaderElection participates in a Lease-based election and keeps the
// leadership flag current. Gaining or losing leadership raises a trigger
// so status and reconciliation catch up immediately.
func (a *Agent) runLeaderElection(ctx context.Context, client kubernetes.Interface) error {
	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      a.settings.LeaseName,
			Namespace: a.settings.Namespace,
		},
		Client: client.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: a.settings.PodName,
		},
	}
	for {
		leaderelection.RunOrDie(ctx, leaderelection.LeaderElectionConfig{
			Lock:            lock,
			ReleaseOnCancel: true,
			LeaseDuration:   15 * time.Second,
			RenewDeadline:   10 * time.Second,
			RetryPeriod:     2 * time.Second,
			Callbacks: leaderelection.LeaderCallbacks{
				OnStartedLeading: func(context.Context) {
					a.log.Info("acquired leadership", zap.String("lease", a.settings.LeaseName))
					a.leader.set(true)
					a.triggers.Raise(TriggerLeadership)
				},
				OnStoppedLeading: func() {
					a.log.Info("lost leadership", zap.String("lease", a.settings.LeaseName))
					a.leader.set(false)
					a.triggers.Raise(TriggerLeadership)
				},
			},
		})
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
			// Re-enter the election after losing the lease.
		}
	}
}
