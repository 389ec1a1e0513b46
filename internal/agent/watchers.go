package agent

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/client-go/kubernetes"
)

const configDebounceDelay = 300 * time.Millisecond

// watchConfigFile raises config-changed whenever the operator's
// configuration file is written. The parent directory is watched rather
// than the file itself so that atomic renames are seen too.
func (a *Agent) watchConfigFile(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(a.settings.UEConfigFile)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	var mu sync.Mutex
	var pending *time.Timer
	defer func() {
		mu.Lock()
		if pending != nil {
			pending.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != a.settings.UEConfigFile {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			mu.Lock()
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(configDebounceDelay, func() {
				a.log.Debug("configuration file changed", zap.String("path", event.Name))
				a.triggers.Raise(TriggerConfigChanged)
			})
			mu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.log.Warn("config watcher error", zap.Error(err))
		}
	}
}

// watchRelation watches the relation ConfigMap and raises relation-changed
// on every add, update or delete. The watch is re-established on close.
func (a *Agent) watchRelation(ctx context.Context, client kubernetes.Interface, name string) error {
	for {
		if err := a.runRelationWatch(ctx, client, name); err != nil {
			a.log.Warn("relation watch interrupted", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(2 * time.Second):
		}
	}
}

func (a *Agent) runRelationWatch(ctx context.Context, client kubernetes.Interface, name string) error {
	w, err := client.CoreV1().ConfigMaps(a.settings.Namespace).Watch(ctx, metav1.ListOptions{
		FieldSelector: fields.OneTermEqualSelector("metadata.name", name).String(),
	})
	if err != nil {
		return err
	}
	defer w.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.ResultChan():
			if !ok {
				return nil
			}
			a.log.Debug("relation event", zap.String("type", string(event.Type)))
			a.triggers.Raise(TriggerRelationChanged)
		}
	}
}

// pollWorkloadReadiness raises pebble-ready on each transition of the
// workload API from unreachable to reachable.
func (a *Agent) pollWorkloadReadiness(ctx context.Context) error {
	ticker := time.NewTicker(a.settings.PebblePollInterval)
	defer ticker.Stop()
	ready := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now := a.workload.Ready(ctx)
			if now && !ready {
				a.log.Info("workload container became ready")
				a.triggers.Raise(TriggerPebbleReady)
			}
			ready = now
		}
	}
}

// tickUpdateStatus raises the periodic update-status trigger.
func (a *Agent) tickUpdateStatus(ctx context.Context) error {
	ticker := time.NewTicker(a.settings.UpdateStatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.triggers.Raise(TriggerUpdateStatus)
		}
	}
}

// relationConfigMapName mirrors the relation-to-ConfigMap naming rule.
func relationConfigMapName(relation string) string {
	return strings.ReplaceAll(relation, "_", "-")
}
