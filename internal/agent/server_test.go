package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/ranstack/oai-ue-operator/internal/config"
	"github.com/ranstack/oai-ue-operator/internal/controller"
	"github.com/ranstack/oai-ue-operator/internal/workload"
	"github.com/ranstack/oai-ue-operator/pkg/rfconfig"
)

type stubWorkload struct {
	ready    bool
	services []workload.ServiceInfo
}

func (s *stubWorkload) Ready(context.Context) bool { return s.ready }

func (s *stubWorkload) Plan(context.Context) (workload.Plan, error) { return workload.Plan{}, nil }

func (s *stubWorkload) AddLayer(context.Context, string, workload.Plan) error { return nil }

func (s *stubWorkload) Replan(context.Context) error { return nil }

func (s *stubWorkload) Restart(context.Context, string) error { return nil }

func (s *stubWorkload) Services(context.Context, []string) ([]workload.ServiceInfo, error) {
	return s.services, nil
}

func (s *stubWorkload) ReadFile(context.Context, string) (string, error) { return "", nil }

type stubResources struct{}

func (stubResources) IsPatched(context.Context, string) (bool, error)    { return true, nil }
func (stubResources) Patch(context.Context, string) error                { return nil }
func (stubResources) IsUSBMounted(context.Context, string) (bool, error) { return false, nil }
func (stubResources) MountUSB(context.Context, string) error             { return nil }
func (stubResources) UnmountUSB(context.Context, string) error           { return nil }
func (stubResources) PodIP(context.Context) (string, error)              { return "10.1.2.3", nil }

type stubExecutor struct {
	out string
	err error
}

func (s *stubExecutor) Exec(context.Context, []string) (string, error) { return s.out, s.err }

type stubRF struct{}

func (stubRF) Created(context.Context) (bool, error)            { return false, nil }
func (stubRF) ProviderVersion(context.Context) (int, bool, error) { return 0, false, nil }
func (stubRF) ProviderData(context.Context) (*rfconfig.ProviderData, error) {
	return nil, nil
}
func (stubRF) PublishVersion(context.Context) error { return rfconfig.ErrRelationNotCreated }

// newTestAgent wires an Agent whose controller runs against stubs: ready
// workload, pod IP assigned, attached storage, no relation.
func newTestAgent(t *testing.T, wl *stubWorkload, exec *stubExecutor) *Agent {
	t.Helper()
	settings := config.Settings{
		Namespace:       "ran",
		PodName:         "oai-ran-ue-0",
		AppName:         "oai-ran-ue",
		ContainerName:   "ue",
		ServiceName:     "ue",
		RelationName:    "fiveg_rf_config",
		UEConfigFile:    "/etc/ue-operator/ue-config.yaml",
		ConfigMountPath: "/tmp/conf",
		ConfigFileName:  "ue.conf",
		VersionFile:     "/etc/workload-version",
		ExecTimeout:     time.Minute,
	}
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(settings.ConfigMountPath, 0o755))
	require.NoError(t, afero.WriteFile(fs, settings.UEConfigFile, []byte("simulation-mode: true\n"), 0o644))
	leader := NewLeaderFlag()
	leader.set(true)
	ctrl := controller.New(settings, fs, wl, stubResources{}, exec, stubRF{}, leader.IsLeader, zap.NewNop())
	return New(settings, ctrl, wl, fake.NewSimpleClientset(), leader, zap.NewNop())
}

func serveRequest(a *Agent, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.routes(a.registry).ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHandleHealthz(t *testing.T) {
	a := newTestAgent(t, &stubWorkload{ready: true}, &stubExecutor{})
	rec := serveRequest(a, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleStatus(t *testing.T) {
	a := newTestAgent(t, &stubWorkload{ready: true}, &stubExecutor{})
	rec := serveRequest(a, http.MethodGet, "/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var status controller.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, controller.StatusBlocked, status.Kind)
	assert.Equal(t, "Waiting for fiveg_rf_config relation to be created", status.Message)
}

func TestHandlePingSuccess(t *testing.T) {
	wl := &stubWorkload{
		ready:    true,
		services: []workload.ServiceInfo{{Name: "ue", Current: "active"}},
	}
	a := newTestAgent(t, wl, &stubExecutor{out: "10 packets transmitted, 10 received"})
	rec := serveRequest(a, http.MethodPost, "/v1/actions/ping")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool                  `json:"success"`
		Error   string                `json:"error"`
		Result  controller.PingResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Error)
	assert.Equal(t, "true", resp.Result.Success)
	assert.Equal(t, "10 packets transmitted, 10 received", resp.Result.Result)
}

func TestHandlePingFailureEnvelope(t *testing.T) {
	// Service not registered: the failure is part of the action protocol,
	// reported as a structured envelope with a 200, never a 5xx.
	a := newTestAgent(t, &stubWorkload{ready: true}, &stubExecutor{})
	rec := serveRequest(a, http.MethodPost, "/v1/actions/ping")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "UE service is not ready", resp.Error)
}

func TestHandlePingContainerNotReady(t *testing.T) {
	a := newTestAgent(t, &stubWorkload{ready: false}, &stubExecutor{})
	rec := serveRequest(a, http.MethodPost, "/v1/actions/ping")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "Container is not ready", resp.Error)
}

func TestHandlePingMethodNotAllowed(t *testing.T) {
	a := newTestAgent(t, &stubWorkload{ready: true}, &stubExecutor{})
	rec := serveRequest(a, http.MethodGet, "/v1/actions/ping")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
