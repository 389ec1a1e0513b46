package workload

import (
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// pebbleStub fakes the handful of Pebble endpoints the client uses.
type pebbleStub struct {
	t         *testing.T
	plan      Plan
	services  []ServiceInfo
	layers      []map[string]any
	actions     []map[string]any
	changeErr   string
	fileContent map[string]string
}

func (s *pebbleStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/system-info", func(w http.ResponseWriter, _ *http.Request) {
		writeResult(w, map[string]string{"version": "1.19.0"})
	})
	mux.HandleFunc("/v1/plan", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(s.t, "yaml", r.URL.Query().Get("format"))
		encoded, err := yaml.Marshal(s.plan)
		require.NoError(s.t, err)
		writeResult(w, string(encoded))
	})
	mux.HandleFunc("/v1/layers", func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(s.t, json.NewDecoder(r.Body).Decode(&payload))
		s.layers = append(s.layers, payload)
		writeResult(w, true)
	})
	mux.HandleFunc("/v1/services", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			writeResult(w, s.services)
			return
		}
		var payload map[string]any
		require.NoError(s.t, json.NewDecoder(r.Body).Decode(&payload))
		s.actions = append(s.actions, payload)
		writeEnvelope(w, response{Type: "async", Change: "42"})
	})
	mux.HandleFunc("/v1/changes/42/wait", func(w http.ResponseWriter, _ *http.Request) {
		writeResult(w, change{ID: "42", Status: "Done", Ready: true, Err: s.changeErr})
	})
	mux.HandleFunc("/v1/files", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(s.t, "read", r.URL.Query().Get("action"))
		path := r.URL.Query().Get("path")
		mw := multipart.NewWriter(w)
		w.Header().Set("Content-Type", mw.FormDataContentType())
		content, ok := s.fileContent[path]
		if ok {
			part, err := mw.CreateFormFile("files", path)
			require.NoError(s.t, err)
			_, err = part.Write([]byte(content))
			require.NoError(s.t, err)
		}
		meta, err := mw.CreateFormField("response")
		require.NoError(s.t, err)
		if ok {
			fmt.Fprintf(meta, `{"type":"sync","status-code":200,"result":[{"path":%q}]}`, path)
		} else {
			fmt.Fprintf(meta, `{"type":"sync","status-code":200,"result":[{"path":%q,"error":{"kind":"not-found","message":"stat %s: no such file or directory"}}]}`, path, path)
		}
		require.NoError(s.t, mw.Close())
	})
	return mux
}

func writeResult(w http.ResponseWriter, result any) {
	encoded, _ := json.Marshal(result)
	writeEnvelope(w, response{Type: "sync", StatusCode: 200, Result: encoded})
}

func writeEnvelope(w http.ResponseWriter, envelope response) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(envelope) //nolint:errcheck
}

func newTestClient(t *testing.T, stub *pebbleStub) *Client {
	t.Helper()
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)
	return NewClientWithHTTP(srv.URL, srv.Client(), zap.NewNop())
}

func TestReady(t *testing.T) {
	client := newTestClient(t, &pebbleStub{t: t})
	assert.True(t, client.Ready(context.Background()))
}

func TestReadyUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := NewClientWithHTTP(srv.URL, http.DefaultClient, zap.NewNop())
	assert.False(t, client.Ready(context.Background()))
}

func TestPlanRoundTrip(t *testing.T) {
	want := Plan{Services: map[string]Service{
		"ue": {
			Override:    "replace",
			Startup:     "enabled",
			Command:     "/opt/oai-gnb/bin/nr-uesoftmodem -O /tmp/conf/ue.conf --sa",
			Environment: map[string]string{"TZ": "UTC"},
		},
	}}
	client := newTestClient(t, &pebbleStub{t: t, plan: want})
	got, err := client.Plan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestAddLayer(t *testing.T) {
	stub := &pebbleStub{t: t}
	client := newTestClient(t, stub)
	layer := Plan{Services: map[string]Service{"ue": {Override: "replace", Command: "sleep 1"}}}

	require.NoError(t, client.AddLayer(context.Background(), "ue", layer))

	require.Len(t, stub.layers, 1)
	payload := stub.layers[0]
	assert.Equal(t, "add", payload["action"])
	assert.Equal(t, true, payload["combine"])
	assert.Equal(t, "ue", payload["label"])
	var decoded Plan
	require.NoError(t, yaml.Unmarshal([]byte(payload["layer"].(string)), &decoded))
	assert.Equal(t, layer, decoded)
}

func TestServices(t *testing.T) {
	stub := &pebbleStub{t: t, services: []ServiceInfo{{Name: "ue", Startup: "enabled", Current: "active"}}}
	client := newTestClient(t, stub)
	infos, err := client.Services(context.Background(), []string{"ue"})
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "ue", infos[0].Name)
	assert.True(t, infos[0].Active())
}

func TestRestartWaitsForChange(t *testing.T) {
	stub := &pebbleStub{t: t}
	client := newTestClient(t, stub)
	require.NoError(t, client.Restart(context.Background(), "ue"))
	require.Len(t, stub.actions, 1)
	assert.Equal(t, "restart", stub.actions[0]["action"])
	assert.Equal(t, []any{"ue"}, stub.actions[0]["services"])
}

func TestRestartSurfacesChangeError(t *testing.T) {
	stub := &pebbleStub{t: t, changeErr: "cannot start service"}
	client := newTestClient(t, stub)
	err := client.Restart(context.Background(), "ue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot start service")
}

func TestReadFile(t *testing.T) {
	stub := &pebbleStub{t: t, fileContent: map[string]string{"/etc/workload-version": "2.1.0\n"}}
	client := newTestClient(t, stub)
	content, err := client.ReadFile(context.Background(), "/etc/workload-version")
	require.NoError(t, err)
	assert.Equal(t, "2.1.0\n", content)
}

func TestReadFileNotFound(t *testing.T) {
	stub := &pebbleStub{t: t}
	client := newTestClient(t, stub)
	_, err := client.ReadFile(context.Background(), "/etc/workload-version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such file")
}

func TestReplan(t *testing.T) {
	stub := &pebbleStub{t: t}
	client := newTestClient(t, stub)
	require.NoError(t, client.Replan(context.Background()))
	require.Len(t, stub.actions, 1)
	assert.Equal(t, "replan", stub.actions[0]["action"])
	assert.NotContains(t, stub.actions[0], "services")
}
