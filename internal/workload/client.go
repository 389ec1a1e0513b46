// Package workload talks to the Pebble daemon supervising the UE process.
//
// Pebble exposes a small JSON API over a unix socket shared between the
// operator and the workload container. Only the endpoints this operator
// needs are covered: reachability, the service plan, layer updates,
// service lifecycle and single-file reads from the workload filesystem.
// File content on the shared config volume is handled by the controller
// directly and is not part of this client.
package workload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// Plan is the effective service configuration known to Pebble. Layers use
// the same shape.
type Plan struct {
	Services map[string]Service `yaml:"services,omitempty"`
}

// Service is one supervised process definition.
type Service struct {
	Override    string            `yaml:"override,omitempty"`
	Startup     string            `yaml:"startup,omitempty"`
	Command     string            `yaml:"command,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
}

// ServiceInfo is the runtime state of one registered service.
type ServiceInfo struct {
	Name    string `json:"name"`
	Startup string `json:"startup"`
	Current string `json:"current"`
}

// Active reports whether the service is currently running.
func (s ServiceInfo) Active() bool {
	return s.Current == "active"
}

// Client is a minimal Pebble API client over the daemon's unix socket.
type Client struct {
	http    *http.Client
	baseURL string
	log     *zap.Logger
}

const changeWaitTimeout = 30 * time.Second

// NewClient returns a client for the Pebble daemon listening on
// socketPath.
func NewClient(socketPath string, log *zap.Logger) *Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   changeWaitTimeout + 10*time.Second,
		},
		// The host is ignored; the transport always dials the socket.
		baseURL: "http://localhost",
		log:     log.Named("pebble"),
	}
}

// NewClientWithHTTP returns a client using an explicit base URL and HTTP
// client. Tests use this to point at an httptest server.
func NewClientWithHTTP(baseURL string, httpClient *http.Client, log *zap.Logger) *Client {
	return &Client{http: httpClient, baseURL: baseURL, log: log.Named("pebble")}
}

// response is the envelope every Pebble endpoint returns.
type response struct {
	Type       string          `json:"type"`
	StatusCode int             `json:"status-code"`
	Status     string          `json:"status"`
	Change     string          `json:"change"`
	Result     json.RawMessage `json:"result"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (*response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("creating %s %s request: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.log.Warn("closing response body", zap.Error(err))
		}
	}()
	var envelope response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s %s: pebble returned %d (%s)", method, path, resp.StatusCode, envelope.Status)
	}
	return &envelope, nil
}

// Ready reports whether the Pebble daemon can be reached at all.
func (c *Client) Ready(ctx context.Context) bool {
	_, err := c.do(ctx, http.MethodGet, "/v1/system-info", nil, nil)
	return err == nil
}

// Plan fetches the current combined plan.
func (c *Client) Plan(ctx context.Context) (Plan, error) {
	envelope, err := c.do(ctx, http.MethodGet, "/v1/plan", url.Values{"format": []string{"yaml"}}, nil)
	if err != nil {
		return Plan{}, err
	}
	var raw string
	if err := json.Unmarshal(envelope.Result, &raw); err != nil {
		return Plan{}, fmt.Errorf("decoding plan payload: %w", err)
	}
	var plan Plan
	if err := yaml.Unmarshal([]byte(raw), &plan); err != nil {
		return Plan{}, fmt.Errorf("parsing plan yaml: %w", err)
	}
	return plan, nil
}

// AddLayer submits layer under label, combining with any existing layer of
// the same label.
func (c *Client) AddLayer(ctx context.Context, label string, layer Plan) error {
	encoded, err := yaml.Marshal(layer)
	if err != nil {
		return fmt.Errorf("encoding layer %s: %w", label, err)
	}
	payload := map[string]any{
		"action":  "add",
		"combine": true,
		"label":   label,
		"format":  "yaml",
		"layer":   string(encoded),
	}
	if _, err := c.do(ctx, http.MethodPost, "/v1/layers", nil, payload); err != nil {
		return err
	}
	c.log.Info("layer added", zap.String("label", label))
	return nil
}

// Services returns the state of the named services; unknown names are
// simply absent from the result.
func (c *Client) Services(ctx context.Context, names []string) ([]ServiceInfo, error) {
	query := url.Values{}
	if len(names) > 0 {
		query.Set("names", strings.Join(names, ","))
	}
	envelope, err := c.do(ctx, http.MethodGet, "/v1/services", query, nil)
	if err != nil {
		return nil, err
	}
	var infos []ServiceInfo
	if err := json.Unmarshal(envelope.Result, &infos); err != nil {
		return nil, fmt.Errorf("decoding services payload: %w", err)
	}
	return infos, nil
}

// fileError is the per-file error record of the files endpoint.
type fileError struct {
	Path  string `json:"path"`
	Error *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

// ReadFile fetches one file from the workload filesystem. Pebble returns
// file reads as multipart/form-data: the content in a "files" part, the
// per-file outcome in a "response" part.
func (c *Client) ReadFile(ctx context.Context, path string) (string, error) {
	query := url.Values{"action": []string{"read"}, "path": []string{path}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/files?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("creating files request: %w", err)
	}
	req.Header.Set("Accept", "multipart/form-data")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.log.Warn("closing response body", zap.Error(err))
		}
	}()

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		// Failures come back as a plain JSON envelope.
		var envelope response
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return "", fmt.Errorf("reading %s: pebble returned %d", path, resp.StatusCode)
		}
		return "", fmt.Errorf("reading %s: %s", path, envelope.Status)
	}

	mr := multipart.NewReader(resp.Body, params["boundary"])
	var content []byte
	found := false
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", path, err)
		}
		switch part.FormName() {
		case "files":
			content, err = io.ReadAll(part)
			if err != nil {
				return "", fmt.Errorf("reading %s: %w", path, err)
			}
			found = true
		case "response":
			var envelope struct {
				Result []fileError `json:"result"`
			}
			if err := json.NewDecoder(part).Decode(&envelope); err != nil {
				continue
			}
			for _, f := range envelope.Result {
				if f.Error != nil {
					return "", fmt.Errorf("reading %s: %s", path, f.Error.Message)
				}
			}
		}
	}
	if !found {
		return "", fmt.Errorf("reading %s: no file content in response", path)
	}
	return string(content), nil
}

// Replan asks Pebble to reconcile running services with the current plan
// and waits for the change to settle.
func (c *Client) Replan(ctx context.Context) error {
	return c.serviceAction(ctx, "replan", nil)
}

// Restart restarts the named service and waits for the change to settle.
func (c *Client) Restart(ctx context.Context, service string) error {
	return c.serviceAction(ctx, "restart", []string{service})
}

func (c *Client) serviceAction(ctx context.Context, action string, services []string) error {
	payload := map[string]any{"action": action}
	if services != nil {
		payload["services"] = services
	}
	envelope, err := c.do(ctx, http.MethodPost, "/v1/services", nil, payload)
	if err != nil {
		return err
	}
	if envelope.Change == "" {
		return nil
	}
	return c.waitChange(ctx, envelope.Change)
}

// change is the subset of Pebble's change object this client reads.
type change struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Err    string `json:"err"`
	Ready  bool   `json:"ready"`
}

func (c *Client) waitChange(ctx context.Context, id string) error {
	query := url.Values{"timeout": []string{changeWaitTimeout.String()}}
	envelope, err := c.do(ctx, http.MethodGet, "/v1/changes/"+id+"/wait", query, nil)
	if err != nil {
		return err
	}
	var ch change
	if err := json.Unmarshal(envelope.Result, &ch); err != nil {
		return fmt.Errorf("decoding change payload: %w", err)
	}
	if ch.Err != "" {
		return fmt.Errorf("pebble change %s failed: %s", id, ch.Err)
	}
	return nil
}
