package k8s

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"
)

// Executor runs commands inside the workload container over the
// Kubernetes exec subresource.
type Executor struct {
	client    kubernetes.Interface
	config    *rest.Config
	namespace string
	pod       string
	container string
	timeout   time.Duration
	log       *zap.Logger
}

// NewExecutor returns an Executor bound to one container of one pod.
// timeout bounds every command; it is the only explicit timeout in this
// layer.
func NewExecutor(client kubernetes.Interface, config *rest.Config, namespace, pod, container string, timeout time.Duration, log *zap.Logger) *Executor {
	return &Executor{
		client:    client,
		config:    config,
		namespace: namespace,
		pod:       pod,
		container: container,
		timeout:   timeout,
		log:       log.Named("exec"),
	}
}

// Exec runs command in the workload container and returns the captured
// stdout. A non-zero exit or stream failure is returned as an error
// alongside whatever stdout was produced.
func (e *Executor) Exec(ctx context.Context, command []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req := e.client.CoreV1().RESTClient().
		Post().
		Resource("pods").
		Name(e.pod).
		Namespace(e.namespace).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: e.container,
			Command:   command,
			Stdout:    true,
			Stderr:    true,
		}, scheme.ParameterCodec)

	exec, err := remotecommand.NewSPDYExecutor(e.config, "POST", req.URL())
	if err != nil {
		return "", fmt.Errorf("creating executor: %w", err)
	}

	var stdout, stderr bytes.Buffer
	err = exec.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: &stdout,
		Stderr: &stderr,
	})
	if err != nil {
		e.log.Warn("command failed",
			zap.Strings("command", command),
			zap.String("stderr", stderr.String()),
			zap.Error(err))
		return stdout.String(), fmt.Errorf("executing %v: %w", command, err)
	}
	return stdout.String(), nil
}
