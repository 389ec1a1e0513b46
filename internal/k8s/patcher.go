// Package k8s patches the workload StatefulSet so the UE container can
// manipulate network interfaces and reach USB-attached radio hardware.
package k8s

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/utils/ptr"
)

// ErrResourceNotFound is returned when the StatefulSet or the named
// container cannot be located. Structural absence inside an existing
// container (no security context, no volumes) is not an error.
var ErrResourceNotFound = errors.New("resource not found")

// USBDevicePath is both the hostPath source and the in-container mount
// point of the USB bus.
const USBDevicePath = "/dev/bus/usb"

const usbVolumeName = "usb"

// netAdminCapability is required by nr-uesoftmodem to create its TUN
// interface.
const netAdminCapability = corev1.Capability("NET_ADMIN")

// Patcher performs idempotent read-modify-write mutations against one
// StatefulSet. Every query re-reads the authoritative object; nothing is
// cached between calls. Writes carry no optimistic-concurrency retry: a
// race with a concurrent writer surfaces as a plain API error.
type Patcher struct {
	client      kubernetes.Interface
	namespace   string
	statefulset string
	podName     string
	log         *zap.Logger
}

// NewPatcher returns a Patcher bound to one StatefulSet and the pod this
// operator shares with the workload.
func NewPatcher(client kubernetes.Interface, namespace, statefulset, podName string, log *zap.Logger) *Patcher {
	return &Patcher{
		client:      client,
		namespace:   namespace,
		statefulset: statefulset,
		podName:     podName,
		log:         log.Named("k8s"),
	}
}

func (p *Patcher) getStatefulSet(ctx context.Context) (*appsv1.StatefulSet, error) {
	sts, err := p.client.AppsV1().StatefulSets(p.namespace).Get(ctx, p.statefulset, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, fmt.Errorf("%w: statefulset %s", ErrResourceNotFound, p.statefulset)
	}
	if err != nil {
		return nil, fmt.Errorf("getting statefulset %s: %w", p.statefulset, err)
	}
	return sts, nil
}

func findContainer(sts *appsv1.StatefulSet, name string) (*corev1.Container, error) {
	containers := sts.Spec.Template.Spec.Containers
	for i := range containers {
		if containers[i].Name == name {
			return &containers[i], nil
		}
	}
	return nil, fmt.Errorf("%w: container %s", ErrResourceNotFound, name)
}

// IsPatched reports whether the named container runs privileged with the
// NET_ADMIN capability. A missing security context means not patched,
// not an error.
func (p *Patcher) IsPatched(ctx context.Context, container string) (bool, error) {
	sts, err := p.getStatefulSet(ctx)
	if err != nil {
		return false, err
	}
	ctr, err := findContainer(sts, container)
	if err != nil {
		return false, err
	}
	sc := ctr.SecurityContext
	if sc == nil || sc.Capabilities == nil || sc.Privileged == nil || !*sc.Privileged {
		return false, nil
	}
	for _, cap := range sc.Capabilities.Add {
		if cap == netAdminCapability {
			return true, nil
		}
	}
	return false, nil
}

// Patch sets the privileged security context with NET_ADMIN on the named
// container and writes the whole StatefulSet back.
func (p *Patcher) Patch(ctx context.Context, container string) error {
	sts, err := p.getStatefulSet(ctx)
	if err != nil {
		return err
	}
	ctr, err := findContainer(sts, container)
	if err != nil {
		return err
	}
	ctr.SecurityContext = &corev1.SecurityContext{
		Privileged: ptr.To(true),
		Capabilities: &corev1.Capabilities{
			Add: []corev1.Capability{netAdminCapability},
		},
	}
	if _, err := p.client.AppsV1().StatefulSets(p.namespace).Update(ctx, sts, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("updating statefulset %s: %w", p.statefulset, err)
	}
	p.log.Info("statefulset patched for privileged workload",
		zap.String("container", container))
	return nil
}

func usbVolume() corev1.Volume {
	return corev1.Volume{
		Name: usbVolumeName,
		VolumeSource: corev1.VolumeSource{
			HostPath: &corev1.HostPathVolumeSource{
				Path: USBDevicePath,
				Type: ptr.To(corev1.HostPathType("")),
			},
		},
	}
}

func usbVolumeMount() corev1.VolumeMount {
	return corev1.VolumeMount{
		Name:      usbVolumeName,
		MountPath: USBDevicePath,
	}
}

// IsUSBMounted reports whether the USB hostPath volume is present at the
// pod-spec level AND mounted into the named container. Both are required.
func (p *Patcher) IsUSBMounted(ctx context.Context, container string) (bool, error) {
	sts, err := p.getStatefulSet(ctx)
	if err != nil {
		return false, err
	}
	ctr, err := findContainer(sts, container)
	if err != nil {
		return false, err
	}
	hasVolume := false
	for _, v := range sts.Spec.Template.Spec.Volumes {
		if v.Name == usbVolumeName {
			hasVolume = true
			break
		}
	}
	hasMount := false
	for _, m := range ctr.VolumeMounts {
		if m.Name == usbVolumeName {
			hasMount = true
			break
		}
	}
	return hasVolume && hasMount, nil
}

// MountUSB appends the USB volume and its mount, preserving all existing
// volumes and mounts, and writes the StatefulSet back.
func (p *Patcher) MountUSB(ctx context.Context, container string) error {
	sts, err := p.getStatefulSet(ctx)
	if err != nil {
		return err
	}
	ctr, err := findContainer(sts, container)
	if err != nil {
		return err
	}
	ctr.VolumeMounts = append(ctr.VolumeMounts, usbVolumeMount())
	sts.Spec.Template.Spec.Volumes = append(sts.Spec.Template.Spec.Volumes, usbVolume())
	if _, err := p.client.AppsV1().StatefulSets(p.namespace).Update(ctx, sts, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("updating statefulset %s: %w", p.statefulset, err)
	}
	p.log.Info("USB volume mounted", zap.String("container", container))
	return nil
}

// UnmountUSB removes the USB volume and its mount by name, leaving every
// other volume and mount untouched.
func (p *Patcher) UnmountUSB(ctx context.Context, container string) error {
	sts, err := p.getStatefulSet(ctx)
	if err != nil {
		return err
	}
	ctr, err := findContainer(sts, container)
	if err != nil {
		return err
	}
	mounts := ctr.VolumeMounts[:0]
	for _, m := range ctr.VolumeMounts {
		if m.Name != usbVolumeName {
			mounts = append(mounts, m)
		}
	}
	ctr.VolumeMounts = mounts
	volumes := sts.Spec.Template.Spec.Volumes[:0]
	for _, v := range sts.Spec.Template.Spec.Volumes {
		if v.Name != usbVolumeName {
			volumes = append(volumes, v)
		}
	}
	sts.Spec.Template.Spec.Volumes = volumes
	if _, err := p.client.AppsV1().StatefulSets(p.namespace).Update(ctx, sts, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("updating statefulset %s: %w", p.statefulset, err)
	}
	p.log.Info("USB volume unmounted", zap.String("container", container))
	return nil
}

// PodIP returns the workload pod's assigned IP, empty while the address
// has not been assigned yet.
func (p *Patcher) PodIP(ctx context.Context) (string, error) {
	pod, err := p.client.CoreV1().Pods(p.namespace).Get(ctx, p.podName, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting pod %s: %w", p.podName, err)
	}
	return pod.Status.PodIP, nil
}
