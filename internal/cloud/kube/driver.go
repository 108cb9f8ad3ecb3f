// Package kube implements the control-plane contract on a Kubernetes
// cluster. Each unit maps to a Deployment plus a ClusterIP Service in the
// environment's namespace, access bindings to labeled RoleBindings, routing
// documents to ConfigMaps, and the environment gateway to an annotated
// Ingress.
package kube

import (
	"context"
	"fmt"
	"sort"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"rolloutctl/internal/cloud"
	"rolloutctl/pkg/logging"
)

const subsystem = "kube"

// NewClientsetFromConfig is a package-level variable for creating a clientset
// from rest.Config. Exported to allow overriding in tests.
var NewClientsetFromConfig = func(c *rest.Config) (kubernetes.Interface, error) {
	return kubernetes.NewForConfig(c)
}

// NewDeferredClientConfig is a package-level variable to allow mocking of
// clientcmd.NewNonInteractiveDeferredLoadingClientConfig.
var NewDeferredClientConfig = func(loader clientcmd.ClientConfigLoader, overrides *clientcmd.ConfigOverrides) clientcmd.ClientConfig {
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loader, overrides)
}

const (
	containerPort   = 8080
	servicePort     = 80
	endpointSuffix  = "svc.cluster.local"
	revisionAnnoKey = "deployment.kubernetes.io/revision"

	unitLabelKey       = "rollout.example.com/unit"
	managedByLabelKey  = "app.kubernetes.io/managed-by"
	managedByValue     = "rolloutctl"
	minInstancesAnno   = "rollout.example.com/min-instances"
	maxInstancesAnno   = "rollout.example.com/max-instances"
	concurrencyAnno    = "rollout.example.com/concurrency"
	frozenAnno         = "rollout.example.com/frozen"
	ingressScopeAnno   = "rollout.example.com/ingress-scope"
	routeConfigAnno    = "rollout.example.com/route-config"
	rolledBackFromAnno = "rollout.example.com/rolled-back-from"
)

// Driver is the Kubernetes control-plane client.
type Driver struct {
	client kubernetes.Interface
}

var _ cloud.ControlPlane = (*Driver)(nil)

// NewDriver builds a driver from the local kubeconfig. An empty kubeContext
// uses the current context.
func NewDriver(kubeContext string) (*Driver, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	configOverrides := &clientcmd.ConfigOverrides{CurrentContext: kubeContext}
	kubeConfig := NewDeferredClientConfig(loadingRules, configOverrides)

	restConfig, err := kubeConfig.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get REST config for context %q: %w", kubeContext, err)
	}
	restConfig.Timeout = 15 * time.Second

	clientset, err := NewClientsetFromConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes clientset for context %q: %w", kubeContext, err)
	}
	return NewDriverWithClient(clientset), nil
}

// NewDriverWithClient wraps an existing clientset. Used by tests with the
// fake clientset.
func NewDriverWithClient(client kubernetes.Interface) *Driver {
	return &Driver{client: client}
}

// Submit creates or replaces the unit's Deployment and Service.
func (d *Driver) Submit(ctx context.Context, spec cloud.ServiceSpec) (cloud.ResourceHandle, error) {
	desired := buildDeployment(spec)

	deployments := d.client.AppsV1().Deployments(spec.Namespace)
	existing, err := deployments.Get(ctx, spec.Name, metav1.GetOptions{})
	switch {
	case apierrors.IsNotFound(err):
		logging.Debug(subsystem, "creating deployment %s/%s", spec.Namespace, spec.Name)
		if _, err := deployments.Create(ctx, desired, metav1.CreateOptions{}); err != nil {
			return cloud.ResourceHandle{}, submitError(spec.Name, err)
		}
	case err != nil:
		return cloud.ResourceHandle{}, submitError(spec.Name, err)
	default:
		logging.Debug(subsystem, "replacing deployment %s/%s", spec.Namespace, spec.Name)
		updated := existing.DeepCopy()
		updated.Labels = desired.Labels
		updated.Annotations = mergeAnnotations(updated.Annotations, desired.Annotations)
		updated.Spec.Replicas = desired.Spec.Replicas
		updated.Spec.Template = desired.Spec.Template
		if _, err := deployments.Update(ctx, updated, metav1.UpdateOptions{}); err != nil {
			return cloud.ResourceHandle{}, submitError(spec.Name, err)
		}
	}

	if err := d.submitService(ctx, spec); err != nil {
		return cloud.ResourceHandle{}, submitError(spec.Name, err)
	}

	handle := cloud.ResourceHandle{
		ID:          cloud.UnitID(spec.Namespace, spec.Name),
		Name:        spec.Name,
		Namespace:   spec.Namespace,
		EndpointURL: endpointURL(spec.Namespace, spec.Name),
	}
	if current, err := deployments.Get(ctx, spec.Name, metav1.GetOptions{}); err == nil {
		handle.Revision = current.Annotations[revisionAnnoKey]
	}
	return handle, nil
}

func (d *Driver) submitService(ctx context.Context, spec cloud.ServiceSpec) error {
	desired := buildService(spec)
	services := d.client.CoreV1().Services(spec.Namespace)

	existing, err := services.Get(ctx, spec.Name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		_, err := services.Create(ctx, desired, metav1.CreateOptions{})
		return err
	}
	if err != nil {
		return err
	}
	updated := existing.DeepCopy()
	updated.Labels = desired.Labels
	updated.Annotations = mergeAnnotations(updated.Annotations, desired.Annotations)
	updated.Spec.Selector = desired.Spec.Selector
	updated.Spec.Ports = desired.Spec.Ports
	_, err = services.Update(ctx, updated, metav1.UpdateOptions{})
	return err
}

// Describe reads the unit's Deployment status fresh.
func (d *Driver) Describe(ctx context.Context, id string) (cloud.ResourceStatus, error) {
	namespace, name, err := cloud.SplitID(id)
	if err != nil {
		return cloud.ResourceStatus{}, err
	}
	dep, err := d.client.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return cloud.ResourceStatus{}, &cloud.NotFoundError{Kind: "unit", ID: id}
	}
	if err != nil {
		return cloud.ResourceStatus{}, fmt.Errorf("describing %s: %w", id, err)
	}

	var desired int32 = 1
	if dep.Spec.Replicas != nil {
		desired = *dep.Spec.Replicas
	}

	status := cloud.ResourceStatus{
		EndpointURL:    endpointURL(namespace, name),
		Revision:       dep.Annotations[revisionAnnoKey],
		ReadyInstances: int(dep.Status.ReadyReplicas),
		TotalInstances: int(desired),
		Frozen:         dep.Annotations[frozenAnno] == "true",
	}

	observed := dep.Status.ObservedGeneration >= dep.Generation
	replicasReady := dep.Status.ReadyReplicas >= desired && dep.Status.UpdatedReplicas >= desired
	status.Ready = observed && replicasReady && desired > 0
	if !status.Ready {
		status.Reason = notReadyReason(dep, desired)
	}
	return status, nil
}

// Freeze scales the unit to zero and marks its ingress internal-only.
func (d *Driver) Freeze(ctx context.Context, id string) error {
	namespace, name, err := cloud.SplitID(id)
	if err != nil {
		return err
	}
	deployments := d.client.AppsV1().Deployments(namespace)
	dep, err := deployments.Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return &cloud.NotFoundError{Kind: "unit", ID: id}
	}
	if err != nil {
		return fmt.Errorf("freezing %s: %w", id, err)
	}

	frozen := dep.DeepCopy()
	zero := int32(0)
	frozen.Spec.Replicas = &zero
	if frozen.Annotations == nil {
		frozen.Annotations = map[string]string{}
	}
	frozen.Annotations[frozenAnno] = "true"
	if _, err := deployments.Update(ctx, frozen, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("freezing %s: %w", id, err)
	}

	services := d.client.CoreV1().Services(namespace)
	svc, err := services.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("freezing %s: %w", id, err)
	}
	locked := svc.DeepCopy()
	if locked.Annotations == nil {
		locked.Annotations = map[string]string{}
	}
	locked.Annotations[ingressScopeAnno] = "internal"
	if _, err := services.Update(ctx, locked, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("freezing %s: %w", id, err)
	}
	logging.Warn(subsystem, "unit %s frozen: scaled to zero, ingress internal-only", id)
	return nil
}

func buildDeployment(spec cloud.ServiceSpec) *appsv1.Deployment {
	replicas := int32(spec.MinInstances)
	if replicas < 1 {
		replicas = 1
	}

	container := corev1.Container{
		Name:  spec.Name,
		Image: spec.Image,
		Ports: []corev1.ContainerPort{{Name: "http", ContainerPort: containerPort}},
		Env:   sortedEnv(spec.Env),
		ReadinessProbe: &corev1.Probe{
			ProbeHandler: corev1.ProbeHandler{
				HTTPGet: &corev1.HTTPGetAction{
					Path: spec.HealthPath,
					Port: intstr.FromInt32(containerPort),
				},
			},
			PeriodSeconds: 5,
		},
	}
	requests := corev1.ResourceList{}
	if !spec.CPU.IsZero() {
		requests[corev1.ResourceCPU] = spec.CPU
	}
	if !spec.Memory.IsZero() {
		requests[corev1.ResourceMemory] = spec.Memory
	}
	if len(requests) > 0 {
		container.Resources = corev1.ResourceRequirements{Requests: requests}
	}

	podLabels := mergeLabels(spec.Labels, map[string]string{"app": spec.Name})

	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      spec.Name,
			Namespace: spec.Namespace,
			Labels:    mergeLabels(spec.Labels, map[string]string{managedByLabelKey: managedByValue}),
			Annotations: map[string]string{
				minInstancesAnno: fmt.Sprintf("%d", spec.MinInstances),
				maxInstancesAnno: fmt.Sprintf("%d", spec.MaxInstances),
				concurrencyAnno:  fmt.Sprintf("%d", spec.Concurrency),
			},
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{"app": spec.Name}},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: podLabels},
				Spec: corev1.PodSpec{
					ServiceAccountName: spec.RuntimeAccount,
					Containers:         []corev1.Container{container},
				},
			},
		},
	}
}

func buildService(spec cloud.ServiceSpec) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      spec.Name,
			Namespace: spec.Namespace,
			Labels:    mergeLabels(spec.Labels, map[string]string{managedByLabelKey: managedByValue}),
		},
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeClusterIP,
			Selector: map[string]string{"app": spec.Name},
			Ports: []corev1.ServicePort{{
				Name:       "http",
				Port:       servicePort,
				TargetPort: intstr.FromInt32(containerPort),
			}},
		},
	}
}

func endpointURL(namespace, name string) string {
	return fmt.Sprintf("http://%s.%s.%s", name, namespace, endpointSuffix)
}

func notReadyReason(dep *appsv1.Deployment, desired int32) string {
	for _, cond := range dep.Status.Conditions {
		if cond.Type == appsv1.DeploymentProgressing && cond.Status == corev1.ConditionFalse {
			return cond.Message
		}
	}
	if dep.Status.ObservedGeneration < dep.Generation {
		return "generation not yet observed"
	}
	return fmt.Sprintf("%d/%d replicas ready", dep.Status.ReadyReplicas, desired)
}

func submitError(service string, err error) error {
	return &cloud.DeployError{
		Service: service,
		Code:    string(apierrors.ReasonForError(err)),
		Message: err.Error(),
	}
}

func sortedEnv(env map[string]string) []corev1.EnvVar {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]corev1.EnvVar, 0, len(keys))
	for _, k := range keys {
		out = append(out, corev1.EnvVar{Name: k, Value: env[k]})
	}
	return out
}

func mergeLabels(base, extra map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

func mergeAnnotations(existing, desired map[string]string) map[string]string {
	merged := make(map[string]string, len(existing)+len(desired))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range desired {
		merged[k] = v
	}
	// A fresh submit clears any previous freeze.
	delete(merged, frozenAnno)
	return merged
}
