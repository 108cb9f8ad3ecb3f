package kube

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"gopkg.in/yaml.v3"

	"rolloutctl/internal/cloud"
)

// Routing documents are ConfigMaps carrying a routes.yaml payload; the
// environment gateway is an Ingress whose route-config annotation names the
// document it serves.

const routesKey = "routes.yaml"

// CreateRouteConfig materializes a routing document. Re-creating an existing
// document replaces its payload.
func (d *Driver) CreateRouteConfig(ctx context.Context, rc cloud.RouteConfig) (string, error) {
	payload, err := yaml.Marshal(rc.Routes)
	if err != nil {
		return "", fmt.Errorf("encoding route config %s: %w", rc.Name, err)
	}
	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      rc.Name,
			Namespace: rc.Namespace,
			Labels:    map[string]string{managedByLabelKey: managedByValue},
		},
		Data: map[string]string{routesKey: string(payload)},
	}

	configMaps := d.client.CoreV1().ConfigMaps(rc.Namespace)
	_, err = configMaps.Create(ctx, cm, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		existing, getErr := configMaps.Get(ctx, rc.Name, metav1.GetOptions{})
		if getErr != nil {
			return "", fmt.Errorf("replacing route config %s: %w", rc.Name, getErr)
		}
		updated := existing.DeepCopy()
		updated.Labels = cm.Labels
		updated.Data = cm.Data
		_, err = configMaps.Update(ctx, updated, metav1.UpdateOptions{})
	}
	if err != nil {
		return "", fmt.Errorf("creating route config %s: %w", rc.Name, err)
	}
	return rc.Name, nil
}

// DeleteRouteConfig removes a routing document. A missing document is not an
// error; compensations must be replay-safe.
func (d *Driver) DeleteRouteConfig(ctx context.Context, namespace, name string) error {
	err := d.client.CoreV1().ConfigMaps(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting route config %s/%s: %w", namespace, name, err)
	}
	return nil
}

// GatewayTarget reads which routing document the gateway currently serves.
func (d *Driver) GatewayTarget(ctx context.Context, namespace, gateway string) (string, error) {
	ing, err := d.client.NetworkingV1().Ingresses(namespace).Get(ctx, gateway, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return "", &cloud.NotFoundError{Kind: "gateway", ID: namespace + "/" + gateway}
	}
	if err != nil {
		return "", fmt.Errorf("reading gateway %s/%s: %w", namespace, gateway, err)
	}
	return ing.Annotations[routeConfigAnno], nil
}

// UpdateGateway points the gateway at a routing document.
func (d *Driver) UpdateGateway(ctx context.Context, namespace, gateway, target string) error {
	ingresses := d.client.NetworkingV1().Ingresses(namespace)
	ing, err := ingresses.Get(ctx, gateway, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return &cloud.NotFoundError{Kind: "gateway", ID: namespace + "/" + gateway}
	}
	if err != nil {
		return fmt.Errorf("updating gateway %s/%s: %w", namespace, gateway, err)
	}
	updated := ing.DeepCopy()
	if updated.Annotations == nil {
		updated.Annotations = map[string]string{}
	}
	updated.Annotations[routeConfigAnno] = target
	if _, err := ingresses.Update(ctx, updated, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("updating gateway %s/%s: %w", namespace, gateway, err)
	}
	return nil
}
