package kube_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"rolloutctl/internal/cloud"
	"rolloutctl/internal/cloud/kube"
)

func TestRouteConfigLifecycle(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	driver := kube.NewDriverWithClient(clientset)
	ctx := context.Background()

	name, err := driver.CreateRouteConfig(ctx, cloud.RouteConfig{
		Name:      "routes-20260825",
		Namespace: "staging-apps",
		Routes: map[string]string{
			"/billing": "http://billing-api.staging-apps.svc.cluster.local",
			"/ledger":  "http://ledger.staging-apps.svc.cluster.local",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "routes-20260825", name)

	cm, err := clientset.CoreV1().ConfigMaps("staging-apps").Get(ctx, name, metav1.GetOptions{})
	require.NoError(t, err)
	assert.Contains(t, cm.Data["routes.yaml"], "/billing")
	assert.Contains(t, cm.Data["routes.yaml"], "billing-api.staging-apps")

	// Re-creating replaces the payload.
	_, err = driver.CreateRouteConfig(ctx, cloud.RouteConfig{
		Name:      "routes-20260825",
		Namespace: "staging-apps",
		Routes:    map[string]string{"/billing": "http://billing-api.staging-apps.svc.cluster.local"},
	})
	require.NoError(t, err)
	cm, err = clientset.CoreV1().ConfigMaps("staging-apps").Get(ctx, name, metav1.GetOptions{})
	require.NoError(t, err)
	assert.NotContains(t, cm.Data["routes.yaml"], "/ledger")

	require.NoError(t, driver.DeleteRouteConfig(ctx, "staging-apps", name))
	_, err = clientset.CoreV1().ConfigMaps("staging-apps").Get(ctx, name, metav1.GetOptions{})
	assert.Error(t, err)

	// Deleting again stays quiet; compensations replay.
	assert.NoError(t, driver.DeleteRouteConfig(ctx, "staging-apps", name))
}

func TestGatewayTargetRoundTrip(t *testing.T) {
	gateway := &networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{
			Name:        "edge",
			Namespace:   "staging-apps",
			Annotations: map[string]string{"rollout.example.com/route-config": "routes-old"},
		},
	}
	driver := kube.NewDriverWithClient(fake.NewSimpleClientset(gateway))
	ctx := context.Background()

	target, err := driver.GatewayTarget(ctx, "staging-apps", "edge")
	require.NoError(t, err)
	assert.Equal(t, "routes-old", target)

	require.NoError(t, driver.UpdateGateway(ctx, "staging-apps", "edge", "routes-new"))
	target, err = driver.GatewayTarget(ctx, "staging-apps", "edge")
	require.NoError(t, err)
	assert.Equal(t, "routes-new", target)
}

func TestGatewayMissing(t *testing.T) {
	driver := kube.NewDriverWithClient(fake.NewSimpleClientset())

	_, err := driver.GatewayTarget(context.Background(), "staging-apps", "edge")
	var notFound *cloud.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "gateway", notFound.Kind)

	err = driver.UpdateGateway(context.Background(), "staging-apps", "edge", "routes-new")
	require.ErrorAs(t, err, &notFound)
}
