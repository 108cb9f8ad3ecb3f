package kube_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"rolloutctl/internal/cloud"
	"rolloutctl/internal/cloud/kube"
)

func replicaSetAt(revision, image string) *appsv1.ReplicaSet {
	return &appsv1.ReplicaSet{
		ObjectMeta: metav1.ObjectMeta{
			Name:        "billing-api-" + revision,
			Namespace:   "staging-apps",
			Labels:      map[string]string{"app": "billing-api", "pod-template-hash": "h" + revision},
			Annotations: map[string]string{"deployment.kubernetes.io/revision": revision},
		},
		Spec: appsv1.ReplicaSetSpec{
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{"app": "billing-api", "pod-template-hash": "h" + revision},
				},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{Name: "billing-api", Image: image}},
				},
			},
		},
	}
}

func seededDriver(t *testing.T, revisions ...*appsv1.ReplicaSet) (*kube.Driver, *fake.Clientset) {
	t.Helper()
	clientset := fake.NewSimpleClientset()
	driver := kube.NewDriverWithClient(clientset)
	_, err := driver.Submit(context.Background(), specFixture())
	require.NoError(t, err)
	for _, rs := range revisions {
		_, err := clientset.AppsV1().ReplicaSets("staging-apps").Create(context.Background(), rs, metav1.CreateOptions{})
		require.NoError(t, err)
	}
	return driver, clientset
}

func TestPreviousRevision(t *testing.T) {
	driver, _ := seededDriver(t,
		replicaSetAt("1", "registry.example.com/billing-api:1.3.0"),
		replicaSetAt("2", "registry.example.com/billing-api:1.4.0"),
	)

	previous, err := driver.PreviousRevision(context.Background(), "staging-apps/billing-api")
	require.NoError(t, err)
	assert.Equal(t, "1", previous)
}

func TestPreviousRevisionFirstDeploy(t *testing.T) {
	driver, _ := seededDriver(t, replicaSetAt("1", "registry.example.com/billing-api:1.4.0"))

	_, err := driver.PreviousRevision(context.Background(), "staging-apps/billing-api")
	assert.ErrorIs(t, err, cloud.ErrNoPreviousRevision)
}

func TestRouteTrafficRestoresTemplate(t *testing.T) {
	driver, clientset := seededDriver(t,
		replicaSetAt("1", "registry.example.com/billing-api:1.3.0"),
		replicaSetAt("2", "registry.example.com/billing-api:1.4.0"),
	)
	ctx := context.Background()

	require.NoError(t, driver.RouteTraffic(ctx, "staging-apps/billing-api", "1"))

	dep, err := clientset.AppsV1().Deployments("staging-apps").Get(ctx, "billing-api", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "registry.example.com/billing-api:1.3.0", dep.Spec.Template.Spec.Containers[0].Image)
	// The hash label belongs to the ReplicaSet, not the restored template.
	assert.NotContains(t, dep.Spec.Template.Labels, "pod-template-hash")
	assert.Contains(t, dep.Annotations, "rollout.example.com/rolled-back-from")
}

func TestRouteTrafficUnknownRevision(t *testing.T) {
	driver, _ := seededDriver(t, replicaSetAt("1", "registry.example.com/billing-api:1.4.0"))

	err := driver.RouteTraffic(context.Background(), "staging-apps/billing-api", "9")
	var notFound *cloud.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "revision", notFound.Kind)
}
