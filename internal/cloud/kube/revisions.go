package kube

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"rolloutctl/internal/cloud"
	"rolloutctl/pkg/logging"
)

// Revisions are the ReplicaSets the Deployment controller keeps around;
// their revision annotation orders them.

// PreviousRevision returns the revision deployed immediately before the
// current one, or cloud.ErrNoPreviousRevision when this is the first.
func (d *Driver) PreviousRevision(ctx context.Context, id string) (string, error) {
	history, err := d.revisionHistory(ctx, id)
	if err != nil {
		return "", err
	}
	if len(history) < 2 {
		return "", cloud.ErrNoPreviousRevision
	}
	return strconv.FormatInt(history[1].number, 10), nil
}

// RouteTraffic restores the pod template of the ReplicaSet at the given
// revision, the same mechanism a rollout undo uses.
func (d *Driver) RouteTraffic(ctx context.Context, id string, revision string) error {
	namespace, name, err := cloud.SplitID(id)
	if err != nil {
		return err
	}
	history, err := d.revisionHistory(ctx, id)
	if err != nil {
		return err
	}

	var target *appsv1.ReplicaSet
	for _, entry := range history {
		if strconv.FormatInt(entry.number, 10) == revision {
			target = entry.rs
			break
		}
	}
	if target == nil {
		return &cloud.NotFoundError{Kind: "revision", ID: id + "@" + revision}
	}

	deployments := d.client.AppsV1().Deployments(namespace)
	dep, err := deployments.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("routing %s to revision %s: %w", id, revision, err)
	}

	restored := dep.DeepCopy()
	template := target.Spec.Template.DeepCopy()
	delete(template.Labels, appsv1.DefaultDeploymentUniqueLabelKey)
	restored.Spec.Template = *template
	if restored.Annotations == nil {
		restored.Annotations = map[string]string{}
	}
	restored.Annotations[rolledBackFromAnno] = dep.Annotations[revisionAnnoKey]

	if _, err := deployments.Update(ctx, restored, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("routing %s to revision %s: %w", id, revision, err)
	}
	logging.Info(subsystem, "unit %s routed back to revision %s", id, revision)
	return nil
}

type revisionEntry struct {
	number int64
	rs     *appsv1.ReplicaSet
}

// revisionHistory lists the unit's ReplicaSets newest-first.
func (d *Driver) revisionHistory(ctx context.Context, id string) ([]revisionEntry, error) {
	namespace, name, err := cloud.SplitID(id)
	if err != nil {
		return nil, err
	}
	dep, err := d.client.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, &cloud.NotFoundError{Kind: "unit", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("reading revision history of %s: %w", id, err)
	}

	selector, err := metav1.LabelSelectorAsSelector(dep.Spec.Selector)
	if err != nil {
		return nil, fmt.Errorf("reading revision history of %s: %w", id, err)
	}
	rsList, err := d.client.AppsV1().ReplicaSets(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector.String()})
	if err != nil {
		return nil, fmt.Errorf("reading revision history of %s: %w", id, err)
	}

	history := make([]revisionEntry, 0, len(rsList.Items))
	for i := range rsList.Items {
		rs := &rsList.Items[i]
		raw, ok := rs.Annotations[revisionAnnoKey]
		if !ok {
			continue
		}
		number, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		history = append(history, revisionEntry{number: number, rs: rs})
	}
	sort.Slice(history, func(i, j int) bool { return history[i].number > history[j].number })
	return history, nil
}
