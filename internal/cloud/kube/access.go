package kube

import (
	"context"
	"fmt"
	"strings"

	rbacv1 "k8s.io/api/rbac/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"

	"rolloutctl/internal/cloud"
)

// Access bindings are RoleBindings labeled with the unit they belong to.
// RoleRef names follow rollout-<role>; bindings with foreign role refs are
// ignored rather than surfaced.

const roleRefPrefix = "rollout-"

// ListBindings returns the unit's bindings, read fresh.
func (d *Driver) ListBindings(ctx context.Context, id string) ([]cloud.AccessBinding, error) {
	namespace, name, err := cloud.SplitID(id)
	if err != nil {
		return nil, err
	}
	selector := labels.Set{unitLabelKey: name}.String()
	list, err := d.client.RbacV1().RoleBindings(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, fmt.Errorf("listing bindings of %s: %w", id, err)
	}

	var bindings []cloud.AccessBinding
	for _, rb := range list.Items {
		role, ok := roleFromRef(rb.RoleRef)
		if !ok {
			continue
		}
		for _, subject := range rb.Subjects {
			principal, ok := principalFromSubject(subject)
			if !ok {
				continue
			}
			bindings = append(bindings, cloud.AccessBinding{Principal: principal, Role: role})
		}
	}
	return bindings, nil
}

// AddBinding grants one binding. An already existing RoleBinding is treated
// as success so replays stay idempotent.
func (d *Driver) AddBinding(ctx context.Context, id string, binding cloud.AccessBinding) error {
	namespace, name, err := cloud.SplitID(id)
	if err != nil {
		return err
	}
	subject, err := subjectFromPrincipal(binding.Principal, namespace)
	if err != nil {
		return err
	}

	rb := &rbacv1.RoleBinding{
		ObjectMeta: metav1.ObjectMeta{
			Name:      bindingName(name, binding),
			Namespace: namespace,
			Labels: map[string]string{
				unitLabelKey:      name,
				managedByLabelKey: managedByValue,
			},
		},
		Subjects: []rbacv1.Subject{subject},
		RoleRef: rbacv1.RoleRef{
			APIGroup: rbacv1.GroupName,
			Kind:     "Role",
			Name:     roleRefPrefix + string(binding.Role),
		},
	}

	_, err = d.client.RbacV1().RoleBindings(namespace).Create(ctx, rb, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("granting %s %s on %s: %w", binding.Role, binding.Principal, id, err)
	}
	return nil
}

// bindingName builds a deterministic DNS-safe RoleBinding name.
func bindingName(unit string, binding cloud.AccessBinding) string {
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, string(binding.Principal))
	name := fmt.Sprintf("%s-%s-%s", unit, binding.Role, sanitized)
	if len(name) > 63 {
		name = name[:63]
	}
	return strings.Trim(name, "-")
}

func roleFromRef(ref rbacv1.RoleRef) (cloud.Role, bool) {
	if !strings.HasPrefix(ref.Name, roleRefPrefix) {
		return "", false
	}
	role, err := cloud.ParseRole(strings.TrimPrefix(ref.Name, roleRefPrefix))
	if err != nil {
		return "", false
	}
	return role, true
}

func principalFromSubject(subject rbacv1.Subject) (cloud.Principal, bool) {
	switch subject.Kind {
	case rbacv1.ServiceAccountKind:
		return cloud.Principal("serviceAccount:" + subject.Name), true
	case rbacv1.GroupKind:
		return cloud.Principal("group:" + subject.Name), true
	case rbacv1.UserKind:
		return cloud.Principal("user:" + subject.Name), true
	default:
		return "", false
	}
}

func subjectFromPrincipal(principal cloud.Principal, namespace string) (rbacv1.Subject, error) {
	kind, name, found := strings.Cut(string(principal), ":")
	if !found || name == "" {
		return rbacv1.Subject{}, fmt.Errorf("malformed principal %q (want kind:name)", principal)
	}
	switch kind {
	case "serviceAccount":
		return rbacv1.Subject{Kind: rbacv1.ServiceAccountKind, Name: name, Namespace: namespace}, nil
	case "group":
		return rbacv1.Subject{Kind: rbacv1.GroupKind, APIGroup: rbacv1.GroupName, Name: name}, nil
	case "user":
		return rbacv1.Subject{Kind: rbacv1.UserKind, APIGroup: rbacv1.GroupName, Name: name}, nil
	default:
		return rbacv1.Subject{}, fmt.Errorf("unknown principal kind %q in %q", kind, principal)
	}
}
