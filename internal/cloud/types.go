package cloud

import (
	"context"
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/api/resource"
)

// Role classifies what an access binding lets a principal do.
type Role string

const (
	RoleInvoker Role = "invoker"
	RoleViewer  Role = "viewer"
	RoleAdmin   Role = "admin"
)

// ParseRole validates a catalog role string. The empty string maps to
// RoleInvoker, the overwhelmingly common grant.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return RoleInvoker, nil
	case RoleInvoker:
		return RoleInvoker, nil
	case RoleViewer:
		return RoleViewer, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("unknown role %q (want invoker, viewer or admin)", s)
	}
}

// Principal identifies who a binding grants access to, in the catalog's
// prefixed form, e.g. "serviceAccount:frontend" or "group:oncall".
type Principal string

// AccessBinding grants one principal one role on a deployed unit.
type AccessBinding struct {
	Principal Principal `json:"principal"`
	Role      Role      `json:"role"`
}

// ServiceSpec is a fully rendered, validated description of one deployable
// unit. It is the only input Submit accepts; nothing in it is resolved or
// defaulted further down.
type ServiceSpec struct {
	Name           string
	Namespace      string
	Image          string
	RuntimeAccount string
	MinInstances   int
	MaxInstances   int
	Concurrency    int
	CPU            resource.Quantity
	Memory         resource.Quantity
	Env            map[string]string
	HealthPath     string
	Labels         map[string]string
}

// ResourceHandle identifies a submitted unit.
type ResourceHandle struct {
	ID          string // "namespace/name"
	Name        string
	Namespace   string
	EndpointURL string
	Revision    string // revision this submit created, when the driver knows it
}

// ResourceStatus is a point-in-time view of a deployed unit, read fresh from
// the control plane on every call.
type ResourceStatus struct {
	Ready          bool
	Reason         string // why not ready, when Ready is false
	EndpointURL    string
	Revision       string
	ReadyInstances int
	TotalInstances int
	Frozen         bool
}

// RouteConfig is the gateway routing document promoted at the end of a
// rollout: path prefixes mapped to unit endpoints.
type RouteConfig struct {
	Name      string
	Namespace string
	Routes    map[string]string
}

// SagaResource names an external resource a saga step created or mutated,
// for compensation bookkeeping and operator-facing logs.
type SagaResource struct {
	Kind string
	ID   string
}

func (r SagaResource) String() string {
	return r.Kind + "/" + r.ID
}

// UnitID builds the driver-scoped identifier for a unit.
func UnitID(namespace, name string) string {
	return namespace + "/" + name
}

// SplitID splits a unit identifier into namespace and name.
func SplitID(id string) (namespace, name string, err error) {
	parts := strings.SplitN(id, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed unit id %q (want namespace/name)", id)
	}
	return parts[0], parts[1], nil
}

// ControlPlane is the client boundary to the hosting platform. Every method
// that mutates or reads remote state takes a context; implementations must
// not cache reads between calls.
type ControlPlane interface {
	// Submit creates or replaces the unit described by spec. Resubmitting
	// the same name and namespace updates in place.
	Submit(ctx context.Context, spec ServiceSpec) (ResourceHandle, error)

	// Describe reads the unit's current status.
	Describe(ctx context.Context, id string) (ResourceStatus, error)

	// ListBindings returns the unit's current access bindings.
	ListBindings(ctx context.Context, id string) ([]AccessBinding, error)

	// AddBinding grants one binding. Adding an existing binding is a no-op
	// on the remote side but callers are expected to diff first.
	AddBinding(ctx context.Context, id string, binding AccessBinding) error

	// PreviousRevision returns the last revision before the current one,
	// or ErrNoPreviousRevision when the unit has no rollback target.
	PreviousRevision(ctx context.Context, id string) (string, error)

	// RouteTraffic points the unit's serving path at the given revision.
	RouteTraffic(ctx context.Context, id string, revision string) error

	// Freeze scales the unit to zero and restricts its ingress to
	// internal traffic.
	Freeze(ctx context.Context, id string) error

	// CreateRouteConfig materializes a routing document and returns its name.
	CreateRouteConfig(ctx context.Context, rc RouteConfig) (string, error)

	// DeleteRouteConfig removes a routing document.
	DeleteRouteConfig(ctx context.Context, namespace, name string) error

	// GatewayTarget reads which routing document the gateway serves.
	GatewayTarget(ctx context.Context, namespace, gateway string) (string, error)

	// UpdateGateway points the gateway at a routing document.
	UpdateGateway(ctx context.Context, namespace, gateway, target string) error
}
