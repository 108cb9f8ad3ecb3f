package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"rolloutctl/internal/cloud"
	"rolloutctl/internal/config"
)

// fakePlane is an in-memory cloud.ControlPlane for tests. Each method has a
// function hook; without a hook a permissive default applies. Every call is
// counted and appended to an ordered trace for sequencing assertions.
type fakePlane struct {
	mu sync.Mutex

	submitFunc            func(ctx context.Context, spec cloud.ServiceSpec) (cloud.ResourceHandle, error)
	describeFunc          func(ctx context.Context, id string) (cloud.ResourceStatus, error)
	listBindingsFunc      func(ctx context.Context, id string) ([]cloud.AccessBinding, error)
	addBindingFunc        func(ctx context.Context, id string, binding cloud.AccessBinding) error
	previousRevisionFunc  func(ctx context.Context, id string) (string, error)
	routeTrafficFunc      func(ctx context.Context, id, revision string) error
	freezeFunc            func(ctx context.Context, id string) error
	createRouteConfigFunc func(ctx context.Context, rc cloud.RouteConfig) (string, error)
	deleteRouteConfigFunc func(ctx context.Context, namespace, name string) error
	gatewayTargetFunc     func(ctx context.Context, namespace, gateway string) (string, error)
	updateGatewayFunc     func(ctx context.Context, namespace, gateway, target string) error

	calls          map[string]int
	trace          []string
	bindings       map[string][]cloud.AccessBinding
	gatewayTargets map[string]string
	routeConfigs   map[string]cloud.RouteConfig
}

func newFakePlane() *fakePlane {
	return &fakePlane{
		calls:          make(map[string]int),
		bindings:       make(map[string][]cloud.AccessBinding),
		gatewayTargets: make(map[string]string),
		routeConfigs:   make(map[string]cloud.RouteConfig),
	}
}

func (f *fakePlane) record(method, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	f.trace = append(f.trace, method+":"+id)
}

func (f *fakePlane) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakePlane) callTrace() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.trace...)
}

// mutationCount sums every call that would change control-plane state.
func (f *fakePlane) mutationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, method := range []string{"Submit", "AddBinding", "RouteTraffic", "Freeze", "CreateRouteConfig", "DeleteRouteConfig", "UpdateGateway"} {
		total += f.calls[method]
	}
	return total
}

func (f *fakePlane) Submit(ctx context.Context, spec cloud.ServiceSpec) (cloud.ResourceHandle, error) {
	f.record("Submit", spec.Name)
	if f.submitFunc != nil {
		return f.submitFunc(ctx, spec)
	}
	return cloud.ResourceHandle{
		ID:          cloud.UnitID(spec.Namespace, spec.Name),
		Name:        spec.Name,
		Namespace:   spec.Namespace,
		EndpointURL: fmt.Sprintf("http://%s.%s.svc.cluster.local", spec.Name, spec.Namespace),
		Revision:    "1",
	}, nil
}

func (f *fakePlane) Describe(ctx context.Context, id string) (cloud.ResourceStatus, error) {
	f.record("Describe", id)
	if f.describeFunc != nil {
		return f.describeFunc(ctx, id)
	}
	return cloud.ResourceStatus{Ready: true, Revision: "1", ReadyInstances: 1, TotalInstances: 1}, nil
}

func (f *fakePlane) ListBindings(ctx context.Context, id string) ([]cloud.AccessBinding, error) {
	f.record("ListBindings", id)
	if f.listBindingsFunc != nil {
		return f.listBindingsFunc(ctx, id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]cloud.AccessBinding(nil), f.bindings[id]...), nil
}

func (f *fakePlane) AddBinding(ctx context.Context, id string, binding cloud.AccessBinding) error {
	f.record("AddBinding", id)
	if f.addBindingFunc != nil {
		return f.addBindingFunc(ctx, id, binding)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bindings[id] = append(f.bindings[id], binding)
	return nil
}

func (f *fakePlane) PreviousRevision(ctx context.Context, id string) (string, error) {
	f.record("PreviousRevision", id)
	if f.previousRevisionFunc != nil {
		return f.previousRevisionFunc(ctx, id)
	}
	return "", cloud.ErrNoPreviousRevision
}

func (f *fakePlane) RouteTraffic(ctx context.Context, id, revision string) error {
	f.record("RouteTraffic", id+"@"+revision)
	if f.routeTrafficFunc != nil {
		return f.routeTrafficFunc(ctx, id, revision)
	}
	return nil
}

func (f *fakePlane) Freeze(ctx context.Context, id string) error {
	f.record("Freeze", id)
	if f.freezeFunc != nil {
		return f.freezeFunc(ctx, id)
	}
	return nil
}

func (f *fakePlane) CreateRouteConfig(ctx context.Context, rc cloud.RouteConfig) (string, error) {
	f.record("CreateRouteConfig", rc.Name)
	if f.createRouteConfigFunc != nil {
		return f.createRouteConfigFunc(ctx, rc)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routeConfigs[rc.Name] = rc
	return rc.Name, nil
}

func (f *fakePlane) DeleteRouteConfig(ctx context.Context, namespace, name string) error {
	f.record("DeleteRouteConfig", name)
	if f.deleteRouteConfigFunc != nil {
		return f.deleteRouteConfigFunc(ctx, namespace, name)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.routeConfigs, name)
	return nil
}

func (f *fakePlane) GatewayTarget(ctx context.Context, namespace, gateway string) (string, error) {
	f.record("GatewayTarget", gateway)
	if f.gatewayTargetFunc != nil {
		return f.gatewayTargetFunc(ctx, namespace, gateway)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gatewayTargets[gateway], nil
}

func (f *fakePlane) UpdateGateway(ctx context.Context, namespace, gateway, target string) error {
	f.record("UpdateGateway", gateway+"->"+target)
	if f.updateGatewayFunc != nil {
		return f.updateGatewayFunc(ctx, namespace, gateway, target)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gatewayTargets[gateway] = target
	return nil
}

var _ cloud.ControlPlane = (*fakePlane)(nil)

// testEnv is the environment used across the package's tests. Readiness
// intervals stay at whole seconds here; tests that poll shrink the waiter's
// backoff directly.
func testEnv() config.Environment {
	return config.Environment{
		Name:      "staging",
		Namespace: "staging-apps",
		Readiness: config.RetrySettings{MaxAttempts: 3, IntervalSeconds: 1, DeadlineSeconds: 30},
	}
}

func testCatalog() []config.ServiceDefinition {
	return []config.ServiceDefinition{
		{
			Name:           "auth",
			Phase:          1,
			Image:          "registry.example.com/auth:1.4.0",
			RuntimeAccount: "auth-runtime",
			Scaling:        config.ScalingSettings{MaxInstances: 2},
		},
		{
			Name:           "ledger",
			Phase:          1,
			Image:          "registry.example.com/ledger:0.9.2",
			RuntimeAccount: "ledger-runtime",
			Scaling:        config.ScalingSettings{MaxInstances: 1},
		},
		{
			Name:           "billing-api",
			Phase:          2,
			Image:          "registry.example.com/billing-api:2.1.0",
			RuntimeAccount: "billing-runtime",
			Scaling:        config.ScalingSettings{MaxInstances: 4},
			Invokers: []config.InvokerGrant{
				{Principal: "serviceAccount:frontend", Role: "invoker"},
			},
		},
		{
			Name:           "frontend",
			Phase:          3,
			Image:          "registry.example.com/frontend:5.0.1",
			RuntimeAccount: "frontend-runtime",
			Scaling:        config.ScalingSettings{MaxInstances: 2},
		},
	}
}
