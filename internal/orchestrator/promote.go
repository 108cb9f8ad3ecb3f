package orchestrator

import (
	"context"
	"fmt"

	"rolloutctl/internal/cloud"
	"rolloutctl/internal/config"
	"rolloutctl/internal/manifest"
	"rolloutctl/internal/reporting"
	"rolloutctl/pkg/logging"
)

// GatewayPromoter flips the environment's gateway to a freshly written route
// config. The whole operation runs under a saga: a new route config that
// never made it to the gateway is deleted again, and a half-applied gateway
// update is restored to its previous target.
type GatewayPromoter struct {
	plane    cloud.ControlPlane
	env      config.Environment
	reporter *reporting.Reporter
}

// NewGatewayPromoter creates a promoter for one environment.
func NewGatewayPromoter(plane cloud.ControlPlane, env config.Environment, reporter *reporting.Reporter) *GatewayPromoter {
	return &GatewayPromoter{plane: plane, env: env, reporter: reporter}
}

// Promote writes the route config, repoints the gateway at it and verifies
// the switch. On any failure every applied step is compensated in reverse
// order before the error returns; compensation failures are reported as
// warnings and never mask the original error. Returns the name of the route
// config now serving.
func (p *GatewayPromoter) Promote(ctx context.Context, runID string, routes map[string]string) (string, error) {
	gateway := p.env.Gateway.Name
	if gateway == "" {
		return "", &cloud.ConfigError{Service: p.env.Name, Field: "gateway", Reason: "environment defines no gateway"}
	}
	if len(routes) == 0 {
		return "", &cloud.ConfigError{Service: p.env.Name, Field: "routes", Reason: "no deployed endpoints to promote"}
	}

	namespace := p.env.EffectiveNamespace()
	saga := NewSaga(p.reporter)

	rc := cloud.RouteConfig{
		Name:      routeConfigName(gateway, runID),
		Namespace: namespace,
		Routes:    routes,
	}

	created, err := p.plane.CreateRouteConfig(ctx, rc)
	if err != nil {
		return "", fmt.Errorf("creating route config %s: %w", rc.Name, err)
	}
	saga.Track(cloud.SagaResource{Kind: "routeconfig", ID: cloud.UnitID(namespace, created)}, func(ctx context.Context) error {
		return p.plane.DeleteRouteConfig(ctx, namespace, created)
	})
	logging.Info("promote", "Route config %s written with %d routes", created, len(routes))

	previous, err := p.plane.GatewayTarget(ctx, namespace, gateway)
	if err != nil {
		saga.Compensate(ctx)
		return "", fmt.Errorf("reading gateway %s: %w", gateway, err)
	}

	if err := p.plane.UpdateGateway(ctx, namespace, gateway, created); err != nil {
		saga.Compensate(ctx)
		return "", fmt.Errorf("updating gateway %s: %w", gateway, err)
	}
	saga.Track(cloud.SagaResource{Kind: "gateway", ID: cloud.UnitID(namespace, gateway)}, func(ctx context.Context) error {
		return p.plane.UpdateGateway(ctx, namespace, gateway, previous)
	})

	target, err := p.plane.GatewayTarget(ctx, namespace, gateway)
	if err != nil {
		saga.Compensate(ctx)
		return "", fmt.Errorf("verifying gateway %s: %w", gateway, err)
	}
	if target != created {
		saga.Compensate(ctx)
		return "", fmt.Errorf("gateway %s serves %q after update, want %q", gateway, target, created)
	}

	logging.Info("promote", "Gateway %s now serves %s (was %q)", gateway, created, previous)
	return created, nil
}

// RoutesFromOutcomes builds the gateway routing table from a run's succeeded
// units: one path prefix per service, pointing at its endpoint.
func RoutesFromOutcomes(outcomes []manifest.Outcome) map[string]string {
	routes := make(map[string]string)
	for _, o := range outcomes {
		if o.Status != manifest.StatusSucceeded || o.EndpointURL == "" {
			continue
		}
		routes["/"+o.Service] = o.EndpointURL
	}
	return routes
}

func routeConfigName(gateway, runID string) string {
	if len(runID) > 8 {
		runID = runID[:8]
	}
	return fmt.Sprintf("%s-routes-%s", gateway, runID)
}
