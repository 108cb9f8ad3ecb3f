// Package config provides configuration management for rolloutctl.
//
// This package implements a layered configuration system. The deployment
// catalog and tool settings are loaded from multiple YAML sources and merged
// in a specific order, with later sources overriding earlier ones.
//
// # Configuration Layers
//
// Configuration is loaded and merged in the following order:
//
//  1. Default Configuration (embedded in binary)
//     - Tool settings only; the catalog starts empty
//
//  2. User Configuration (~/.config/rolloutctl/config.yaml)
//     - User-specific settings that apply to all projects
//
//  3. Project Configuration (./.rolloutctl/config.yaml)
//     - The usual home of the catalog, shared via version control
//
// Catalog entries (environments, templates, services) merge by name: a
// same-named entry in a later layer replaces the earlier one wholesale.
//
// # Configuration Structure
//
//	globalSettings:
//	  logLevel: info
//	  manifestDir: manifests
//	  healthTimeoutSeconds: 10
//
//	environments:
//	  - name: staging
//	    namespace: staging-apps
//	    healthTokenVar: ROLLOUT_HEALTH_TOKEN
//	    readiness:
//	      maxAttempts: 30
//	      intervalSeconds: 2
//	      deadlineSeconds: 300
//	    gateway:
//	      name: edge
//	      host: staging.example.com
//	    overrides:
//	      region: eu-west-1
//
//	templates:
//	  - name: web
//	    vars:
//	      region: eu-central-1
//	    env:
//	      HTTP_PORT: "8080"
//	      REGION: "${region}"
//
//	services:
//	  - name: billing-api
//	    phase: 1
//	    image: registry.example.com/billing-api:1.4.0
//	    template: web
//	    runtimeAccount: billing-runtime
//	    scaling:
//	      minInstances: 1
//	      maxInstances: 4
//	      concurrency: 80
//	      cpu: 500m
//	      memory: 256Mi
//	    invokers:
//	      - principal: serviceAccount:frontend
//	      - principal: group:oncall
//	        role: viewer
//
// # Placeholder Resolution
//
// Template env values may reference ${var}. The renderer resolves each
// reference from, in order of precedence, the service's overrides, the
// environment's overrides, then the template's vars. An unresolved
// placeholder fails the render before anything is deployed.
package config
