// Package orchestrator drives a phased rollout of services onto the control
// plane and reconciles their access bindings.
//
// The scheduler walks the registry's phases in strictly ascending order. A
// phase begins only after every unit of the previous phase has reached a
// terminal status, and within a phase at most K units run at once. The first
// failure in a phase stops further launches; units already in flight finish,
// and later phases are never attempted.
//
// # Unit pipeline
//
// Each unit moves through a fixed sequence, recorded step by step in the
// manifest recorder:
//
//  1. Render: resolve the service descriptor against its template and the
//     environment into a concrete spec. Failures never touch the control plane.
//  2. Submit: create or replace the unit. Replace-by-name is idempotent.
//  3. Await readiness: poll Describe under a fixed-interval backoff until the
//     unit reports ready or the retry policy is exhausted.
//  4. Health probe: one authenticated GET against the unit's health endpoint.
//  5. Reconcile access: list current bindings, grant only the missing ones.
//     Bindings are never revoked here.
//
// A unit that fails after Submit is rolled back to its previous revision when
// one exists; a first deploy has nothing to roll back to and stays Failed
// with a warning.
//
// # Gateway promotion
//
// Promotion is the multi-step mutation in this package, so it runs under a
// saga: every applied step registers an undo, and on error the undos run in
// reverse order. Undo failures are collected and surfaced as warnings, never
// raised before the remaining undos have been attempted.
//
// # Dry run
//
// With DryRun set the scheduler renders and validates every selected unit,
// records DryRun or Failed outcomes, and performs no control-plane call at
// all.
//
// # Usage
//
//	sched := orchestrator.NewScheduler(orchestrator.Config{
//	    Plane:       driver,
//	    Registry:    reg,
//	    Environment: env,
//	    Recorder:    recorder,
//	    Reporter:    reporter,
//	    Options:     orchestrator.Options{Concurrency: 2},
//	})
//	m, failed, err := sched.Run(ctx)
package orchestrator
