// Package tui is the live watch dashboard for a rollout run.
//
// The dashboard is a Bubbletea program that renders three regions: a header
// with the run's environment, ID and overall state, a unit table showing
// every selected service with its phase, status, health and endpoint, and a
// bounded activity log fed by the logging channel.
//
// The rollout itself runs inside a tea command. The model never reaches into
// the scheduler; it polls the manifest recorder for outcome snapshots on a
// fixed interval and receives a single completion message when the run ends.
// Pressing q during a run cancels it and lets in-flight units finish;
// pressing q again, or after completion, closes the dashboard.
//
// # Usage
//
//	ctx, cancel := context.WithCancel(context.Background())
//	err := tui.Run(tui.Config{
//		Environment: env.Name,
//		RunID:       recorder.RunID(),
//		Recorder:    recorder,
//		Logs:        logCh,
//		Start:       func() (int, error) { return runRollout(ctx) },
//		Cancel:      cancel,
//	})
package tui
