package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vk/taskgridgo/internal/ctxlog"
	"github.com/vk/taskgridgo/internal/engine"
	"github.com/vk/taskgridgo/internal/graph"
	"github.com/vk/taskgridgo/internal/recovery"
	"github.com/vk/taskgridgo/internal/resource"
	"github.com/vk/taskgridgo/internal/scheduler"
)

// Run executes the loaded grid end to end: graph build, planning,
// execution, and the final summary.
func (a *App) Run(ctx context.Context, appConfig *AppConfig) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if appConfig.StatusPort > 0 {
		a.startStatusServer(appConfig.StatusPort)
	}

	if len(a.config.Tasks) == 0 {
		a.logger.Warn("No tasks found in grid, execution not required.")
		return nil
	}

	a.logger.Debug("Building dependency graph from config model...")
	g, err := graph.Build(ctx, a.config.Tasks)
	if err != nil {
		return fmt.Errorf("failed to build dependency graph: %w", err)
	}
	a.logger.Debug("Dependency graph built.", "task_count", g.Len())

	settings := a.config.Settings
	plan, err := scheduler.ComputePlan(ctx, g, settings.Limits, settings.Weights)
	if err != nil {
		return fmt.Errorf("failed to plan execution: %w", err)
	}
	a.logger.Info("📋 Plan computed.",
		"batches", len(plan.Batches),
		"critical_path", plan.CriticalPath,
		"critical_path_length", plan.CriticalPathLength)

	starvation := settings.StarvationRounds
	if starvation < 0 {
		starvation = 0
	}
	alloc := resource.NewAllocator(settings.Limits, starvation)
	ctrl := recovery.NewController(settings.Retry, a.registry.ReplanFunc())
	eng := engine.New(g, plan, alloc, ctrl, a.registry.Executor())
	a.setEngine(eng)

	runCtx, stop := a.watchSignals(ctx, eng)
	defer stop()

	rep, runErr := eng.Run(runCtx)
	fmt.Fprint(a.outW, rep.Summary())
	if runErr != nil {
		return fmt.Errorf("execution failed: %w", runErr)
	}
	return nil
}

// watchSignals installs two-stage interrupt handling: the first SIGINT or
// SIGTERM cancels the run context, which stops admissions but lets
// in-flight tasks finish; a second one hard-cancels them.
func (a *App) watchSignals(ctx context.Context, eng *engine.Engine) (context.Context, func()) {
	runCtx, cancel := context.WithCancel(ctx)
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			a.logger.Warn("Interrupt received, finishing in-flight tasks. Interrupt again to force stop.")
			cancel()
		case <-runCtx.Done():
			return
		}
		select {
		case <-sigCh:
			a.logger.Warn("Second interrupt received, force-stopping running tasks.")
			eng.Cancel(true)
		case <-ctx.Done():
		}
	}()

	return runCtx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}
