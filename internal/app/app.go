// Package app encapsulates the application's dependencies, configuration,
// and lifecycle: it loads the grid, registers modules, wires the graph,
// scheduler, allocator, recovery controller, and engine together, and
// runs one execution.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/vk/taskgridgo/internal/config"
	"github.com/vk/taskgridgo/internal/ctxlog"
	"github.com/vk/taskgridgo/internal/engine"
	"github.com/vk/taskgridgo/internal/registry"
)

// AppConfig holds all the necessary configuration for an App instance to run.
type AppConfig struct {
	GridPath   string
	StatusPort int
	LogFormat  string
	LogLevel   string
}

// App encapsulates the application's dependencies and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	registry *registry.Registry
	config   *config.Model

	mu     sync.Mutex
	engine *engine.Engine
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and
// registry. A failure to load or validate configuration is a fatal
// startup error and panics; main recovers it into a clean exit.
func NewApp(outW io.Writer, appConfig *AppConfig, loader config.Loader, modules ...registry.Module) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	cfgModel, err := loader.Load(ctx, appConfig.GridPath)
	if err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	logger.Debug("Configuration loaded and translated into unified model.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(modules), "kinds", reg.Kinds())

	if err := reg.Validate(cfgModel.Tasks); err != nil {
		panic(fmt.Errorf("grid references unregistered kinds: %w", err))
	}
	logger.Debug("Registry validation passed.")

	return &App{
		outW:     outW,
		logger:   logger,
		registry: reg,
		config:   cfgModel,
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Engine returns the engine of the in-flight run, or nil before Run
// builds one.
func (a *App) Engine() *engine.Engine {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.engine
}

func (a *App) setEngine(e *engine.Engine) {
	a.mu.Lock()
	a.engine = e
	a.mu.Unlock()
}
