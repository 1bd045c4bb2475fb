package providers

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/km-arc/go-spring/framework/config"
	"github.com/km-arc/go-spring/framework/container"
	"github.com/km-arc/go-spring/framework/routing"
)

// ── ConfigProvider ────────────────────────────────────────────────────────────

// ConfigProvider loads the application configuration from .env and binds it
// into the container as "config".
//
// Bound abstracts:
//   - "config"        → *config.Config
//   - "configuration" → alias
//
//	// Spring: @ConfigurationProperties binding at context refresh
type ConfigProvider struct {
	container.BaseProvider
	EnvFiles []string
}

func (p *ConfigProvider) Register(app *container.Container) {
	envFiles := p.EnvFiles
	app.Singleton("config", func(c *container.Container) (any, error) {
		return config.Load(envFiles...), nil
	})
	app.Alias("config", "configuration")
}

// ── LoggingProvider ───────────────────────────────────────────────────────────

// LoggingProvider builds the zap logger from LOG_LEVEL / LOG_FORMAT and
// hands it to the registry, so lifecycle events are logged through the
// application logger instead of the starting no-op one. The logger is
// flushed during teardown, ordered after every component that logs.
//
// Bound abstracts:
//   - "logger" → *zap.Logger
type LoggingProvider struct {
	container.BaseProvider
}

func (p *LoggingProvider) Register(app *container.Container) {
	app.Singleton("logger", func(c *container.Container) (any, error) {
		cfg, err := container.Resolve[*config.Config](c, "config")
		if err != nil {
			return nil, err
		}
		return buildLogger(cfg)
	})
}

func (p *LoggingProvider) Boot(app *container.Container) error {
	logger, err := container.Resolve[*zap.Logger](app, "logger")
	if err != nil {
		return err
	}
	app.Registry().RegisterTeardown("logger", func() error {
		// Sync on stderr fails on some platforms; flushing is best effort.
		_ = logger.Sync()
		return nil
	})
	app.Registry().SetLogger(logger.Named("registry"))
	return nil
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Log.Format == "json" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	lvl, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

// ── RoutingProvider ───────────────────────────────────────────────────────────

// RoutingProvider registers the HTTP router for the management endpoints
// and wires request logging through the application logger.
//
// Bound abstracts:
//   - "router" → *routing.Router
type RoutingProvider struct {
	container.BaseProvider
}

func (p *RoutingProvider) Register(app *container.Container) {
	app.Singleton("router", func(c *container.Container) (any, error) {
		return routing.New(), nil
	})
}

func (p *RoutingProvider) Boot(app *container.Container) error {
	router, err := container.Resolve[*routing.Router](app, "router")
	if err != nil {
		return err
	}
	logger, err := container.Resolve[*zap.Logger](app, "logger")
	if err != nil {
		return err
	}
	router.Middleware(routing.RequestLogger(logger.Named("http")))
	return nil
}
