package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/km-arc/go-spring/framework/config"
	"github.com/km-arc/go-spring/framework/container"
	"github.com/km-arc/go-spring/framework/providers"
	"github.com/km-arc/go-spring/framework/routing"
)

// Application is the top-level application kernel. It embeds the container
// so user code can call app.Bind(), app.Singleton(), app.Register()
// directly.
//
//	// Spring: the ApplicationContext
type Application struct {
	*container.Container
	Providers *container.ProviderRegistry
}

// New creates and bootstraps the application.
func New(envFiles ...string) *Application {
	c := container.New()
	reg := container.NewProviderRegistry(c)

	app := &Application{
		Container: c,
		Providers: reg,
	}

	// Framework core providers, in boot order. Registration before Boot
	// cannot fail, but a failure here would mean a broken kernel anyway.
	core := []container.ServiceProvider{
		&providers.ConfigProvider{EnvFiles: envFiles},
		&providers.LoggingProvider{},
		&providers.RoutingProvider{},
	}
	for _, p := range core {
		if err := reg.Register(p); err != nil {
			panic(fmt.Sprintf("app: registering core provider: %v", err))
		}
	}

	return app
}

// Register adds a ServiceProvider to the application.
func (a *Application) Register(provider container.ServiceProvider) error {
	return a.Providers.Register(provider)
}

// Boot runs the Boot() phase on all providers.
func (a *Application) Boot() error {
	return a.Providers.Boot()
}

// Config resolves *config.Config from the container.
func (a *Application) Config() *config.Config {
	return container.MustResolve[*config.Config](a.Container, "config")
}

// Router resolves *routing.Router from the container.
func (a *Application) Router() *routing.Router {
	return container.MustResolve[*routing.Router](a.Container, "router")
}

// Logger resolves *zap.Logger from the container.
func (a *Application) Logger() *zap.Logger {
	return container.MustResolve[*zap.Logger](a.Container, "logger")
}

// Run boots the application (if needed) and serves HTTP until SIGINT or
// SIGTERM, then drains in-flight requests and tears every component down in
// reverse dependency order.
func (a *Application) Run() error {
	if !a.Providers.Booted() {
		if err := a.Boot(); err != nil {
			return err
		}
	}
	cfg := a.Config()
	log := a.Logger()

	server := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler: a.Router(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.String("app", cfg.App.Name),
			zap.String("addr", server.Addr),
			zap.String("env", cfg.App.Env),
		)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.Shutdown(context.Background(), server)
		return err
	case <-ctx.Done():
	}

	log.Info("shutdown signal received")
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return a.Shutdown(drainCtx, server)
}

// Shutdown drains the server and flushes the container. Component teardown
// runs after the last request completes, dependents before dependencies.
func (a *Application) Shutdown(ctx context.Context, server *http.Server) error {
	var err error
	if server != nil {
		err = server.Shutdown(ctx)
	}
	a.Flush()
	return err
}

// Environment returns the APP_ENV value.
func (a *Application) Environment() string { return a.Config().App.Env }
func (a *Application) IsLocal() bool       { return a.Environment() == "local" }
func (a *Application) IsProduction() bool  { return a.Environment() == "production" }
func (a *Application) IsTesting() bool     { return a.Environment() == "testing" }
func (a *Application) IsDebug() bool       { return a.Config().App.Debug }
func (a *Application) Version() string     { return "0.1.0" }
