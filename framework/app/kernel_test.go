package app_test

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/km-arc/go-spring/framework/app"
	"github.com/km-arc/go-spring/framework/config"
	"github.com/km-arc/go-spring/framework/container"
)

type shutTracker struct {
	name  string
	order *[]string
}

func (s *shutTracker) Shutdown() error {
	*s.order = append(*s.order, s.name)
	return nil
}

func TestApplication_BootResolvesCoreBindings(t *testing.T) {
	t.Setenv("APP_NAME", "kernel-test")
	t.Setenv("APP_ENV", "testing")

	a := app.New()
	if err := a.Boot(); err != nil {
		t.Fatalf("Boot: %v", err)
	}

	cfg := a.Config()
	if cfg.App.Name != "kernel-test" {
		t.Errorf("App.Name: got %q", cfg.App.Name)
	}
	if !a.IsTesting() {
		t.Error("IsTesting should be true")
	}
	if a.Router() == nil {
		t.Error("router binding missing")
	}
	if a.Logger() == nil {
		t.Error("logger binding missing")
	}

	// The registry sees the booted components.
	if !a.Registry().ContainsBuilt("config") {
		t.Error("config should be a built singleton")
	}
}

type storeProvider struct {
	container.BaseProvider
	order *[]string
}

func (p *storeProvider) Register(a *container.Container) {
	order := p.order
	a.Singleton("store", func(c *container.Container) (any, error) {
		// Depends on the logger: must be shut down before it.
		if _, err := container.Resolve[*zap.Logger](c, "logger"); err != nil {
			return nil, err
		}
		return &shutTracker{name: "store", order: order}, nil
	})
}

func (p *storeProvider) Boot(a *container.Container) error {
	_, err := a.Make("store")
	return err
}

func TestApplication_ShutdownTearsDownInDependencyOrder(t *testing.T) {
	t.Setenv("APP_ENV", "testing")

	var order []string
	a := app.New()
	if err := a.Register(&storeProvider{order: &order}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := a.Boot(); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	a.Registry().RegisterTeardown("probe", func() error {
		order = append(order, "probe")
		return nil
	})

	if err := a.Shutdown(context.Background(), nil); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if len(order) < 2 {
		t.Fatalf("teardown order: got %v", order)
	}
	// store logs through the logger, so it must go down before the logger
	// flush; the probe registered last goes down first.
	if order[0] != "probe" || order[1] != "store" {
		t.Errorf("teardown order: got %v, want probe then store first", order)
	}
	if a.Registry().BuiltCount() != 0 {
		t.Errorf("registry should be empty after shutdown, got %d built", a.Registry().BuiltCount())
	}
}

func TestApplication_ConfigAlias(t *testing.T) {
	a := app.New()
	if err := a.Boot(); err != nil {
		t.Fatalf("Boot: %v", err)
	}

	cfg, err := container.Resolve[*config.Config](a.Container, "configuration")
	if err != nil {
		t.Fatalf("Resolve configuration alias: %v", err)
	}
	if cfg != a.Config() {
		t.Error("alias should resolve to the same config instance")
	}
}
