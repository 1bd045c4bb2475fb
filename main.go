package main

import (
	"net/http"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/km-arc/go-spring/framework/app"
	"github.com/km-arc/go-spring/framework/container"
	"github.com/km-arc/go-spring/framework/registry"
	"github.com/km-arc/go-spring/framework/routing"
)

// ── Demo components ───────────────────────────────────────────────────────────

// sessionStore is a shared component with an orderly teardown.
type sessionStore struct {
	log *zap.Logger

	mu       sync.Mutex
	sessions map[string]string
}

func (s *sessionStore) Put(id, user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = user
}

func (s *sessionStore) Shutdown() error {
	s.log.Info("session store draining", zap.Int("sessions", len(s.sessions)))
	return nil
}

// userService and orderService reference each other; the cycle is broken by
// two-phase construction.
type userService struct {
	Orders *orderService
}

type orderService struct {
	Users *userService
}

// tokenProducer yields the exposed object ("the signing key") rather than
// being it.
type tokenProducer struct {
	seed string
}

func (p *tokenProducer) Produce() (any, error) { return "key:" + p.seed, nil }
func (p *tokenProducer) Singleton() bool       { return true }

// ── Wiring ────────────────────────────────────────────────────────────────────

type demoProvider struct {
	container.BaseProvider
}

func (p *demoProvider) Register(a *container.Container) {
	a.Singleton("sessionStore", func(c *container.Container) (any, error) {
		log, err := container.Resolve[*zap.Logger](c, "logger")
		if err != nil {
			return nil, err
		}
		return &sessionStore{
			log:      log.Named("sessions"),
			sessions: make(map[string]string),
		}, nil
	})

	a.SingletonWithInit("users", func(c *container.Container) (any, func() error, error) {
		svc := &userService{}
		return svc, func() error {
			var err error
			svc.Orders, err = container.Resolve[*orderService](c, "orders")
			return err
		}, nil
	})

	a.SingletonWithInit("orders", func(c *container.Container) (any, func() error, error) {
		svc := &orderService{}
		return svc, func() error {
			var err error
			svc.Users, err = container.Resolve[*userService](c, "users")
			return err
		}, nil
	})

	a.BindProducer("signingKey", func(c *container.Container) (registry.Producer, error) {
		return &tokenProducer{seed: os.Getenv("APP_NAME")}, nil
	})
}

func (p *demoProvider) Boot(a *container.Container) error {
	// Eager: the pair must be wired before the first request.
	if _, err := a.Make("users"); err != nil {
		return err
	}
	_, err := a.Make("sessionStore")
	return err
}

// ── Bootstrap ─────────────────────────────────────────────────────────────────

func main() {
	application := app.New() // loads .env automatically
	application.Register(&demoProvider{})
	if err := application.Boot(); err != nil {
		application.Logger().Fatal("boot failed", zap.Error(err))
	}

	r := application.Router()
	reg := application.Registry()

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		routing.NewResponse(w).Success(map[string]any{
			"app":     application.Config().App.Name,
			"version": application.Version(),
		})
	})

	// ── Component introspection ────────────────────────────────────────────

	r.Prefix("/components", func(api *routing.Router) {

		// GET /components
		api.Get("/", func(w http.ResponseWriter, req *http.Request) {
			routing.NewResponse(w).Success(map[string]any{
				"count": reg.BuiltCount(),
				"names": reg.BuiltNames(),
			})
		})

		// GET /components/{name}
		api.Get("/{name}", func(w http.ResponseWriter, req *http.Request) {
			res := routing.NewResponse(w)
			name := routing.Param(req, "name")
			if !reg.ContainsBuilt(name) && !reg.IsActuallyInCreation(name) {
				res.NotFound("no component named " + name)
				return
			}
			res.Success(map[string]any{
				"name":         name,
				"built":        reg.ContainsBuilt(name),
				"inCreation":   reg.IsCurrentlyInCreation(name),
				"dependencies": reg.DependenciesOf(name),
				"dependents":   reg.DependentsOf(name),
			})
		})

		// DELETE /components/{name} — destroy a component and its dependents
		api.Delete("/{name}", func(w http.ResponseWriter, req *http.Request) {
			res := routing.NewResponse(w)
			name := routing.Param(req, "name")
			if !reg.ContainsBuilt(name) {
				res.NotFound("no component named " + name)
				return
			}
			application.Forget(name)
			res.NoContent()
		})
	})

	// GET /signing-key — the produced object, not the producer
	r.Get("/signing-key", func(w http.ResponseWriter, req *http.Request) {
		res := routing.NewResponse(w)
		key, err := container.Resolve[string](application.Container, "signingKey")
		if err != nil {
			res.Error(http.StatusInternalServerError, err.Error())
			return
		}
		res.Success(map[string]any{"key": key})
	})

	// Resolve before Run: the container is flushed by the time Run returns.
	log := application.Logger()
	if err := application.Run(); err != nil {
		log.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}
