package registry

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/km-arc/go-spring/internal/goid"
)

// suppressedLimit bounds the number of suppressed errors preserved per
// construction, so a pathological failure storm cannot grow memory unbounded.
const suppressedLimit = 100

// Builder performs the actual construction of a component. It is supplied by
// the wiring layer, is opaque to the registry, and may itself resolve other
// component names. It runs outside the registry lock.
type Builder func() (any, error)

// creation tracks one open construction window for a name.
type creation struct {
	// owner is the goroutine driving the construction. A request for the
	// same name from the owner goroutine is a constructor cycle; a request
	// from any other goroutine waits for the window to close.
	owner uint64
	// done is closed when the window closes, successfully or not.
	done chan struct{}
}

// Registry is the singleton component registry — mirrors Spring's
// DefaultSingletonBeanRegistry (plus its FactoryBean object cache).
//
// It owns every piece of shared lifecycle state behind one mutex: the
// singleton cache, the in-creation set, the early-reference caches, the
// dependency graph and the teardown table. Builder and producer callbacks
// execute outside the lock, so slow construction of one name never blocks
// bookkeeping for unrelated names.
type Registry struct {
	mu  sync.Mutex
	log *zap.Logger

	// singletons: component name → fully built instance.
	// Spring: singletonObjects
	singletons map[string]any

	// registered keeps built names in registration order.
	registered []string

	// earlyFactories: name → single-use factory producing the early object.
	// Spring: singletonFactories
	earlyFactories map[string]func() any

	// earlyObjects: name → the early object, once produced. A window hands
	// out exactly one early reference; earlyFactories and earlyObjects are
	// mutually exclusive per name.
	// Spring: earlySingletonObjects
	earlyObjects map[string]any

	// inCreation: names currently inside a construction window.
	// Spring: singletonsCurrentlyInCreation
	inCreation map[string]*creation

	// exclusions: names exempt from in-creation tracking.
	// Spring: inCreationCheckExclusions
	exclusions map[string]struct{}

	// suppressed collects errors observed incidentally during a construction,
	// keyed by the goroutine driving its outermost window. Builders resolve
	// their dependencies synchronously on the calling goroutine, so the
	// goroutine id ties an incidental error to the construction attempt it
	// occurred in even when unrelated names build concurrently. recording
	// marks goroutines with an outermost window open.
	suppressed map[uint64][]error
	recording  map[uint64]struct{}

	// inDestruction rejects new construction while DestroyAll runs.
	inDestruction bool

	// teardowns: name → destruction callback; teardownOrder keeps the
	// registration order for reverse-order shutdown.
	// Spring: disposableBeans
	teardowns     map[string]func() error
	teardownOrder []string

	// dependents[name] lists the names depending on name; dependencies is
	// the inverse index. Both are updated together and kept in first-seen
	// order so teardown stays deterministic.
	// Spring: dependentBeanMap / dependenciesForBeanMap
	dependents   map[string][]string
	dependencies map[string][]string

	// contained[outer] lists inner names whose destruction is ordered like
	// a dependency of outer.
	// Spring: containedBeanMap
	contained map[string][]string

	// produced: producer component name → the object it produced.
	// Spring: factoryBeanObjectCache
	produced map[string]any
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for lifecycle and teardown diagnostics.
func WithLogger(log *zap.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// New creates an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		log:            zap.NewNop(),
		singletons:     make(map[string]any),
		earlyFactories: make(map[string]func() any),
		earlyObjects:   make(map[string]any),
		inCreation:     make(map[string]*creation),
		exclusions:     make(map[string]struct{}),
		suppressed:     make(map[uint64][]error),
		recording:      make(map[uint64]struct{}),
		teardowns:      make(map[string]func() error),
		dependents:     make(map[string][]string),
		dependencies:   make(map[string][]string),
		contained:      make(map[string][]string),
		produced:       make(map[string]any),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetLogger replaces the registry logger. Useful when the logger itself is a
// component resolved after the registry exists.
func (r *Registry) SetLogger(log *zap.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = log
}

// ── Creation coordinator ──────────────────────────────────────────────────────

// GetOrCreate returns the singleton registered under name, building it with
// builder if it does not exist yet.
//
//	// Spring: beanFactory.getSingleton(name, () -> createBean(name))
//
// The builder runs outside the registry lock. Concurrent callers for the
// same name wait for the open construction window and then reuse the result;
// a re-entrant request from inside the builder itself fails with a
// CycleError. The in-creation mark is removed on every exit path.
func (r *Registry) GetOrCreate(name string, builder Builder) (any, error) {
	if builder == nil {
		return nil, &ConsistencyError{Op: "GetOrCreate with nil builder", Name: name}
	}
	gid := goid.ID()

	for {
		r.mu.Lock()
		if obj, ok := r.singletons[name]; ok {
			r.mu.Unlock()
			return obj, nil
		}
		if r.inDestruction {
			r.mu.Unlock()
			return nil, &NotAllowedError{Name: name}
		}
		if c, ok := r.inCreation[name]; ok {
			if _, excluded := r.exclusions[name]; !excluded {
				if c.owner == gid {
					r.mu.Unlock()
					return nil, &CycleError{Name: name}
				}
				// Another goroutine is building this name. Wait for its
				// window to close, then re-check the cache; if that build
				// failed we take over as the builder.
				done := c.done
				r.mu.Unlock()
				<-done
				continue
			}
		}
		if err := r.beforeCreationLocked(name, gid); err != nil {
			r.mu.Unlock()
			return nil, err
		}
		_, nested := r.recording[gid]
		recording := !nested
		if recording {
			r.recording[gid] = struct{}{}
			delete(r.suppressed, gid)
		}
		r.mu.Unlock()

		r.log.Debug("creating shared component instance", zap.String("component", name))
		obj, err := runBuilder(name, builder)

		r.mu.Lock()
		if aerr := r.afterCreationLocked(name); aerr != nil && err == nil {
			err = aerr
		}
		var suppressed []error
		if recording {
			suppressed = r.suppressed[gid]
			delete(r.suppressed, gid)
			delete(r.recording, gid)
		}
		if err != nil {
			// The same name may have been completed through another path
			// while our builder ran (eager RegisterInstance). Prefer the
			// now-present value over a spurious failure.
			if cur, ok := r.singletons[name]; ok {
				r.mu.Unlock()
				return cur, nil
			}
			delete(r.earlyFactories, name)
			delete(r.earlyObjects, name)
			r.mu.Unlock()
			var ce *CreationError
			if errors.As(err, &ce) {
				ce.Suppressed = capSuppressed(append(ce.Suppressed, suppressed...))
				return nil, ce
			}
			return nil, &CreationError{Name: name, Cause: err, Suppressed: capSuppressed(suppressed)}
		}
		r.addSingletonLocked(name, obj)
		r.mu.Unlock()
		return obj, nil
	}
}

// RegisterInstance eagerly registers a pre-built instance under name.
//
//	// Spring: beanFactory.registerSingleton(name, instance)
//
// It fails if the name is already bound to a built instance.
func (r *Registry) RegisterInstance(name string, obj any) error {
	if obj == nil {
		return &ConsistencyError{Op: "RegisterInstance with nil instance", Name: name}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.singletons[name]; ok {
		return &ConsistencyError{Op: "RegisterInstance over existing singleton", Name: name}
	}
	r.addSingletonLocked(name, obj)
	return nil
}

// addSingletonLocked commits obj to the singleton cache and clears all
// transient early-reference state for name. Mutex must be held.
func (r *Registry) addSingletonLocked(name string, obj any) {
	r.singletons[name] = obj
	delete(r.earlyFactories, name)
	delete(r.earlyObjects, name)
	if !slices.Contains(r.registered, name) {
		r.registered = append(r.registered, name)
	}
}

// removeSingletonLocked purges every cache entry for name. Mutex must be held.
func (r *Registry) removeSingletonLocked(name string) {
	delete(r.singletons, name)
	delete(r.earlyFactories, name)
	delete(r.earlyObjects, name)
	delete(r.produced, name)
	if i := slices.Index(r.registered, name); i >= 0 {
		r.registered = slices.Delete(r.registered, i, i+1)
	}
}

// runBuilder invokes the builder, converting a panic into an error so the
// in-creation mark is always released.
func runBuilder(name string, builder Builder) (obj any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic while building component %q: %v", name, rec)
		}
	}()
	return builder()
}

// ── Early-reference resolver ──────────────────────────────────────────────────

// RegisterEarlyFactory registers the early-reference factory for a name that
// is currently in creation. The factory is invoked at most once per
// construction window; every dependent resolving the name during the window
// shares the object it returns.
//
//	// Spring: addSingletonFactory(name, () -> getEarlyBeanReference(...))
func (r *Registry) RegisterEarlyFactory(name string, factory func() any) error {
	if factory == nil {
		return &ConsistencyError{Op: "RegisterEarlyFactory with nil factory", Name: name}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, built := r.singletons[name]; built {
		return &ConsistencyError{Op: "RegisterEarlyFactory after construction completed", Name: name}
	}
	if _, ok := r.inCreation[name]; !ok {
		return &ConsistencyError{Op: "RegisterEarlyFactory outside construction window", Name: name}
	}
	r.earlyFactories[name] = factory
	delete(r.earlyObjects, name)
	return nil
}

// ResolveEarly returns the instance registered under name, allowing an early
// reference to a component that is still mid-construction.
//
//	// Spring: getSingleton(name, true /* allowEarlyReference */)
//
// It returns the built instance if construction has completed; otherwise the
// cached early object, or the result of the registered early factory
// (invoked exactly once and cached). It reports false when the name is
// neither built nor in creation, or no early factory was registered.
func (r *Registry) ResolveEarly(name string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if obj, ok := r.singletons[name]; ok {
		return obj, true
	}
	if _, ok := r.inCreation[name]; !ok {
		return nil, false
	}
	if obj, ok := r.earlyObjects[name]; ok {
		return obj, true
	}
	if factory, ok := r.earlyFactories[name]; ok {
		obj := factory()
		r.earlyObjects[name] = obj
		delete(r.earlyFactories, name)
		return obj, true
	}
	return nil, false
}

// ── In-creation bookkeeping ───────────────────────────────────────────────────

// beforeCreationLocked opens a construction window for name. Mutex must be
// held. Names in the exclusion set are never tracked.
func (r *Registry) beforeCreationLocked(name string, owner uint64) error {
	if _, excluded := r.exclusions[name]; excluded {
		return nil
	}
	if _, ok := r.inCreation[name]; ok {
		return &CycleError{Name: name}
	}
	r.inCreation[name] = &creation{owner: owner, done: make(chan struct{})}
	return nil
}

// afterCreationLocked closes the construction window for name, waking any
// goroutines waiting on it. Mutex must be held.
func (r *Registry) afterCreationLocked(name string) error {
	if _, excluded := r.exclusions[name]; excluded {
		return nil
	}
	c, ok := r.inCreation[name]
	if !ok {
		return &ConsistencyError{Op: "closing construction window that was never opened", Name: name}
	}
	delete(r.inCreation, name)
	close(c.done)
	return nil
}

// SetCurrentlyInCreation overrides in-creation tracking for name. Passing
// false adds the name to the exclusion set: it will never be flagged as in
// creation even while technically mid-construction (components created
// outside the normal path). Passing true removes the exclusion.
//
//	// Spring: setCurrentlyInCreation(name, inCreation)
func (r *Registry) SetCurrentlyInCreation(name string, inCreation bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inCreation {
		delete(r.exclusions, name)
	} else {
		r.exclusions[name] = struct{}{}
	}
}

// IsCurrentlyInCreation reports whether name is inside a construction window
// and not excluded from tracking.
func (r *Registry) IsCurrentlyInCreation(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, excluded := r.exclusions[name]; excluded {
		return false
	}
	_, ok := r.inCreation[name]
	return ok
}

// IsActuallyInCreation reports whether name is inside a construction window,
// ignoring the exclusion set.
func (r *Registry) IsActuallyInCreation(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inCreation[name]
	return ok
}

// ── Suppressed errors ─────────────────────────────────────────────────────────

// OnSuppressed records an error observed incidentally while a construction
// is in flight on the calling goroutine, a temporary circular-reference
// resolution problem for example. Suppressed errors are attached as related
// causes to the CreationError of the construction they occurred in; errors
// reported outside any construction are dropped. At most suppressedLimit
// errors are preserved per construction.
func (r *Registry) OnSuppressed(err error) {
	if err == nil {
		return
	}
	gid := goid.ID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.recording[gid]; ok && len(r.suppressed[gid]) < suppressedLimit {
		r.suppressed[gid] = append(r.suppressed[gid], err)
	}
}

func capSuppressed(errs []error) []error {
	if len(errs) > suppressedLimit {
		return errs[:suppressedLimit]
	}
	return errs
}

// ── Introspection ─────────────────────────────────────────────────────────────

// ContainsBuilt reports whether a fully built instance exists for name.
func (r *Registry) ContainsBuilt(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.singletons[name]
	return ok
}

// BuiltNames returns the names of all built singletons in registration order.
func (r *Registry) BuiltNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.registered)
}

// BuiltCount returns the number of built singletons.
func (r *Registry) BuiltCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.registered)
}
