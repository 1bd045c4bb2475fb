package container

import (
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/km-arc/go-spring/framework/registry"
	"github.com/km-arc/go-spring/internal/goid"
)

// ── Binding types ─────────────────────────────────────────────────────────────

// Factory is a function that builds a concrete value from the container.
// Factories may resolve other abstracts; resolution of a dependency records
// a teardown-ordering edge in the backing registry.
type Factory func(c *Container) (any, error)

// InitFactory builds a value in two phases: construct first, populate later.
// The returned instance is exposed as an early reference while init runs, so
// two components may reference each other through their init phases.
type InitFactory func(c *Container) (instance any, init func() error, err error)

// ProducerFactory builds the producer component for a producer binding.
type ProducerFactory func(c *Container) (registry.Producer, error)

// binding holds a registered factory and its resolution mode.
type binding struct {
	factory   Factory
	initFn    InitFactory
	producer  ProducerFactory
	singleton bool

	// passthrough marks a factory that delegates to another resolution path
	// (the deferred-provider interceptor). Extenders and resolved callbacks
	// run on the delegate path, so the container must not apply them again
	// to the returned value.
	passthrough bool
}

// extender wraps an already-resolved instance with decorator logic.
type extender func(instance any, c *Container) (any, error)

// Shutdowner is implemented by components that need an orderly teardown.
// Singletons implementing it (or io.Closer) are destroyed in dependency
// order when the container flushes.
type Shutdowner interface {
	Shutdown() error
}

// ProducerPrefix dereferences a producer binding: Make("&db") returns the
// producer component itself rather than the object it produces.
//
//	// Spring: BeanFactory.FACTORY_BEAN_PREFIX ("&")
const ProducerPrefix = "&"

// ── Container ─────────────────────────────────────────────────────────────────

// Container is the wiring layer over the singleton registry — mirrors
// Spring's AbstractBeanFactory sitting on DefaultSingletonBeanRegistry.
//
// It supports:
//   - Bind / Singleton / SingletonWithInit / BindProducer / Instance / Alias
//   - Make / Resolve (generic)
//   - Tags (group multiple abstractions under one tag)
//   - Extend (decorate / wrap resolved instances)
//   - Contextual binding (when A needs B, give it C)
//   - Rebound and resolved callbacks
//
// Shared instances, in-creation tracking, early references, the dependency
// graph and teardown ordering all live in the backing Registry; the
// container owns only the binding metadata.
type Container struct {
	mu sync.RWMutex

	registry *registry.Registry

	// abstract → binding
	bindings map[string]*binding

	// alias → abstract (canonical key)
	aliases map[string]string

	// abstract → extender funcs
	extenders map[string][]extender

	// tag → []abstract
	tags map[string][]string

	// contextual: when[concrete][abstract] = factory
	contextual map[string]map[string]Factory

	// rebound callbacks: abstract → []func(any)
	reboundCallbacks map[string][]func(any)

	// resolved callbacks: []func(abstract, instance)
	afterResolving []func(string, any)

	// buildStacks tracks the abstracts each goroutine is currently
	// resolving, keyed by goroutine id. The stack top is the dependent for
	// edge recording and the concrete for contextual lookup.
	stackMu     sync.Mutex
	buildStacks map[uint64][]string
}

// New creates an empty container on a fresh registry.
func New() *Container {
	return NewWithRegistry(registry.New())
}

// NewWithRegistry creates a container on an existing registry.
func NewWithRegistry(reg *registry.Registry) *Container {
	c := &Container{
		registry:         reg,
		bindings:         make(map[string]*binding),
		aliases:          make(map[string]string),
		extenders:        make(map[string][]extender),
		tags:             make(map[string][]string),
		contextual:       make(map[string]map[string]Factory),
		reboundCallbacks: make(map[string][]func(any)),
		buildStacks:      make(map[uint64][]string),
	}
	// The container is resolvable from itself.
	c.Instance("container", c)
	return c
}

// Registry exposes the backing registry for graph and teardown introspection.
func (c *Container) Registry() *registry.Registry { return c.registry }

// ── Registration ──────────────────────────────────────────────────────────────

// Bind registers a transient factory: a new instance on every Make.
//
//	c.Bind("report", func(c *container.Container) (any, error) {
//	    return NewReport(time.Now()), nil
//	})
func (c *Container) Bind(abstract string, factory Factory) {
	c.register(abstract, &binding{factory: factory})
}

// Singleton registers a factory whose result is shared. The first Make
// builds the instance through the registry; concurrent callers for the same
// abstract share one construction, and a factory that resolves its own
// abstract fails with a circular-reference error.
//
//	// Spring: @Bean (singleton scope)
//	c.Singleton("cache", func(c *container.Container) (any, error) {
//	    cfg, err := container.Resolve[*config.Config](c, "config")
//	    if err != nil {
//	        return nil, err
//	    }
//	    return cache.New(cfg), nil
//	})
func (c *Container) Singleton(abstract string, factory Factory) {
	c.register(abstract, &binding{factory: factory, singleton: true})
}

// SingletonWithInit registers a two-phase singleton. The instance returned
// by the factory is published as an early reference before init runs, so a
// pair of components may resolve each other from their init phases and end
// up mutually wired.
//
//	// Spring: constructor + @Autowired field injection
//	c.SingletonWithInit("orders", func(c *container.Container) (any, func() error, error) {
//	    svc := &OrderService{}
//	    return svc, func() error {
//	        users, err := container.Resolve[*UserService](c, "users")
//	        svc.Users = users
//	        return err
//	    }, nil
//	})
func (c *Container) SingletonWithInit(abstract string, factory InitFactory) {
	c.register(abstract, &binding{initFn: factory, singleton: true})
}

// BindProducer registers a producer binding. The factory builds the producer
// component once; Make(abstract) returns the object the producer yields,
// cached per the producer's Singleton flag. Make(ProducerPrefix+abstract)
// returns the producer itself.
//
//	// Spring: registering a FactoryBean
func (c *Container) BindProducer(abstract string, factory ProducerFactory) {
	c.register(abstract, &binding{producer: factory, singleton: true})
}

// Instance registers a pre-built value as a shared instance. A nil instance
// panics: it is a wiring bug, and the registry would reject it silently.
//
//	c.Instance("config", cfg)
func (c *Container) Instance(abstract string, instance any) {
	if instance == nil {
		panic(fmt.Sprintf("container: [%s] instance is nil", abstract))
	}
	c.mu.Lock()
	key := c.canonical(abstract)
	delete(c.bindings, key)
	c.mu.Unlock()

	c.registry.Destroy(key)
	if err := c.registry.RegisterInstance(key, instance); err != nil {
		// Destroy above cleared the slot; a failure here means a concurrent
		// registration raced us and owns the name now.
		return
	}
	c.registerTeardown(key, instance)
	c.fireRebound(abstract, instance)
}

// register installs binding metadata for abstract, dropping any previously
// built instance so the next Make rebuilds with the new factory.
func (c *Container) register(abstract string, b *binding) {
	c.mu.Lock()
	key := c.canonical(abstract)
	c.bindings[key] = b
	c.mu.Unlock()

	if c.registry.ContainsBuilt(key) {
		c.registry.Destroy(key)
		if obj, err := c.Make(abstract); err == nil {
			c.fireRebound(abstract, obj)
		}
	}
}

// Alias registers an alternative name for an abstract.
//
//	c.Alias("cache", "cacheManager")
func (c *Container) Alias(abstract, alias string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if abstract == alias {
		panic(fmt.Sprintf("container: [%s] is aliased to itself", abstract))
	}
	c.aliases[alias] = c.canonical(abstract)
}

// ── Contextual Binding ────────────────────────────────────────────────────────

// When starts a contextual binding chain.
//
//	c.When("photoHandler").Needs("storage").Give(func(c *container.Container) (any, error) {
//	    return storage.NewS3(), nil
//	})
func (c *Container) When(concrete string) *ContextualBuilder {
	return &ContextualBuilder{container: c, concrete: concrete}
}

// getContextual returns the contextual factory for (concrete, abstract), or nil.
func (c *Container) getContextual(concrete, abstract string) Factory {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if m, ok := c.contextual[concrete]; ok {
		if f, ok := m[abstract]; ok {
			return f
		}
	}
	return nil
}

// ── Extend ────────────────────────────────────────────────────────────────────

// Extend decorates the resolved instance of an abstract. For singleton and
// instance bindings the decorated value is what gets cached; for producer
// bindings the extenders run as the post-process step on the produced
// object. Extending an already-built singleton destroys it so the next Make
// rebuilds through the new extender chain.
//
//	c.Extend("logger", func(instance any, c *container.Container) (any, error) {
//	    return NewTimestampLogger(instance.(*Logger)), nil
//	})
func (c *Container) Extend(abstract string, fn extender) {
	c.mu.Lock()
	key := c.canonical(abstract)
	c.extenders[key] = append(c.extenders[key], fn)
	c.mu.Unlock()

	if c.registry.ContainsBuilt(key) {
		c.registry.Destroy(key)
		if obj, err := c.Make(abstract); err == nil {
			c.fireRebound(abstract, obj)
		}
	}
}

// ── Tags ──────────────────────────────────────────────────────────────────────

// Tag associates multiple abstracts under a named group.
//
//	c.Tag([]string{"cpuReport", "memReport"}, "reports")
func (c *Container) Tag(abstracts []string, tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tags[tag] = append(c.tags[tag], abstracts...)
}

// Tagged resolves all abstracts registered under a tag.
func (c *Container) Tagged(tag string) ([]any, error) {
	c.mu.RLock()
	abstracts := c.tags[tag]
	c.mu.RUnlock()

	result := make([]any, 0, len(abstracts))
	for _, abs := range abstracts {
		obj, err := c.Make(abs)
		if err != nil {
			return nil, err
		}
		result = append(result, obj)
	}
	return result, nil
}

// ── Resolution ────────────────────────────────────────────────────────────────

// Make resolves an abstract from the container.
//
//	repo, err := c.Make("userRepository")
func (c *Container) Make(abstract string) (any, error) {
	return c.resolve(abstract)
}

// MustMake resolves an abstract and panics on failure. For wiring code that
// runs at startup, where a failure is fatal anyway.
func (c *Container) MustMake(abstract string) any {
	obj, err := c.resolve(abstract)
	if err != nil {
		panic(fmt.Sprintf("container: make [%s]: %v", abstract, err))
	}
	return obj
}

func (c *Container) resolve(abstract string) (any, error) {
	rawProducer := strings.HasPrefix(abstract, ProducerPrefix)
	name := strings.TrimPrefix(abstract, ProducerPrefix)

	c.mu.RLock()
	key := c.canonical(name)
	b := c.bindings[key]
	c.mu.RUnlock()

	c.recordDependency(key)

	// Contextual binding takes precedence: transient, scoped to the caller.
	if caller, ok := c.stackTop(); ok {
		if f := c.getContextual(caller, key); f != nil {
			return c.runTransient(key, f)
		}
	}

	if b != nil && b.producer != nil {
		return c.resolveProducer(key, b, rawProducer)
	}
	if rawProducer {
		return nil, fmt.Errorf("container: [%s] is not a producer binding", key)
	}

	// A built or in-creation shared instance: return it, including the early
	// reference of a component whose init phase is still running.
	if obj, ok := c.registry.ResolveEarly(key); ok {
		c.fireAfterResolving(key, obj)
		return obj, nil
	}

	if b == nil {
		return nil, fmt.Errorf("container: no binding registered for [%s]", key)
	}
	if !b.singleton {
		if b.passthrough {
			return b.factory(c)
		}
		return c.runTransient(key, b.factory)
	}

	obj, err := c.registry.GetOrCreate(key, c.builder(key, b))
	if err != nil {
		return nil, err
	}
	c.fireAfterResolving(key, obj)
	return obj, nil
}

// builder wraps a singleton binding into a registry Builder: push the build
// stack, run the factory (publishing the early reference for two-phase
// bindings), apply extenders, hook up teardown.
func (c *Container) builder(key string, b *binding) registry.Builder {
	return func() (any, error) {
		c.pushStack(key)
		defer c.popStack()

		var obj any
		var err error
		switch {
		case b.initFn != nil:
			var init func() error
			obj, init, err = b.initFn(c)
			if err != nil {
				return nil, err
			}
			if obj == nil {
				return nil, fmt.Errorf("container: two-phase factory for [%s] returned nil instance", key)
			}
			early := obj
			if rerr := c.registry.RegisterEarlyFactory(key, func() any { return early }); rerr != nil {
				return nil, rerr
			}
			if init != nil {
				if err = init(); err != nil {
					return nil, err
				}
			}
		default:
			obj, err = b.factory(c)
			if err != nil {
				return nil, err
			}
		}

		obj, err = c.applyExtenders(key, obj)
		if err != nil {
			return nil, err
		}
		c.registerTeardown(key, obj)
		return obj, nil
	}
}

// resolveProducer resolves a producer binding: build (or fetch) the producer
// component, then either return it raw or hand out its product.
func (c *Container) resolveProducer(key string, b *binding, raw bool) (any, error) {
	obj, err := c.registry.GetOrCreate(key, func() (any, error) {
		c.pushStack(key)
		defer c.popStack()
		p, err := b.producer(c)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, fmt.Errorf("container: producer factory for [%s] returned nil", key)
		}
		c.registerTeardown(key, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	p, ok := obj.(registry.Producer)
	if !ok {
		return nil, fmt.Errorf("container: [%s] holds %T, not a producer", key, obj)
	}
	if raw {
		return p, nil
	}

	product, err := c.registry.GetProduced(key, p, c.postProcess(key))
	if err != nil {
		return nil, err
	}
	c.fireAfterResolving(key, product)
	return product, nil
}

// postProcess adapts the extender chain of key into a registry PostProcess.
// Returns nil when no extenders are registered, so the registry can cache
// produced objects without a post-processing pass.
func (c *Container) postProcess(key string) registry.PostProcess {
	c.mu.RLock()
	n := len(c.extenders[key])
	c.mu.RUnlock()
	if n == 0 {
		return nil
	}
	return func(obj any) (any, error) {
		return c.applyExtenders(key, obj)
	}
}

// runTransient executes a factory without registry caching.
func (c *Container) runTransient(key string, f Factory) (any, error) {
	c.pushStack(key)
	obj, err := f(c)
	c.popStack()
	if err != nil {
		return nil, err
	}
	obj, err = c.applyExtenders(key, obj)
	if err != nil {
		return nil, err
	}
	c.fireAfterResolving(key, obj)
	return obj, nil
}

func (c *Container) applyExtenders(key string, instance any) (any, error) {
	c.mu.RLock()
	exts := c.extenders[key]
	c.mu.RUnlock()
	for _, ext := range exts {
		var err error
		instance, err = ext(instance, c)
		if err != nil {
			return nil, fmt.Errorf("container: extending [%s]: %w", key, err)
		}
	}
	return instance, nil
}

// registerTeardown hooks obj into dependency-ordered destruction when it
// knows how to shut down.
func (c *Container) registerTeardown(key string, obj any) {
	switch v := obj.(type) {
	case Shutdowner:
		c.registry.RegisterTeardown(key, v.Shutdown)
	case io.Closer:
		c.registry.RegisterTeardown(key, v.Close)
	}
}

// ── Build stack ───────────────────────────────────────────────────────────────

// pushStack notes that the current goroutine is resolving key.
func (c *Container) pushStack(key string) {
	gid := goid.ID()
	c.stackMu.Lock()
	c.buildStacks[gid] = append(c.buildStacks[gid], key)
	c.stackMu.Unlock()
}

func (c *Container) popStack() {
	gid := goid.ID()
	c.stackMu.Lock()
	stack := c.buildStacks[gid]
	if n := len(stack); n > 0 {
		if n == 1 {
			delete(c.buildStacks, gid)
		} else {
			c.buildStacks[gid] = stack[:n-1]
		}
	}
	c.stackMu.Unlock()
}

func (c *Container) stackTop() (string, bool) {
	gid := goid.ID()
	c.stackMu.Lock()
	defer c.stackMu.Unlock()
	stack := c.buildStacks[gid]
	if len(stack) == 0 {
		return "", false
	}
	return stack[len(stack)-1], true
}

// recordDependency registers a teardown-ordering edge from the abstract
// currently being built on this goroutine to key.
func (c *Container) recordDependency(key string) {
	if caller, ok := c.stackTop(); ok && caller != key {
		c.registry.RegisterDependency(caller, key)
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// Bound reports whether an abstract has been registered.
func (c *Container) Bound(abstract string) bool {
	c.mu.RLock()
	key := c.canonical(abstract)
	_, hasBinding := c.bindings[key]
	c.mu.RUnlock()
	return hasBinding || c.registry.ContainsBuilt(key)
}

// Resolved reports whether the abstract has been built at least once.
func (c *Container) Resolved(abstract string) bool {
	c.mu.RLock()
	key := c.canonical(abstract)
	c.mu.RUnlock()
	return c.registry.ContainsBuilt(key)
}

// Forget removes all registrations for an abstract. The built instance, if
// any, is destroyed along with its registered dependents.
func (c *Container) Forget(abstract string) {
	c.mu.Lock()
	key := c.canonical(abstract)
	delete(c.bindings, key)
	c.mu.Unlock()
	c.registry.Destroy(key)
}

// Flush resets the entire container, destroying built instances in reverse
// dependency order.
func (c *Container) Flush() {
	c.registry.DestroyAll()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindings = make(map[string]*binding)
	c.aliases = make(map[string]string)
	c.extenders = make(map[string][]extender)
	c.tags = make(map[string][]string)
	c.contextual = make(map[string]map[string]Factory)
}

// Bindings returns all registered abstract keys (for debugging).
func (c *Container) Bindings() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	built := c.registry.BuiltNames()
	out := make([]string, 0, len(c.bindings)+len(built))
	for k := range c.bindings {
		out = append(out, k)
	}
	for _, k := range built {
		if _, already := c.bindings[k]; !already {
			out = append(out, k)
		}
	}
	return out
}

// canonical resolves an alias to its canonical key. Callers hold c.mu.
func (c *Container) canonical(abstract string) string {
	if target, ok := c.aliases[abstract]; ok {
		return target
	}
	return abstract
}

// ── Callbacks ─────────────────────────────────────────────────────────────────

// Rebinding registers a callback fired whenever an abstract is re-bound.
func (c *Container) Rebinding(abstract string, cb func(any)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reboundCallbacks[abstract] = append(c.reboundCallbacks[abstract], cb)
}

// AfterResolving registers a callback fired after any abstract is resolved.
func (c *Container) AfterResolving(cb func(abstract string, instance any)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.afterResolving = append(c.afterResolving, cb)
}

func (c *Container) fireRebound(abstract string, instance any) {
	c.mu.RLock()
	cbs := c.reboundCallbacks[abstract]
	c.mu.RUnlock()
	for _, cb := range cbs {
		cb(instance)
	}
}

func (c *Container) fireAfterResolving(abstract string, instance any) {
	c.mu.RLock()
	cbs := c.afterResolving
	c.mu.RUnlock()
	for _, cb := range cbs {
		cb(abstract, instance)
	}
}

// ── Reflect helpers ───────────────────────────────────────────────────────────

// TypeKey returns the package-qualified type name of v, useful as a stable
// abstract key when working with interfaces.
//
//	key := container.TypeKey((*UserRepository)(nil))  // "main.UserRepository"
func TypeKey(v any) string {
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.PkgPath() + "." + t.Name()
}

// ── Generics helpers ──────────────────────────────────────────────────────────

// Resolve is a generic helper that calls Make and type-asserts the result.
//
//	db, err := container.Resolve[*sql.DB](c, "db")
func Resolve[T any](c *Container, abstract string) (T, error) {
	var zero T
	instance, err := c.Make(abstract)
	if err != nil {
		return zero, err
	}
	typed, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("container: Resolve[%T]: [%s] resolved to %T", zero, abstract, instance)
	}
	return typed, nil
}

// MustResolve is like Resolve but panics on failure.
func MustResolve[T any](c *Container, abstract string) T {
	typed, err := Resolve[T](c, abstract)
	if err != nil {
		panic(err.Error())
	}
	return typed
}
