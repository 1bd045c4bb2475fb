// Package registry provides a Spring-compatible singleton component
// registry for Go: one fully built instance per name, early references for
// circular dependencies, and dependency-ordered teardown.
//
// # Overview
//
// The registry is the lifecycle engine underneath the IoC container. It
// mirrors the behaviour of Spring's DefaultSingletonBeanRegistry together
// with the FactoryBean object cache of FactoryBeanRegistrySupport: the
// wiring layer supplies opaque builder callbacks, the registry guarantees
// at-most-one construction per name, exposes in-flight instances to
// cooperating dependents, and destroys everything in an order consistent
// with the recorded dependency graph.
//
// # Getting or creating a singleton
//
//	// Spring: beanFactory.getSingleton("cache", () -> createBean("cache"))
//	obj, err := reg.GetOrCreate("cache", func() (any, error) {
//	    return NewCache(), nil
//	})
//
// A second request for the same name returns the cached instance without
// invoking the builder. A concurrent request while the builder runs waits
// for it and shares the result. A re-entrant request from inside the
// builder itself — a cycle through construction-time arguments — fails with
// a *CycleError.
//
// # Early references (circular dependencies)
//
// A builder that can hand out its instance before population registers an
// early factory; dependents that circle back during the construction window
// all share the object it returns:
//
//	// Spring: addSingletonFactory(name, () -> getEarlyBeanReference(...))
//	reg.RegisterEarlyFactory("users", func() any { return u })
//
//	// Spring: getSingleton(name, true)
//	if obj, ok := reg.ResolveEarly("users"); ok { ... }
//
// The factory runs at most once per window. When construction commits, the
// finally built instance owns the cache slot; early references already
// handed out stay valid object identities.
//
// # Dependency graph and teardown
//
//	reg.RegisterDependency("cache", "logger") // cache depends on logger
//	reg.RegisterContainment("inner", "outer") // outer owns inner
//	reg.RegisterTeardown("cache", cache.Close)
//
//	reg.DestroyAll() // cache torn down strictly before logger
//
// DestroyAll walks the teardown table in reverse registration order,
// cascading to registered dependents and contained components first.
// Teardown failures are logged and isolated per component; while teardown
// runs, new construction fails with a *NotAllowedError.
//
// # Producer components
//
// A component that is a factory for the exposed object (Spring's
// FactoryBean) goes through the produced-object cache:
//
//	obj, err := reg.GetProduced("events", producer, postProcess)
//
// The produced object is cached separately from the producer component, and
// the post-process transform is applied at most once.
//
// # Concurrency
//
// All registry state lives behind a single mutex; builder, producer and
// teardown callbacks run outside of it. Construction of one name therefore
// never blocks bookkeeping for unrelated names, and a hung builder hangs
// only its own name's resolution.
package registry
