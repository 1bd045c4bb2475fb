// Package container provides a Spring-style dependency wiring layer and
// Service Provider system over the singleton lifecycle registry.
//
// # Overview
//
// The container manages the instantiation and lifecycle of your application's
// dependencies. It supports transient bindings, singletons, two-phase
// singletons with circular wiring, producer bindings, pre-built instances,
// aliases, tags, contextual bindings, and extension (decoration).
//
// Shared-instance semantics live in the registry package: one construction
// per name even under concurrent resolution, early references for circular
// wiring, and dependency-ordered teardown. Because Go has no runtime
// constructor reflection, auto-wiring is replaced by explicit factory
// functions; dependency edges are recorded as factories resolve what they
// need.
//
// # Container Lifecycle
//
//  1. Create: c := container.New()
//  2. Register providers: providers.Register(&MyProvider{})
//  3. Boot: providers.Boot()        — safe to resolve everything after this
//  4. Serve requests
//  5. Flush: c.Flush()              — teardown in reverse dependency order
//
// # Bindings
//
//	// Transient — new instance every Make()
//	c.Bind("report", func(c *container.Container) (any, error) { return &Report{}, nil })
//
//	// Singleton — created once, reused, torn down on Flush
//	// Spring: @Bean (singleton scope)
//	c.Singleton("cache", func(c *container.Container) (any, error) {
//	    cfg, err := container.Resolve[*Config](c, "config")
//	    if err != nil {
//	        return nil, err
//	    }
//	    return cache.New(cfg), nil
//	})
//
//	// Pre-built value
//	// Spring: registerSingleton(name, instance)
//	c.Instance("config", myConfig)
//
//	// Alias
//	c.Alias("cache", "cacheManager")
//
// # Resolving
//
//	// Untyped
//	raw, err := c.Make("cache")
//
//	// Generic (preferred — no type assertion required)
//	cache, err := container.Resolve[*Cache](c, "cache")
//
// # Circular wiring
//
// Two singletons whose factories need each other as construction arguments
// cannot be built; Make fails with a circular-reference error. When the
// cycle runs through fields rather than constructor arguments, use
// SingletonWithInit: the instance is published as an early reference before
// its init phase runs, so both sides of the cycle resolve successfully and
// end up referencing each other.
//
//	// Spring: constructor + @Autowired field injection
//	c.SingletonWithInit("orders", func(c *container.Container) (any, func() error, error) {
//	    svc := &OrderService{}
//	    return svc, func() error {
//	        var err error
//	        svc.Users, err = container.Resolve[*UserService](c, "users")
//	        return err
//	    }, nil
//	})
//
// # Producer bindings
//
// A producer binding registers a component that is not itself the exposed
// object but a factory for it.
//
//	// Spring: FactoryBean
//	c.BindProducer("db", func(c *container.Container) (registry.Producer, error) {
//	    return &dbProducer{dsn: dsn}, nil
//	})
//	db, err := c.Make("db")          // the produced *sql.DB
//	p, err := c.Make("&db")          // the producer itself
//
// # Teardown
//
// A singleton implementing Shutdowner (or io.Closer) is registered for
// destruction. Forget destroys one component and its dependents; Flush
// destroys everything, dependents before the components they depend on.
//
// # Contextual Binding
//
//	c.When("photoHandler").
//	    Needs("storage").
//	    Give(func(c *container.Container) (any, error) { return &S3Storage{}, nil })
//
// # Tags
//
//	c.Tag([]string{"cpuReport", "memReport"}, "reports")
//	reports, err := c.Tagged("reports")  // []any
//
// # Extend / Decorate
//
//	c.Extend("logger", func(instance any, c *container.Container) (any, error) {
//	    return &TimestampLogger{Inner: instance.(*Logger)}, nil
//	})
//
// # Service Providers
//
//	type AppProvider struct{ container.BaseProvider }
//
//	func (p *AppProvider) Register(app *container.Container) {
//	    app.Singleton("mailer", func(c *container.Container) (any, error) {
//	        cfg, err := container.Resolve[*config.Config](c, "config")
//	        if err != nil {
//	            return nil, err
//	        }
//	        return mail.NewSMTP(cfg), nil
//	    })
//	}
//
//	func (p *AppProvider) Boot(app *container.Container) error {
//	    // safe to resolve other bindings here
//	    return nil
//	}
//
//	providers := container.NewProviderRegistry(c)
//	providers.Register(&AppProvider{})
//	providers.Boot()
//
// # Deferred Providers
//
//	type HeavyProvider struct{ container.BaseProvider }
//
//	func (p *HeavyProvider) IsDeferred() bool   { return true }
//	func (p *HeavyProvider) Provides() []string { return []string{"heavy"} }
//	func (p *HeavyProvider) Register(app *container.Container) {
//	    app.Singleton("heavy", func(c *container.Container) (any, error) {
//	        return heavySetup() // only called on first app.Make("heavy")
//	    })
//	}
package container
