package registry_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-spring/framework/registry"
)

// ── Dependency graph ──────────────────────────────────────────────────────────

func TestRegisterDependency_Idempotent(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	reg.RegisterDependency("cache", "logger")
	reg.RegisterDependency("cache", "logger")

	assert.Equal(t, []string{"cache"}, reg.DependentsOf("logger"))
	assert.Equal(t, []string{"logger"}, reg.DependenciesOf("cache"))
}

func TestIsDependent_Transitive(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	reg.RegisterDependency("cache", "logger")
	reg.RegisterDependency("handler", "cache")

	assert.True(t, reg.IsDependent("logger", "cache"))
	assert.True(t, reg.IsDependent("logger", "handler"))
	assert.True(t, reg.IsDependent("cache", "handler"))
	assert.False(t, reg.IsDependent("handler", "logger"))
	assert.False(t, reg.IsDependent("logger", "unrelated"))
}

func TestIsDependent_TerminatesOnCyclicEdges(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	reg.RegisterDependency("a", "b")
	reg.RegisterDependency("b", "a")

	// Must terminate even though the recorded graph is cyclic.
	assert.True(t, reg.IsDependent("a", "b"))
	assert.True(t, reg.IsDependent("b", "a"))
	assert.False(t, reg.IsDependent("a", "missing"))
}

// ── Teardown ordering ─────────────────────────────────────────────────────────

func TestDestroyAll_ReverseRegistrationOrder(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		require.NoError(t, reg.RegisterInstance(name, name))
		reg.RegisterTeardown(name, func() error {
			order = append(order, name)
			return nil
		})
	}

	reg.DestroyAll()

	assert.Equal(t, []string{"third", "second", "first"}, order)
	assert.Zero(t, reg.BuiltCount())
}

func TestDestroyAll_DependentsGoDownFirst(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	var order []string
	teardown := func(name string) func() error {
		return func() error {
			order = append(order, name)
			return nil
		}
	}

	// Registered cache-then-logger, but cache depends on logger: the
	// dependency must override registration order.
	require.NoError(t, reg.RegisterInstance("cache", "cache"))
	require.NoError(t, reg.RegisterInstance("logger", "logger"))
	reg.RegisterTeardown("cache", teardown("cache"))
	reg.RegisterTeardown("logger", teardown("logger"))
	reg.RegisterDependency("cache", "logger")

	reg.DestroyAll()

	assert.Equal(t, []string{"cache", "logger"}, order)
}

func TestDestroy_CascadesToDependents(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	var order []string
	teardown := func(name string) func() error {
		return func() error {
			order = append(order, name)
			return nil
		}
	}

	require.NoError(t, reg.RegisterInstance("logger", "logger"))
	require.NoError(t, reg.RegisterInstance("cache", "cache"))
	require.NoError(t, reg.RegisterInstance("handler", "handler"))
	reg.RegisterTeardown("logger", teardown("logger"))
	reg.RegisterTeardown("cache", teardown("cache"))
	reg.RegisterTeardown("handler", teardown("handler"))
	reg.RegisterDependency("cache", "logger")
	reg.RegisterDependency("handler", "cache")

	reg.Destroy("logger")

	assert.Equal(t, []string{"handler", "cache", "logger"}, order)
	assert.False(t, reg.ContainsBuilt("logger"))
	assert.False(t, reg.ContainsBuilt("cache"))
	assert.False(t, reg.ContainsBuilt("handler"))
}

func TestRegisterContainment_OuterDestroyedBeforeInner(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	var order []string
	teardown := func(name string) func() error {
		return func() error {
			order = append(order, name)
			return nil
		}
	}

	require.NoError(t, reg.RegisterInstance("session", "session"))
	require.NoError(t, reg.RegisterInstance("manager", "manager"))
	reg.RegisterTeardown("session", teardown("session"))
	reg.RegisterTeardown("manager", teardown("manager"))
	reg.RegisterContainment("session", "manager")

	reg.DestroyAll()

	assert.Equal(t, []string{"manager", "session"}, order)
}

func TestDestroy_FailureDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	var survived bool
	require.NoError(t, reg.RegisterInstance("fragile", "fragile"))
	require.NoError(t, reg.RegisterInstance("solid", "solid"))
	reg.RegisterTeardown("solid", func() error {
		survived = true
		return nil
	})
	reg.RegisterTeardown("fragile", func() error {
		return errors.New("close failed")
	})

	reg.DestroyAll()

	assert.True(t, survived)
	assert.Zero(t, reg.BuiltCount())
}

func TestDestroy_PanicIsContained(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	var survived bool
	require.NoError(t, reg.RegisterInstance("panicky", "panicky"))
	reg.RegisterTeardown("panicky", func() error { panic("teardown panic") })
	reg.RegisterTeardown("quiet", func() error {
		survived = true
		return nil
	})

	assert.NotPanics(t, reg.DestroyAll)
	assert.True(t, survived)
}

func TestDestroy_PrunesEdges(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	require.NoError(t, reg.RegisterInstance("cache", "cache"))
	require.NoError(t, reg.RegisterInstance("logger", "logger"))
	reg.RegisterDependency("cache", "logger")

	reg.Destroy("cache")

	assert.Empty(t, reg.DependentsOf("logger"))
	assert.Empty(t, reg.DependenciesOf("cache"))
	assert.True(t, reg.ContainsBuilt("logger"))
}

func TestRegisterTeardown_ReplaceKeepsPosition(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	var order []string
	teardown := func(name string) func() error {
		return func() error {
			order = append(order, name)
			return nil
		}
	}

	reg.RegisterTeardown("a", teardown("stale"))
	reg.RegisterTeardown("b", teardown("b"))
	reg.RegisterTeardown("a", teardown("a"))

	reg.DestroyAll()

	assert.Equal(t, []string{"b", "a"}, order)
}

func TestDestroyAll_AllowsRebuilding(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	require.NoError(t, reg.RegisterInstance("svc", "v1"))
	reg.DestroyAll()

	obj, err := reg.GetOrCreate("svc", func() (any, error) { return "v2", nil })
	require.NoError(t, err)
	assert.Equal(t, "v2", obj)
}
