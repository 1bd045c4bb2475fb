package registry

import (
	"fmt"
	"slices"

	"go.uber.org/zap"
)

// ── Dependency graph ──────────────────────────────────────────────────────────

// RegisterDependency records that name depends on dependsOn, so that name is
// destroyed before dependsOn during teardown. Registration is idempotent and
// both indices are updated together.
//
//	// Spring: registerDependentBean(dependsOn, name)
func (r *Registry) RegisterDependency(name, dependsOn string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registerDependencyLocked(name, dependsOn)
}

func (r *Registry) registerDependencyLocked(name, dependsOn string) {
	if slices.Contains(r.dependents[dependsOn], name) {
		return
	}
	r.dependents[dependsOn] = append(r.dependents[dependsOn], name)
	r.dependencies[name] = append(r.dependencies[name], dependsOn)
}

// RegisterContainment records that inner is logically owned by outer — an
// inner component registered while building its enclosing one. For teardown
// the relation behaves like outer depending on inner: outer is destroyed
// first, and destroying outer cascades to inner.
//
//	// Spring: registerContainedBean(inner, outer)
func (r *Registry) RegisterContainment(inner, outer string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.Contains(r.contained[outer], inner) {
		return
	}
	r.contained[outer] = append(r.contained[outer], inner)
	r.registerDependencyLocked(outer, inner)
}

// IsDependent reports whether dependent is a direct or transitive dependent
// of name. The traversal keeps a visited set so it terminates even if the
// recorded graph contains a cycle.
func (r *Registry) IsDependent(name, dependent string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isDependentLocked(name, dependent, nil)
}

func (r *Registry) isDependentLocked(name, dependent string, seen map[string]struct{}) bool {
	if _, ok := seen[name]; ok {
		return false
	}
	direct := r.dependents[name]
	if slices.Contains(direct, dependent) {
		return true
	}
	for _, transitive := range direct {
		if seen == nil {
			seen = make(map[string]struct{})
		}
		seen[name] = struct{}{}
		if r.isDependentLocked(transitive, dependent, seen) {
			return true
		}
	}
	return false
}

// DependentsOf returns the names registered as depending on name.
func (r *Registry) DependentsOf(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.dependents[name])
}

// DependenciesOf returns the names that name was registered as depending on.
func (r *Registry) DependenciesOf(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.dependencies[name])
}

// ── Teardown coordinator ──────────────────────────────────────────────────────

// RegisterTeardown registers a destruction callback for name, to run when
// the component is destroyed. The entry is independent of the singleton
// cache: it may belong to an adapter object distinct from the cached
// instance. Re-registering replaces the callback but keeps the original
// position in the teardown order.
//
//	// Spring: registerDisposableBean(name, bean)
func (r *Registry) RegisterTeardown(name string, destroy func() error) {
	if destroy == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.teardowns[name]; !ok {
		r.teardownOrder = append(r.teardownOrder, name)
	}
	r.teardowns[name] = destroy
}

// Destroy removes the named component from every cache and runs its
// destruction callback. Registered dependents are destroyed first, contained
// components after the callback; all edges mentioning the name are pruned.
// Callback failures are logged, never propagated.
//
//	// Spring: destroySingleton(name)
func (r *Registry) Destroy(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroyLocked(name)
}

// destroyLocked destroys name and cascades. The mutex is held for
// bookkeeping and released around each destruction callback.
func (r *Registry) destroyLocked(name string) {
	// Out of the caches first, so no concurrent caller can obtain the
	// component mid-teardown.
	r.removeSingletonLocked(name)
	fn := r.teardowns[name]
	delete(r.teardowns, name)
	if i := slices.Index(r.teardownOrder, name); i >= 0 {
		r.teardownOrder = slices.Delete(r.teardownOrder, i, i+1)
	}

	// Dependents go down before the component they depend on.
	dependents := r.dependents[name]
	delete(r.dependents, name)
	for _, dep := range dependents {
		r.destroyLocked(dep)
	}

	if fn != nil {
		r.mu.Unlock()
		err := run(fn)
		r.mu.Lock()
		if err != nil {
			r.log.Warn("component teardown failed",
				zap.String("component", name),
				zap.Error(err),
			)
		} else {
			r.log.Debug("component destroyed", zap.String("component", name))
		}
	}

	// Contained components are torn down with their container.
	inner := r.contained[name]
	delete(r.contained, name)
	for _, in := range inner {
		r.destroyLocked(in)
	}

	// Prune the destroyed name from the remaining edge indices.
	for owner, deps := range r.dependents {
		if i := slices.Index(deps, name); i >= 0 {
			deps = slices.Delete(deps, i, i+1)
			if len(deps) == 0 {
				delete(r.dependents, owner)
			} else {
				r.dependents[owner] = deps
			}
		}
	}
	delete(r.dependencies, name)
}

// DestroyAll destroys every teardown-capable component in reverse
// registration order (dependents and contained components cascade first) and
// then clears all registry state. While it runs, new construction requests
// fail with a NotAllowedError.
//
//	// Spring: destroySingletons()
func (r *Registry) DestroyAll() {
	r.mu.Lock()
	r.inDestruction = true
	names := slices.Clone(r.teardownOrder)
	r.log.Debug("destroying components", zap.Int("count", len(names)))

	for i := len(names) - 1; i >= 0; i-- {
		r.destroyLocked(names[i])
	}

	r.dependents = make(map[string][]string)
	r.dependencies = make(map[string][]string)
	r.contained = make(map[string][]string)

	r.singletons = make(map[string]any)
	r.earlyFactories = make(map[string]func() any)
	r.earlyObjects = make(map[string]any)
	r.produced = make(map[string]any)
	r.registered = nil
	r.inDestruction = false
	r.mu.Unlock()
}

// run invokes a destruction callback, converting a panic into an error.
func run(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in teardown callback: %v", rec)
		}
	}()
	return fn()
}
