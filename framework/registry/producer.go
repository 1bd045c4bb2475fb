package registry

import (
	"errors"

	"github.com/km-arc/go-spring/internal/goid"
)

// Producer is a component that is not itself the exposed object but a
// factory for it — the FactoryBean of this registry. Whether a given
// component is producer-style is decided by the wiring layer; the registry
// only consumes the capability.
type Producer interface {
	// Produce yields the object to expose. It may legitimately return
	// (nil, nil) while the producer's own construction is still open; the
	// registry treats that as a circular reference, never as a permanent
	// nil result.
	Produce() (any, error)

	// Singleton reports whether the produced object is shared. Shared
	// results are cached per producer name; non-shared producers are
	// re-invoked on every request.
	Singleton() bool
}

// PostProcess transforms a produced object before it is exposed — proxy
// wrapping, decoration. Supplied by the wiring layer; applied at most once
// per cached object.
type PostProcess func(obj any) (any, error)

// ErrNilProduced reports a producer returning nil outside its own
// construction window, where it cannot be explained by a cycle.
var ErrNilProduced = errors.New("registry: producer returned nil object")

// CachedProduced returns the cached object produced under name, if any.
func (r *Registry) CachedProduced(name string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, ok := r.produced[name]
	return obj, ok
}

// GetProduced returns the object exposed by the producer registered under
// name, producing and post-processing it if no cached result exists.
//
//	// Spring: getObjectFromFactoryBean(factory, name, shouldPostProcess)
//
// For a singleton producer whose own component is already built, the result
// is produced once, post-processed once and cached until the producer's
// singleton entry is destroyed. Post-processing is deferred while the
// producer's own construction window is still open: the raw object is
// handed out temporarily and not cached, and a later call post-processes
// and caches it. The producer callback runs outside the registry lock.
func (r *Registry) GetProduced(name string, producer Producer, postProcess PostProcess) (any, error) {
	if producer == nil {
		return nil, &ConsistencyError{Op: "GetProduced with nil producer", Name: name}
	}

	if !producer.Singleton() || !r.ContainsBuilt(name) {
		obj, err := r.produce(name, producer)
		if err != nil {
			return nil, err
		}
		if postProcess != nil {
			obj, err = postProcess(obj)
			if err != nil {
				return nil, &CreationError{Name: name, Cause: err}
			}
		}
		return obj, nil
	}

	r.mu.Lock()
	if obj, ok := r.produced[name]; ok {
		r.mu.Unlock()
		return obj, nil
	}
	r.mu.Unlock()

	obj, err := r.produce(name, producer)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	// The producer may have populated the cache itself through a re-entrant
	// resolution while Produce ran. Whatever landed there first wins.
	if already, ok := r.produced[name]; ok {
		r.mu.Unlock()
		return already, nil
	}
	_, inCreation := r.inCreation[name]
	r.mu.Unlock()

	if postProcess != nil {
		if inCreation {
			// Temporarily hand out the raw object; post-processing and
			// caching happen on a later call, once the window is closed.
			return obj, nil
		}
		obj, err = r.postProcessOnce(name, obj, postProcess)
		if err != nil {
			return nil, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if already, ok := r.produced[name]; ok {
		return already, nil
	}
	if _, built := r.singletons[name]; built {
		r.produced[name] = obj
	}
	return obj, nil
}

// produce invokes the producer outside the lock. A nil result while the
// producer's own construction is open is indistinguishable from a cycle and
// is reported as one.
func (r *Registry) produce(name string, producer Producer) (any, error) {
	obj, err := runBuilder(name, producer.Produce)
	if err != nil {
		return nil, &CreationError{Name: name, Cause: err}
	}
	if obj == nil {
		if r.IsActuallyInCreation(name) {
			return nil, &CycleError{Name: name}
		}
		return nil, &CreationError{Name: name, Cause: ErrNilProduced}
	}
	return obj, nil
}

// postProcessOnce applies the transform under an in-creation mark so a
// re-entrant post-process attempt for the same name surfaces as a cycle
// rather than running twice.
func (r *Registry) postProcessOnce(name string, obj any, postProcess PostProcess) (any, error) {
	gid := goid.ID()
	r.mu.Lock()
	if err := r.beforeCreationLocked(name, gid); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.mu.Unlock()

	processed, perr := postProcess(obj)

	r.mu.Lock()
	aerr := r.afterCreationLocked(name)
	r.mu.Unlock()
	if perr != nil {
		return nil, &CreationError{Name: name, Cause: perr}
	}
	if aerr != nil {
		return nil, aerr
	}
	return processed, nil
}
