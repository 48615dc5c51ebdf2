package container

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
)

// Container is a small constructor-injection container.
//   - Provide registers constructors returning (T) or (T, error)
//   - Resolve and Invoke build their dependencies on demand
//   - Close shuts built singletons down in reverse build order
type Container struct {
	mu        sync.Mutex
	prov      map[reflect.Type]provider
	instances map[reflect.Type]reflect.Value
	built     []reflect.Value
}

type provider struct {
	out       reflect.Type
	fn        reflect.Value
	singleton bool
}

var errType = reflect.TypeOf((*error)(nil)).Elem()

func New() *Container {
	return &Container{prov: make(map[reflect.Type]provider), instances: make(map[reflect.Type]reflect.Value)}
}

// Provide registers a constructor for its first return type. Parameters
// are resolved from the container. A second return value must be error.
func (c *Container) Provide(constructor any, singleton bool) error {
	v := reflect.ValueOf(constructor)
	if v.Kind() != reflect.Func {
		return fmt.Errorf("container: constructor must be a function")
	}
	ft := v.Type()
	if ft.NumOut() == 0 || ft.NumOut() > 2 {
		return fmt.Errorf("container: constructor must return (T) or (T, error)")
	}
	if ft.NumOut() == 2 && ft.Out(1) != errType {
		return fmt.Errorf("container: second return value must be error")
	}
	out := ft.Out(0)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.prov[out]; exists {
		return fmt.Errorf("container: provider already exists for %v", out)
	}
	c.prov[out] = provider{out: out, fn: v, singleton: singleton}
	return nil
}

// MustProvide is Provide that panics; for static wiring in main.
func (c *Container) MustProvide(constructor any) {
	if err := c.Provide(constructor, true); err != nil {
		panic(err)
	}
}

// Resolve populates target, a non-nil pointer, with an instance of its
// element type.
//
//	var db *database.DB
//	err := c.Resolve(&db)
func (c *Container) Resolve(target any) error {
	ptr := reflect.ValueOf(target)
	if ptr.Kind() != reflect.Ptr || ptr.IsNil() {
		return fmt.Errorf("container: target must be a non-nil pointer")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	val, err := c.get(ptr.Elem().Type(), make(map[reflect.Type]bool))
	if err != nil {
		return err
	}
	ptr.Elem().Set(val)
	return nil
}

// Get resolves a T.
func Get[T any](c *Container) (T, error) {
	var v T
	err := c.Resolve(&v)
	return v, err
}

// Invoke calls fn with its parameters resolved from the container. A
// trailing error result is returned.
func (c *Container) Invoke(fn any) error {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return fmt.Errorf("container: Invoke requires a function")
	}
	ft := v.Type()
	args := make([]reflect.Value, ft.NumIn())
	c.mu.Lock()
	for i := range args {
		val, err := c.get(ft.In(i), make(map[reflect.Type]bool))
		if err != nil {
			c.mu.Unlock()
			return err
		}
		args[i] = val
	}
	c.mu.Unlock()

	outs := v.Call(args)
	if n := len(outs); n > 0 && ft.Out(n-1) == errType && !outs[n-1].IsNil() {
		return outs[n-1].Interface().(error)
	}
	return nil
}

// lookup finds the provider for t, falling back to a provider whose type
// implements the requested interface. More than one match is an error.
func (c *Container) lookup(t reflect.Type) (provider, error) {
	if p, ok := c.prov[t]; ok {
		return p, nil
	}
	if t.Kind() != reflect.Interface {
		return provider{}, fmt.Errorf("container: no provider for %v", t)
	}
	var found []provider
	for pt, p := range c.prov {
		if pt.Implements(t) {
			found = append(found, p)
		}
	}
	switch len(found) {
	case 0:
		return provider{}, fmt.Errorf("container: no provider for %v", t)
	case 1:
		return found[0], nil
	default:
		return provider{}, fmt.Errorf("container: %d providers implement %v", len(found), t)
	}
}

// get must be called with c.mu held.
func (c *Container) get(t reflect.Type, seen map[reflect.Type]bool) (reflect.Value, error) {
	prov, err := c.lookup(t)
	if err != nil {
		return reflect.Value{}, err
	}
	// Singletons are cached under the provided type so an interface and
	// its concrete type share one instance.
	if v, ok := c.instances[prov.out]; ok {
		return v, nil
	}
	if seen[prov.out] {
		return reflect.Value{}, fmt.Errorf("container: cyclic dependency for %v", prov.out)
	}
	seen[prov.out] = true
	defer delete(seen, prov.out)

	ft := prov.fn.Type()
	args := make([]reflect.Value, ft.NumIn())
	for i := range args {
		dep, err := c.get(ft.In(i), seen)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("container: building %v: %w", prov.out, err)
		}
		args[i] = dep
	}
	outs := prov.fn.Call(args)
	if len(outs) == 2 && !outs[1].IsNil() {
		return reflect.Value{}, outs[1].Interface().(error)
	}
	res := outs[0]
	if prov.singleton {
		c.instances[prov.out] = res
		c.built = append(c.built, res)
	}
	return res, nil
}

type closer interface{ Close() }

// Close closes every built singleton that implements io.Closer or has a
// Close() method, newest first, and joins their errors.
func (c *Container) Close() error {
	c.mu.Lock()
	built := c.built
	c.built = nil
	c.instances = make(map[reflect.Type]reflect.Value)
	c.mu.Unlock()

	var errList []error
	for i := len(built) - 1; i >= 0; i-- {
		v := built[i]
		if !v.IsValid() || (v.Kind() == reflect.Ptr && v.IsNil()) {
			continue
		}
		switch x := v.Interface().(type) {
		case io.Closer:
			if err := x.Close(); err != nil {
				errList = append(errList, fmt.Errorf("container: closing %v: %w", v.Type(), err))
			}
		case closer:
			x.Close()
		}
	}
	return errors.Join(errList...)
}
