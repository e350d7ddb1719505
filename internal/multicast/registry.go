package multicast

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"unsafe"
	"weak"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrUnsupportedSubscriberKind is returned by Add when the subscriber has no
// usable reference identity: nil, a non-pointer value, a pointer to a
// zero-sized value, or a pointer to a small pointer-free value.
var ErrUnsupportedSubscriberKind = errors.New("unsupported subscriber kind")

// tinySize is the runtime's tiny-allocator bound. Pointer-free values smaller
// than this may share a memory block with unrelated objects, so their weak
// pointers can stay valid long after the subscriber itself is unreachable.
const tinySize = 16

// identity keys a subscriber by its pointer type and a weak handle to the pointee.
// The type is part of the key so that a struct and its first field, which share
// an address, remain distinct members.
type identity struct {
	typ reflect.Type
	ref weak.Pointer[byte]
}

type slot struct {
	id uint64
	identity
}

// member is a live subscriber materialised for one broadcast pass.
type member[T any] struct {
	id  uint64
	obs T
}

// Registry is a weakly-held, de-duplicated set of observers of type T.
//
// Observers are identified by reference identity and are never kept alive by
// the registry: once an observer is unreachable elsewhere it stops receiving
// broadcasts and its slot is purged on the next pass. Broadcast order follows
// insertion order within a run, but callers must not rely on any order.
//
// A Registry is safe for concurrent use. Callbacks run without the internal
// lock held and may Add or Remove observers, including themselves.
type Registry[T any] struct {
	mu     sync.Mutex
	slots  *orderedmap.OrderedMap[uint64, slot]
	index  map[identity]uint64
	nextID uint64
}

// New creates an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{
		slots: orderedmap.New[uint64, slot](),
		index: make(map[identity]uint64),
	}
}

// identify resolves the reference identity of an observer.
// Only non-nil pointers to values of non-zero size qualify, and values below
// tinySize must contain a pointer.
func identify[T any](observer T) (identity, error) {
	v := reflect.ValueOf(any(observer))
	if !v.IsValid() {
		return identity{}, fmt.Errorf("%w: nil observer", ErrUnsupportedSubscriberKind)
	}
	if v.Kind() != reflect.Pointer {
		return identity{}, fmt.Errorf("%w: %s is not a pointer", ErrUnsupportedSubscriberKind, v.Type())
	}
	if v.IsNil() {
		return identity{}, fmt.Errorf("%w: nil %s", ErrUnsupportedSubscriberKind, v.Type())
	}
	elem := v.Type().Elem()
	if elem.Size() == 0 {
		return identity{}, fmt.Errorf("%w: %s points to a zero-sized value", ErrUnsupportedSubscriberKind, v.Type())
	}
	if elem.Size() < tinySize && !hasPointers(elem) {
		return identity{}, fmt.Errorf("%w: %s points to a pointer-free value smaller than %d bytes", ErrUnsupportedSubscriberKind, v.Type(), tinySize)
	}

	return identity{
		typ: v.Type(),
		ref: weak.Make((*byte)(v.UnsafePointer())),
	}, nil
}

// hasPointers reports whether values of t hold any pointer the GC scans
func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Chan,
		reflect.Func, reflect.Interface, reflect.Slice, reflect.String:
		return true
	case reflect.Array:
		return t.Len() > 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// resolve returns a strong reference to the observer or false if it was collected.
func resolve[T any](id identity) (T, bool) {
	var zero T

	p := id.ref.Value()
	if p == nil {
		return zero, false
	}

	obs, ok := reflect.NewAt(id.typ.Elem(), unsafe.Pointer(p)).Convert(id.typ).Interface().(T)
	if !ok {
		return zero, false
	}
	return obs, true
}

// Add registers an observer. Adding an observer that is already a member is a no-op.
// Observers must be non-nil pointers. Values, pointers to zero-sized values and
// pointers to pointer-free values under 16 bytes fail with
// ErrUnsupportedSubscriberKind and leave the registry unchanged.
func (r *Registry[T]) Add(observer T) error {
	id, err := identify(observer)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.index[id]; exists {
		return nil
	}

	r.nextID++
	r.slots.Set(r.nextID, slot{id: r.nextID, identity: id})
	r.index[id] = r.nextID
	return nil
}

// Remove unregisters an observer. Removing a non-member is a no-op.
//
// Broadcasts that start after Remove returns never reach the observer, and
// neither do later steps of a pass from which it was removed, including a
// removal made by an earlier callback of the same pass. A callback that has
// already passed its membership check on another goroutine may still run.
func (r *Registry[T]) Remove(observer T) {
	id, err := identify(observer)
	if err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if slotID, exists := r.index[id]; exists {
		r.deleteLocked(slotID, id)
	}
}

// Contains reports whether the observer is a live member.
func (r *Registry[T]) Contains(observer T) bool {
	id, err := identify(observer)
	if err != nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.index[id]
	return exists
}

// Len returns the number of live members, purging collected ones.
func (r *Registry[T]) Len() int {
	return len(r.snapshot())
}

// Clear removes every member.
func (r *Registry[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.slots = orderedmap.New[uint64, slot]()
	r.index = make(map[identity]uint64)
}

// Broadcast invokes action once for every live observer.
// Membership is re-checked right before each call, without holding the lock
// across the call itself.
//
// Panics raised by action are not recovered: a failing observer aborts the
// pass and the panic reaches the caller.
func (r *Registry[T]) Broadcast(action func(T)) {
	for _, m := range r.snapshot() {
		if !r.isMember(m.id) {
			continue
		}
		action(m.obs)
	}
}

// TryBroadcast invokes action for every live observer until one returns an error.
// That error is returned as is and the remaining observers are skipped.
func (r *Registry[T]) TryBroadcast(action func(T) error) error {
	for _, m := range r.snapshot() {
		if !r.isMember(m.id) {
			continue
		}
		if err := action(m.obs); err != nil {
			return err
		}
	}
	return nil
}

// snapshot materialises strong references to all live observers in slot order
// and purges the slots whose observers were collected.
func (r *Registry[T]) snapshot() []member[T] {
	r.mu.Lock()
	defer r.mu.Unlock()

	live := make([]member[T], 0, r.slots.Len())
	var dead []slot

	for pair := r.slots.Oldest(); pair != nil; pair = pair.Next() {
		obs, ok := resolve[T](pair.Value.identity)
		if !ok {
			dead = append(dead, pair.Value)
			continue
		}
		live = append(live, member[T]{id: pair.Key, obs: obs})
	}

	for _, s := range dead {
		r.deleteLocked(s.id, s.identity)
	}

	return live
}

func (r *Registry[T]) isMember(slotID uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.slots.Get(slotID)
	return exists
}

func (r *Registry[T]) deleteLocked(slotID uint64, id identity) {
	r.slots.Delete(slotID)
	delete(r.index, id)
}
