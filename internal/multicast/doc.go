// Package multicast implements a delegate multicast registry: a set of
// observers that an event source broadcasts to without owning them.
//
// Membership is keyed by pointer identity, so two observers with equal field
// values are still distinct members, and adding the same observer twice keeps
// a single membership. Observers are held through weak pointers; an observer
// dropped by the rest of the program is skipped and forgotten on the next
// broadcast.
//
// Typical use by an event source:
//
//	type Source struct {
//	    observers *multicast.Registry[Delegate]
//	}
//
//	func (s *Source) AddObserver(d Delegate) error { return s.observers.Add(d) }
//	func (s *Source) RemoveObserver(d Delegate)    { s.observers.Remove(d) }
//
//	func (s *Source) connected(p Peripheral) {
//	    s.observers.Broadcast(func(d Delegate) { d.DidConnect(p) })
//	}
//
// Observers must be non-nil pointers, including pointers held in package-level
// variables. Values, nil pointers and pointers to zero-sized types have no
// usable identity and are rejected with ErrUnsupportedSubscriberKind. So are
// pointers to pointer-free values smaller than 16 bytes: the runtime packs
// those into shared blocks, and a dropped one could keep receiving events
// for as long as its neighbours live.
//
// Remove does not wait for callbacks already running on other goroutines.
package multicast
