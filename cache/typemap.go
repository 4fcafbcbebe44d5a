package cache

import (
	"reflect"
)

// TypeMap stores at most one value per Go type.
//
// Recipes use it to memoize idempotent remote probes for the lifetime of a session:
// a recipe declares an unexported marker type (for example `type packageListUpdated struct{}`)
// and inserts a value of that type once the fact is known. The map is never the source
// of truth; losing an entry only costs an extra remote round trip.
type TypeMap struct {
	store *Cache[reflect.Type, any]
}

// NewTypeMap creates an empty TypeMap.
func NewTypeMap() *TypeMap {
	return &TypeMap{store: NewCache[reflect.Type, any]()}
}

// Len returns the number of stored types.
func (m *TypeMap) Len() int {
	return m.store.Len()
}

// Clear drops every stored value.
func (m *TypeMap) Clear() {
	m.store.Clean()
}

// Contains reports whether a value of type T is stored.
func Contains[T any](m *TypeMap) bool {
	return m.store.Contains(reflect.TypeOf((*T)(nil)).Elem())
}

// Get returns the stored value of type T.
func Get[T any](m *TypeMap) (T, bool) {
	return GetTyped[T](m.store, reflect.TypeOf((*T)(nil)).Elem())
}

// Insert stores v, replacing any previous value of type T.
func Insert[T any](m *TypeMap, v T) {
	m.store.Set(reflect.TypeOf((*T)(nil)).Elem(), v)
}

// Remove drops the stored value of type T.
func Remove[T any](m *TypeMap) {
	m.store.Delete(reflect.TypeOf((*T)(nil)).Elem())
}

// EntryRef is a handle on the slot for type T.
type EntryRef[T any] struct {
	m *TypeMap
}

// Entry returns the slot for type T.
func Entry[T any](m *TypeMap) EntryRef[T] {
	return EntryRef[T]{m: m}
}

// OrInsertWith returns the stored value, calling f to create and store it when absent.
// Store a pointer type when callers need to mutate the cached value in place.
func (e EntryRef[T]) OrInsertWith(f func() T) T {
	v, _ := e.m.store.GetOrSetFunc(reflect.TypeOf((*T)(nil)).Elem(), func() any { return f() })
	t, _ := v.(T)
	return t
}

// OrDefault returns the stored value, storing and returning the zero value of T when absent.
func (e EntryRef[T]) OrDefault() T {
	return e.OrInsertWith(func() T {
		var zero T
		return zero
	})
}
