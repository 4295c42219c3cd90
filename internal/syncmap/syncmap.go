// Package syncmap wraps [sync.Map] with type parameters.  The module graph uses it to share
// archive readers between search-path providers.
package syncmap

import "sync"

type syncMap = sync.Map

// A Map is a [sync.Map] restricted to keys of type K and values of type V.
type Map[K comparable, V any] struct {
	syncMap
}

func (m *Map[K, V]) Load(k K) (V, bool) {
	vAny, ok := m.syncMap.Load(k)
	if !ok {
		var zero V
		return zero, false
	}
	return vAny.(V), true
}

func (m *Map[K, V]) LoadOrStore(k K, v V) (V, bool) {
	vAny, loaded := m.syncMap.LoadOrStore(k, v)
	return vAny.(V), loaded
}
