// Package registry abstracts the host application registry consulted
// during post-initialization reconciliation.
package registry

import "sync"

// AppRegistry answers synchronous install/enable queries for
// application identifiers. It is only consulted after the metadata
// index finishes its first-time setup.
type AppRegistry interface {
	IsInstalled(appID string) bool
	IsEnabled(appID string) bool
}

// StaticRegistry is an in-memory registry, used by the CLI and tests
type StaticRegistry struct {
	mu   sync.RWMutex
	apps map[string]bool // appID -> enabled
}

func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{apps: make(map[string]bool)}
}

// Install registers an app with the given enabled flag
func (r *StaticRegistry) Install(appID string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apps[appID] = enabled
}

// Remove unregisters an app
func (r *StaticRegistry) Remove(appID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.apps, appID)
}

func (r *StaticRegistry) IsInstalled(appID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.apps[appID]
	return ok
}

func (r *StaticRegistry) IsEnabled(appID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.apps[appID]
}

// PermissiveRegistry reports every app as installed and enabled; it
// is the default when no host registry is wired.
type PermissiveRegistry struct{}

func (PermissiveRegistry) IsInstalled(appID string) bool { return true }
func (PermissiveRegistry) IsEnabled(appID string) bool   { return true }
