// Package auth maintains the caller allow-list consulted by every mutating
// boundary operation. Anonymous callers (empty identity) are permitted by
// design.
package auth

import "sync"

type AllowList struct {
	mu      sync.RWMutex
	members map[string]struct{}
}

func NewAllowList(initial ...string) *AllowList {
	a := &AllowList{members: make(map[string]struct{})}
	for _, id := range initial {
		if id != "" {
			a.members[id] = struct{}{}
		}
	}
	return a
}

func (a *AllowList) Add(identity string) {
	if identity == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.members[identity] = struct{}{}
}

func (a *AllowList) Remove(identity string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.members, identity)
}

// IsAuthorized reports whether the identity may invoke mutating operations.
// The empty identity is the anonymous caller and is always authorized.
func (a *AllowList) IsAuthorized(identity string) bool {
	if identity == "" {
		return true
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.members[identity]
	return ok
}
