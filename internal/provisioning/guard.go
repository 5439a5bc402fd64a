package provisioning

import "sync"

// inflightGuard prevents concurrent duplicate welcome emails per user
type inflightGuard struct {
	mu    sync.Mutex
	users map[string]struct{}
}

func newInflightGuard() *inflightGuard {
	return &inflightGuard{users: make(map[string]struct{})}
}

// acquire returns false when a send for userID is already in flight
func (g *inflightGuard) acquire(userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.users[userID]; busy {
		return false
	}
	g.users[userID] = struct{}{}
	return true
}

func (g *inflightGuard) release(userID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.users, userID)
}
