package gateway

import (
	"sync"

	"quiz-battle-client/internal/domain"
)

// credentials guards the in-memory credential pair. All reads go through
// snapshot so a replayed request always sees the latest access token.
type credentials struct {
	mu    sync.RWMutex
	state domain.CredentialState
	ok    bool
}

func newCredentials() *credentials {
	return &credentials{}
}

func (c *credentials) set(state domain.CredentialState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
	c.ok = state.AccessToken != ""
}

func (c *credentials) snapshot() (domain.CredentialState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state, c.ok
}

func (c *credentials) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = domain.CredentialState{}
	c.ok = false
}
