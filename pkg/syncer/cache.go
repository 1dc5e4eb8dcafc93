package syncer

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/connector"
)

// Cache holds one built connector per connector id so credentials are
// decrypted once per process. It lives as long as its Orchestrator.
type Cache struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]connector.Connector
}

func NewCache() *Cache {
	return &Cache{entries: make(map[uuid.UUID]connector.Connector)}
}

func (c *Cache) Get(id uuid.UUID) (connector.Connector, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conn, ok := c.entries[id]
	return conn, ok
}

func (c *Cache) Put(id uuid.UUID, conn connector.Connector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = conn
}

// Invalidate drops one connector, e.g. after its config changed.
func (c *Cache) Invalidate(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// Clear drops every cached connector and returns how many were dropped.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[uuid.UUID]connector.Connector)
	return n
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
