package provider

import "sync"

// HandleCache maps workspace ids to live execution-context handles. The
// cache is process-local and not durable: after a restart the entries are
// gone even though the remote workspaces still exist, and the next RunCode
// transparently re-acquires a context. Losing a cache entry is recoverable;
// losing the remote workspace is not.
//
// It is an interface so tests can substitute a fake and so a multi-process
// deployment can back it with a shared cache later.
type HandleCache interface {
	Get(workspaceID string) (string, bool)
	Put(workspaceID, contextID string)
	Delete(workspaceID string)
}

// MemoryHandleCache is the default in-process implementation.
type MemoryHandleCache struct {
	mu       sync.RWMutex
	contexts map[string]string
}

// NewMemoryHandleCache creates an empty in-process handle cache.
func NewMemoryHandleCache() *MemoryHandleCache {
	return &MemoryHandleCache{contexts: make(map[string]string)}
}

func (c *MemoryHandleCache) Get(workspaceID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ctxID, ok := c.contexts[workspaceID]
	return ctxID, ok
}

func (c *MemoryHandleCache) Put(workspaceID, contextID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contexts[workspaceID] = contextID
}

func (c *MemoryHandleCache) Delete(workspaceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.contexts, workspaceID)
}
