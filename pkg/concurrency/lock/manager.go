package lock

// Manager is the construction root for the lock table, client pool, and
// the policies (wait strategy, resolution strategy, tracer) configured for
// a particular deployment. Callers check out a Client per logical
// transaction, acquire and release locks through it, and release the
// Client back to the Manager when the transaction ends.
type Manager struct {
	table  *LockTable
	pool   *ClientPool
	config Config
}

// NewManager builds a Manager for the given configuration. TypeCount must
// be at least 1; every ResourceType a caller uses with this Manager must
// return a TypeID in [0, TypeCount).
func NewManager(config Config) *Manager {
	if config.TypeCount < 1 {
		config.TypeCount = 1
	}
	table := NewLockTable(config.TypeCount)
	m := &Manager{
		table:  table,
		config: config,
	}
	m.pool = NewClientPool(table, &m.config)
	return m
}

// NewClient checks out a fresh Client for a new transaction.
func (m *Manager) NewClient() *Client {
	return m.pool.Checkout()
}

// Release stops c, releases every lock it still holds, and returns it to
// the pool for reuse.
func (m *Manager) Release(c *Client) error {
	return m.pool.Release(c)
}

// ActiveClientCount returns the number of clients currently checked out.
func (m *Manager) ActiveClientCount() int {
	return m.pool.Size()
}
