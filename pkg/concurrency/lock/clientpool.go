package lock

import "sync"

// ClientPool checks out and recycles Client sessions. Recycling a Client
// object (rather than allocating a fresh one per transaction) keeps its id,
// wait set and exclusive-lock token across checkouts; its per-type
// hold-count maps are allocated afresh by reset on every checkout.
type ClientPool struct {
	mu     sync.Mutex
	byID   map[int]*Client
	free   []*Client
	nextID int

	table  *LockTable
	config *Config
}

// NewClientPool creates an empty pool backed by table and config. config is
// shared by reference across every checked-out Client, so mutating it after
// construction affects future (not current) acquire calls.
func NewClientPool(table *LockTable, config *Config) *ClientPool {
	return &ClientPool{
		byID:   make(map[int]*Client),
		table:  table,
		config: config,
	}
}

func (p *ClientPool) lookup(id int) *Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.byID[id]
}

// Checkout reserves a Client for a new transaction, reusing a previously
// released one when available.
func (p *ClientPool) Checkout() *Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.free); n > 0 {
		c := p.free[n-1]
		p.free = p.free[:n-1]
		c.reset()
		p.byID[c.id] = c
		return c
	}

	id := p.nextID
	p.nextID++
	c := newClient(id, p.table, p.config, p.lookup)
	p.byID[id] = c
	return c
}

// Release stops c if it is not already, closes it (releasing every lock it
// still holds), and returns it to the free list for reuse. Returns whatever
// error Close produced, if any; the client is still recycled regardless.
func (p *ClientPool) Release(c *Client) error {
	c.Stop()
	err := c.Close()

	p.mu.Lock()
	delete(p.byID, c.id)
	p.free = append(p.free, c)
	p.mu.Unlock()

	return err
}

// Size returns the number of currently checked-out clients.
func (p *ClientPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byID)
}
