package route

import "sync/atomic"

// Cache holds the current installed Table behind an atomic pointer so
// readers never block on refresh and never observe a partially-built
// table: Current always returns either the prior table or the new one.
type Cache struct {
	current atomic.Pointer[Table]
}

// NewCache returns a Cache pre-loaded with an empty table, so Current is
// always safe to call even before the first refresh completes.
func NewCache() *Cache {
	c := &Cache{}
	c.current.Store(NewTable(nil))
	return c
}

// Current returns the presently-installed table. Non-blocking.
func (c *Cache) Current() *Table {
	return c.current.Load()
}

// Install atomically swaps in a newly built table.
func (c *Cache) Install(t *Table) {
	c.current.Store(t)
}
