// internal/device/cache.go
package device

import "time"

// DefaultCacheTTL is how long a register snapshot is served without a re-read.
const DefaultCacheTTL = 30 * time.Second

// registerCache holds one contiguous register span.
// It is either absent (regs == nil) or complete; never partial.
// Not safe for concurrent use; Device guards it.
type registerCache struct {
	start      uint16
	regs       []uint16
	capturedAt time.Time
	ttl        time.Duration
	now        func() time.Time
}

func newRegisterCache(start uint16, ttl time.Duration) *registerCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &registerCache{start: start, ttl: ttl, now: time.Now}
}

func (c *registerCache) present() bool {
	return c.regs != nil
}

func (c *registerCache) valid() bool {
	return c.present() && c.now().Sub(c.capturedAt) < c.ttl
}

// replace swaps in a freshly read span and restarts the TTL clock.
func (c *registerCache) replace(regs []uint16) {
	c.regs = append([]uint16(nil), regs...)
	c.capturedAt = c.now()
}

func (c *registerCache) invalidate() {
	c.regs = nil
	c.capturedAt = time.Time{}
}

// value returns the raw register at addr if the cache holds it.
func (c *registerCache) value(addr uint16) (uint16, bool) {
	if !c.present() || addr < c.start {
		return 0, false
	}
	i := int(addr - c.start)
	if i >= len(c.regs) {
		return 0, false
	}
	return c.regs[i], true
}

// patch overwrites one slot in place. The TTL clock is left alone.
// Returns false when there is nothing to patch.
func (c *registerCache) patch(addr, v uint16) bool {
	if !c.present() || addr < c.start {
		return false
	}
	i := int(addr - c.start)
	if i >= len(c.regs) {
		return false
	}
	c.regs[i] = v
	return true
}

func (c *registerCache) age() time.Duration {
	if !c.present() {
		return 0
	}
	return c.now().Sub(c.capturedAt)
}
