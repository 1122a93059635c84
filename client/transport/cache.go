package transport

import (
	"sync"
	"time"

	"golang.org/x/net/http2"
)

// cache holds idle HTTP/1.1 connections and live HTTP/2 client
// connections per target. It is the only state shared between
// concurrent exchanges.
type cache struct {
	mu         sync.Mutex
	idle       map[string][]*Conn
	h2         map[string]*http2.ClientConn
	maxPerHost int
	timeout    time.Duration
}

func newCache(maxPerHost int, timeout time.Duration) *cache {
	return &cache{
		idle:       make(map[string][]*Conn),
		h2:         make(map[string]*http2.ClientConn),
		maxPerHost: maxPerHost,
		timeout:    timeout,
	}
}

// get pops the most recently used idle connection for key, closing any
// that outlived the idle timeout.
func (c *cache) get(key string) *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()

	conns := c.idle[key]
	for len(conns) > 0 {
		conn := conns[len(conns)-1]
		conns = conns[:len(conns)-1]

		if c.timeout > 0 && time.Since(conn.lastUsed) > c.timeout {
			conn.Close()
			continue
		}

		c.idle[key] = conns
		return conn
	}

	delete(c.idle, key)
	return nil
}

// put parks conn for reuse, closing it when the host is at capacity.
func (c *cache) put(conn *Conn) {
	key := conn.target.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.idle[key]) >= c.maxPerHost {
		conn.Close()
		return
	}

	c.idle[key] = append(c.idle[key], conn)
}

func (c *cache) getH2(key string) *http2.ClientConn {
	c.mu.Lock()
	defer c.mu.Unlock()

	cc, ok := c.h2[key]
	if !ok {
		return nil
	}
	if !cc.CanTakeNewRequest() {
		delete(c.h2, key)
		return nil
	}

	return cc
}

func (c *cache) putH2(key string, cc *http2.ClientConn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.h2[key]; ok && old != cc && old.CanTakeNewRequest() {
		// Keep the established connection; the new one serves only its
		// first request and is closed once idle.
		cc.SetDoNotReuse()
		return
	}

	c.h2[key] = cc
}

// idleCount reports the number of parked HTTP/1.1 connections for key.
func (c *cache) idleCount(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.idle[key])
}

func (c *cache) closeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, conns := range c.idle {
		for _, conn := range conns {
			conn.Close()
		}
		delete(c.idle, key)
	}

	for key, cc := range c.h2 {
		cc.Close()
		delete(c.h2, key)
	}
}
