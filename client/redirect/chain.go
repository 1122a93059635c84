package redirect

import (
	"fmt"
	"net/url"
)

// Error reports a redirect chain that exceeded its hop limit. It carries
// the context of the last response that asked to be followed.
type Error struct {
	Hops     int
	Status   int
	Location string
	URL      *url.URL
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %d hops, last %d from %s to %q", e.Err, e.Hops, e.Status, e.URL, e.Location)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Chain applies a Policy across the hops of one logical request and
// enforces the hop limit. A Chain is not safe for concurrent use; each
// logical request owns its own.
type Chain struct {
	policy  Policy
	maxHops int
	hops    int
}

// NewChain returns a Chain following at most maxHops redirects. A
// non-positive maxHops selects DefaultMaxHops.
func NewChain(p Policy, maxHops int) *Chain {
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}

	return &Chain{policy: p, maxHops: maxHops}
}

// Hops reports how many redirects have been followed.
func (c *Chain) Hops() int { return c.hops }

// Next returns the follow-up Step for a response, false when the response
// is terminal, or an [*Error] when following it would exceed the limit.
func (c *Chain) Next(prev Step, status int, location string) (Step, bool, error) {
	step, ok := c.policy.Follow(prev, status, location)
	if !ok {
		return Step{}, false, nil
	}

	if c.hops >= c.maxHops {
		return Step{}, false, &Error{
			Hops:     c.hops,
			Status:   status,
			Location: location,
			URL:      prev.URL,
			Err:      ErrTooManyRedirects,
		}
	}
	c.hops++

	return step, true, nil
}
