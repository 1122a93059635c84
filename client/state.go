package client

import (
	"context"
	"fmt"
)

// State is a step of the per-request state machine:
//
//	Building → Connecting → Sending → AwaitingResponse →
//	(Redirecting → Connecting)* → Authenticating? → Complete | Failed
//
// Authenticating loops back to Connecting for the single retry.
type State int

const (
	Building State = iota
	Connecting
	Sending
	AwaitingResponse
	Redirecting
	Authenticating
	Complete
	Failed
)

func (s State) String() string {
	switch s {
	case Building:
		return "building"
	case Connecting:
		return "connecting"
	case Sending:
		return "sending"
	case AwaitingResponse:
		return "awaiting_response"
	case Redirecting:
		return "redirecting"
	case Authenticating:
		return "authenticating"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == Complete || s == Failed
}

// StateHook observes the transitions of every request sent by a Client.
// It runs synchronously on the request's goroutine.
type StateHook func(ctx context.Context, req *Request, s State)

func (c *Client) transition(ctx context.Context, req *Request, s State) {
	c.logger.Debug("request state", "state", s.String(), "method", req.method, "url", req.url.Redacted())
	if c.stateHook != nil {
		c.stateHook(ctx, req, s)
	}
}
