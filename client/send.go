package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/adamwoolhether/courier/client/auth"
	"github.com/adamwoolhether/courier/client/body"
	"github.com/adamwoolhether/courier/client/pool"
	"github.com/adamwoolhether/courier/client/redirect"
	"github.com/adamwoolhether/courier/client/transport"
	"github.com/google/uuid"
)

// Send runs req synchronously: it follows redirects per the client's
// policy, answers one 401 through the client's authenticator and hands
// the final body to h. The returned error matches one of the package's
// sentinel errors via errors.Is.
//
// Unless h retains the body, as [body.Lines] does, the connection is
// released before Send returns.
func Send[T any](ctx context.Context, c *Client, req *Request, h body.Handler[T]) (*Response[T], error) {
	if req == nil {
		return nil, errors.New("request must not be nil")
	}
	if h == nil {
		return nil, errors.New("body handler must not be nil")
	}

	ctx, span := c.startSpan(ctx, req)
	defer c.metrics.start()()
	start := time.Now()

	c.transition(ctx, req, Building)

	ctx, cancel := c.deadline(ctx, req)
	if release := pool.Retain(ctx); release != nil {
		// A pooled Send keeps its task context until the final body is
		// released.
		context.AfterFunc(ctx, release)
	}

	resp, err := send(ctx, c, req, h, cancel)
	if err != nil {
		err = classify(ctx, err)
		cancel(err)

		c.transition(ctx, req, Failed)
		c.metrics.failure(err)
		endSpan(span, 0, 0, err)
		c.logger.Debug("request failed", "method", req.method, "url", req.url.Redacted(), "error", err)

		return nil, err
	}

	c.transition(ctx, req, Complete)
	c.metrics.observe(req.method, resp.StatusCode, resp.Version.String(), time.Since(start))
	endSpan(span, resp.StatusCode, resp.Hops(), nil)

	return resp, nil
}

// SendAsync schedules Send on the client's pool and returns immediately.
// Cancelling the future closes the request's connection and completes it
// with ErrCancelled.
func SendAsync[T any](ctx context.Context, c *Client, req *Request, h body.Handler[T]) *pool.Future[*Response[T]] {
	return pool.Submit(ctx, c.workers(), func(ctx context.Context) (*Response[T], error) {
		return Send(ctx, c, req, h)
	})
}

// deadline derives the context bounding one logical request. Its cancel
// runs once the final body is released, so streamed bodies stay readable
// after Send returns.
func (c *Client) deadline(ctx context.Context, req *Request) (context.Context, context.CancelCauseFunc) {
	d := req.timeout
	if d == 0 {
		d = c.timeout
	}

	ctx, cancel := context.WithCancelCause(ctx)
	if d <= 0 {
		return ctx, cancel
	}

	tctx, tcancel := context.WithTimeoutCause(ctx, d, ErrTimeout)
	return tctx, func(err error) {
		tcancel()
		cancel(err)
	}
}

func send[T any](ctx context.Context, c *Client, req *Request, h body.Handler[T], release context.CancelCauseFunc) (*Response[T], error) {
	chain := redirect.NewChain(c.policy, c.maxRedirects)
	authTried := false

	var (
		cur     = req
		history *Response[struct{}]
		reqID   string
	)
	if c.requestID && req.header.Get("X-Request-ID") == "" {
		reqID = uuid.NewString()
	}

	for {
		ex, err := c.roundTrip(ctx, cur, reqID)
		if err != nil {
			return nil, err
		}

		if ex.StatusCode == http.StatusUnauthorized && c.auth != nil && !authTried {
			authTried = true

			if next, ok := c.authenticate(ctx, cur, ex); ok {
				c.transition(ctx, cur, Authenticating)
				c.metrics.authRetry()

				history = hop(cur, ex, history)
				drain(c, ex.Body)
				cur = next
				continue
			}
		}

		step := redirect.Step{Method: cur.method, URL: cur.url, Header: cur.header, Body: cur.body}
		next, ok, err := chain.Next(step, ex.StatusCode, ex.Header.Get("Location"))
		if err != nil {
			drain(c, ex.Body)
			return nil, err
		}
		if ok {
			c.transition(ctx, cur, Redirecting)
			c.metrics.redirect()
			c.logger.Debug("following redirect", "status", ex.StatusCode, "from", cur.url.Redacted(), "to", next.URL.Redacted())

			history = hop(cur, ex, history)
			drain(c, ex.Body)
			cur = cur.redirected(next)
			continue
		}

		info := body.Info{
			StatusCode:    ex.StatusCode,
			Version:       ex.Version,
			Header:        ex.Header,
			ContentLength: ex.ContentLength,
			URL:           cur.URL(),
			Logger:        c.logger,
		}

		v, err := h.Handle(ctx, info, &releasingBody{ReadCloser: ex.Body, release: release})
		if err != nil {
			return nil, fmt.Errorf("handling body: %w", err)
		}

		return &Response[T]{
			StatusCode: ex.StatusCode,
			Status:     ex.Status,
			Version:    ex.Version,
			Header:     ex.Header,
			URL:        cur.URL(),
			Request:    cur,
			Body:       v,
			Previous:   history,
		}, nil
	}
}

// roundTrip sends one hop of a logical request.
func (c *Client) roundTrip(ctx context.Context, req *Request, reqID string) (*transport.Exchange, error) {
	c.transition(ctx, req, Connecting)

	if err := c.limiter.Wait(ctx, req.url.Host); err != nil {
		return nil, fmt.Errorf("throttle: %w", err)
	}

	out := &transport.Outbound{
		Method:  req.method,
		URL:     req.url,
		Header:  req.header.Clone(),
		Order:   req.order,
		Body:    req.body,
		Prefer:  req.version,
		OnConn:  func(transport.Version, bool) { c.transition(ctx, req, Sending) },
		OnWrote: func() { c.transition(ctx, req, AwaitingResponse) },
	}
	if c.userAgent != "" && out.Header.Get("User-Agent") == "" {
		out.Header.Set("User-Agent", c.userAgent)
	}
	if reqID != "" {
		out.Header.Set("X-Request-ID", reqID)
	}
	inject(ctx, out.Header)

	return c.tr.RoundTrip(ctx, out)
}

// authenticate asks the authenticator to answer the 401 in ex and returns
// the request to retry with.
func (c *Client) authenticate(ctx context.Context, req *Request, ex *transport.Exchange) (*Request, bool) {
	challenges := auth.ParseChallenges(ex.Header, req.url.Host)
	if len(challenges) == 0 {
		return nil, false
	}

	ch := challenges[0]
	for _, candidate := range challenges {
		if strings.EqualFold(candidate.Scheme, "basic") {
			ch = candidate
			break
		}
	}

	creds, ok := c.auth.Challenge(ctx, ch)
	if !ok {
		return nil, false
	}
	if !strings.EqualFold(ch.Scheme, "basic") {
		c.logger.Debug("credentials offered for unsupported scheme", "scheme", ch.Scheme)
		return nil, false
	}

	value, err := auth.Basic(creds)
	if err != nil {
		c.logger.Debug("authenticator returned unusable credentials", "error", err)
		return nil, false
	}

	next := req.clone()
	next.setHeader("Authorization", value)

	return next, true
}

// redirected derives the request for a redirect step.
func (r *Request) redirected(step redirect.Step) *Request {
	next := r.clone()
	next.method = step.Method
	next.url = step.URL
	next.header = step.Header
	next.body = step.Body

	kept := next.order[:0]
	for _, name := range next.order {
		if _, ok := step.Header[name]; ok {
			kept = append(kept, name)
		}
	}
	next.order = kept

	return next
}

// hop records an intermediate response in the history chain.
func hop(req *Request, ex *transport.Exchange, prev *Response[struct{}]) *Response[struct{}] {
	return &Response[struct{}]{
		StatusCode: ex.StatusCode,
		Status:     ex.Status,
		Version:    ex.Version,
		Header:     ex.Header,
		URL:        req.URL(),
		Request:    req,
		Previous:   prev,
	}
}

// drain reads a bounded amount of an unused body so its connection can
// be reused, then closes it.
func drain(c *Client, rc io.ReadCloser) {
	if _, err := io.Copy(io.Discard, io.LimitReader(rc, maxDrainSize)); err != nil {
		c.logger.Debug("failed to discard unused body", "error", err)
	}
	if err := rc.Close(); err != nil {
		c.logger.Error("failed to close response body", "error", err)
	}
}

// releasingBody ends the request's context once its body is closed.
type releasingBody struct {
	io.ReadCloser
	release context.CancelCauseFunc
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.release(nil)

	return err
}
