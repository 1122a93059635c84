package client_test

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adamwoolhether/courier/client"
	"github.com/adamwoolhether/courier/client/auth"
	"github.com/adamwoolhether/courier/client/body"
	"github.com/adamwoolhether/courier/client/pool"
	"github.com/adamwoolhether/courier/client/redirect"
	"github.com/adamwoolhether/courier/client/transport"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type payload struct {
	Body string `json:"body"`
}

func build(t *testing.T, opts ...client.Option) *client.Client {
	t.Helper()

	c, err := client.Build(opts...)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	t.Cleanup(c.Close)

	return c
}

func request(t *testing.T, method, uri string, opts ...client.RequestOption) *client.Request {
	t.Helper()

	req, err := client.NewRequest(method, uri, opts...)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	return req
}

func trustedTLS(ts *httptest.Server) *tls.Config {
	return ts.Client().Transport.(*http.Transport).TLSClientConfig
}

func TestClient_WithUserAgent(t *testing.T) {
	expectedUA := "TestUserAgent/1.0"

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := r.Header.Get("User-Agent")
		if ua != expectedUA {
			t.Errorf("expected User-Agent %q, got %q", expectedUA, ua)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c := build(t, client.WithUserAgent(expectedUA))

	if err := c.Do(t.Context(), request(t, http.MethodGet, ts.URL), http.StatusOK); err != nil {
		t.Errorf("expected no error, got: %v", err)
	}
}

func TestNewRequest_Validation(t *testing.T) {
	testCases := []struct {
		name   string
		method string
		uri    string
		opts   []client.RequestOption
	}{
		{name: "relative uri", method: http.MethodGet, uri: "/xml"},
		{name: "unsupported scheme", method: http.MethodGet, uri: "ftp://localhost/x"},
		{name: "bad method", method: "GE T", uri: "http://localhost"},
		{name: "bad header name", method: http.MethodGet, uri: "http://localhost", opts: []client.RequestOption{client.WithHeader("Bad Name", "x")}},
		{name: "bad header value", method: http.MethodGet, uri: "http://localhost", opts: []client.RequestOption{client.WithHeader("X-Ok", "a\r\nb")}},
		{name: "two bodies", method: http.MethodPost, uri: "http://localhost", opts: []client.RequestOption{client.WithStringBody("a"), client.WithBody([]byte("b"))}},
		{name: "negative timeout", method: http.MethodGet, uri: "http://localhost", opts: []client.RequestOption{client.WithRequestTimeout(-time.Second)}},
		{name: "empty content type", method: http.MethodGet, uri: "http://localhost", opts: []client.RequestOption{client.WithContentType("")}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := client.NewRequest(tc.method, tc.uri, tc.opts...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRequest_Immutable(t *testing.T) {
	req := request(t, http.MethodPost, "http://localhost/post",
		client.WithHeader("X-One", "1"),
		client.WithStringBody("hello"),
	)

	req.Header().Set("X-One", "changed")
	req.URL().Path = "/changed"
	b := req.Body()
	b[0] = 'j'

	if req.Header().Get("X-One") != "1" || req.URL().Path != "/post" || string(req.Body()) != "hello" {
		t.Fatal("accessors must return copies")
	}

	derived, err := req.With(client.WithHeader("X-Two", "2"), client.WithRequestTimeout(time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if req.Header().Get("X-Two") != "" || req.Timeout() != 0 {
		t.Error("With must not modify the original request")
	}
	if derived.Header().Get("X-Two") != "2" || derived.Timeout() != time.Second {
		t.Error("With must apply the options to the copy")
	}
	if got := derived.Header().Get("Content-Type"); got != "text/plain; charset=utf-8" {
		t.Errorf("expected content type to carry over, got %q", got)
	}
}

func TestSend_String(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		io.WriteString(w, "<?xml version='1.0'?>\n<slideshow/>\n")
	}))
	defer ts.Close()

	c := build(t)

	resp, err := client.Send(t.Context(), c, request(t, http.MethodGet, ts.URL+"/xml"), body.String())
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if resp.StatusCode != http.StatusOK || !resp.OK() {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Version != transport.HTTP11 {
		t.Errorf("expected cleartext fallback to %v, got %v", transport.HTTP11, resp.Version)
	}
	if !strings.HasPrefix(resp.Body, "<?xml") {
		t.Errorf("unexpected body %q", resp.Body)
	}
	if resp.URL.Path != "/xml" || resp.Previous != nil {
		t.Errorf("unexpected url %v or history %v", resp.URL, resp.Previous)
	}
}

func TestSend_Redirects(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "landed")
	}))
	defer target.Close()

	plain := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL+"/get", http.StatusFound)
	}))
	defer plain.Close()

	secure := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL+"/get", http.StatusFound)
	}))
	defer secure.Close()

	testCases := []struct {
		name      string
		policy    redirect.Policy
		uri       string
		expStatus int
		expHops   int
	}{
		{name: "never", policy: redirect.Never, uri: plain.URL, expStatus: http.StatusFound},
		{name: "always", policy: redirect.Always, uri: plain.URL, expStatus: http.StatusOK, expHops: 1},
		{name: "normal", policy: redirect.Normal, uri: plain.URL, expStatus: http.StatusOK, expHops: 1},
		{name: "normal refuses downgrade", policy: redirect.Normal, uri: secure.URL, expStatus: http.StatusFound},
		{name: "always follows downgrade", policy: redirect.Always, uri: secure.URL, expStatus: http.StatusOK, expHops: 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := build(t, client.WithRedirectPolicy(tc.policy), client.WithTLSConfig(trustedTLS(secure)))

			resp, err := client.Send(t.Context(), c, request(t, http.MethodGet, tc.uri), body.String())
			if err != nil {
				t.Fatalf("send: %v", err)
			}

			if resp.StatusCode != tc.expStatus {
				t.Errorf("expected %d, got %d", tc.expStatus, resp.StatusCode)
			}
			if resp.Hops() != tc.expHops {
				t.Errorf("expected %d hops, got %d", tc.expHops, resp.Hops())
			}
			if tc.expHops > 0 && resp.Previous.StatusCode != http.StatusFound {
				t.Errorf("expected 302 in history, got %d", resp.Previous.StatusCode)
			}
		})
	}
}

func TestSend_RedirectMethodRewrite(t *testing.T) {
	type seen struct {
		Method string
		Body   string
		Type   string
	}

	var mu sync.Mutex
	var got []seen

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)

		mu.Lock()
		got = append(got, seen{Method: r.Method, Body: string(b), Type: r.Header.Get("Content-Type")})
		mu.Unlock()

		switch r.URL.Path {
		case "/307":
			http.Redirect(w, r, "/303", http.StatusTemporaryRedirect)
		case "/303":
			http.Redirect(w, r, "/end", http.StatusSeeOther)
		}
	}))
	defer ts.Close()

	c := build(t, client.WithRedirectPolicy(redirect.Normal))

	req := request(t, http.MethodPost, ts.URL+"/307", client.WithStringBody("payload"))
	resp, err := client.Send(t.Context(), c, req, body.Discarding())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.StatusCode != http.StatusOK || resp.Hops() != 2 {
		t.Fatalf("expected 200 after 2 hops, got %d after %d", resp.StatusCode, resp.Hops())
	}

	exp := []seen{
		{Method: http.MethodPost, Body: "payload", Type: "text/plain; charset=utf-8"},
		{Method: http.MethodPost, Body: "payload", Type: "text/plain; charset=utf-8"},
		{Method: http.MethodGet},
	}
	if diff := cmp.Diff(exp, got); diff != "" {
		t.Errorf("hops mismatch (-want +got):\n%s", diff)
	}
}

func TestSend_TooManyRedirects(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	}))
	defer ts.Close()

	c := build(t, client.WithRedirectPolicy(redirect.Always), client.WithMaxRedirects(3))

	_, err := client.Send(t.Context(), c, request(t, http.MethodGet, ts.URL), body.Discarding())
	if !errors.Is(err, client.ErrTooManyRedirects) {
		t.Fatalf("expected ErrTooManyRedirects, got %v", err)
	}

	var rErr *client.RedirectError
	if !errors.As(err, &rErr) {
		t.Fatalf("expected *client.RedirectError, got %T", err)
	}
	if rErr.Hops != 3 || rErr.Status != http.StatusFound {
		t.Errorf("unexpected redirect context %+v", rErr)
	}
}

func TestSend_StripsAuthorizationAcrossHosts(t *testing.T) {
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, r.Header.Get("Authorization"))
	}))
	defer other.Close()

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, other.URL, http.StatusFound)
	}))
	defer origin.Close()

	c := build(t, client.WithRedirectPolicy(redirect.Normal))

	req := request(t, http.MethodGet, origin.URL, client.WithHeader("Authorization", "Bearer secret"))
	resp, err := client.Send(t.Context(), c, req, body.String())
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if resp.Body != "" {
		t.Errorf("authorization leaked to another host: %q", resp.Body)
	}
}

func basicAuthServer(t *testing.T, user, pass string, calls *atomic.Int32) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="Fake Realm"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		fmt.Fprintf(w, `{"authenticated":true,"user":%q}`, u)
	}))
	t.Cleanup(ts.Close)

	return ts
}

func TestSend_Authenticator(t *testing.T) {
	var calls atomic.Int32
	ts := basicAuthServer(t, "admin", "admin123", &calls)

	var challenged []auth.Challenge
	a := auth.Func(func(_ context.Context, ch auth.Challenge) (auth.Credentials, bool) {
		challenged = append(challenged, ch)
		return auth.Credentials{Username: "admin", Secret: []byte("admin123")}, true
	})

	c := build(t, client.WithAuthenticator(a))

	resp, err := client.Send(t.Context(), c, request(t, http.MethodGet, ts.URL+"/basic-auth/admin/admin123"), body.String())
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Previous == nil || resp.Previous.StatusCode != http.StatusUnauthorized {
		t.Error("expected the 401 in the response history")
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("expected 2 server calls, got %d", n)
	}

	host := strings.TrimPrefix(ts.URL, "http://")
	if diff := cmp.Diff([]auth.Challenge{{Scheme: "Basic", Realm: "Fake Realm", Host: host}}, challenged); diff != "" {
		t.Errorf("challenge mismatch (-want +got):\n%s", diff)
	}
}

func TestSend_WithoutAuthenticator(t *testing.T) {
	var calls atomic.Int32
	ts := basicAuthServer(t, "admin", "admin123", &calls)

	c := build(t)

	resp, err := client.Send(t.Context(), c, request(t, http.MethodGet, ts.URL), body.Discarding())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
}

func TestSend_AuthRetriesOnce(t *testing.T) {
	var calls atomic.Int32
	ts := basicAuthServer(t, "admin", "admin123", &calls)

	var asked atomic.Int32
	c := build(t, client.WithAuthenticator(auth.Func(func(context.Context, auth.Challenge) (auth.Credentials, bool) {
		asked.Add(1)
		return auth.Credentials{Username: "admin", Secret: []byte("wrong")}, true
	})))

	resp, err := client.Send(t.Context(), c, request(t, http.MethodGet, ts.URL), body.Discarding())
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected the second 401 to be returned, got %d", resp.StatusCode)
	}
	if asked.Load() != 1 || calls.Load() != 2 {
		t.Errorf("expected one retry, authenticator asked %d times, server called %d times", asked.Load(), calls.Load())
	}
}

func TestSend_AuthenticatorDeclines(t *testing.T) {
	var calls atomic.Int32
	ts := basicAuthServer(t, "admin", "admin123", &calls)

	c := build(t, client.WithAuthenticator(auth.Func(func(context.Context, auth.Challenge) (auth.Credentials, bool) {
		return auth.Credentials{}, false
	})))

	resp, err := client.Send(t.Context(), c, request(t, http.MethodGet, ts.URL), body.Discarding())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized || calls.Load() != 1 {
		t.Errorf("expected a single 401, got %d after %d calls", resp.StatusCode, calls.Load())
	}
}

func TestSend_Timeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	testCases := []struct {
		name string
		opts []client.Option
		req  []client.RequestOption
	}{
		{name: "client default", opts: []client.Option{client.WithTimeout(50 * time.Millisecond)}},
		{name: "request override", opts: []client.Option{client.WithTimeout(time.Minute)}, req: []client.RequestOption{client.WithRequestTimeout(50 * time.Millisecond)}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := build(t, tc.opts...)

			start := time.Now()
			_, err := client.Send(t.Context(), c, request(t, http.MethodGet, ts.URL, tc.req...), body.Discarding())
			if !errors.Is(err, client.ErrTimeout) {
				t.Fatalf("expected ErrTimeout, got %v", err)
			}
			if elapsed := time.Since(start); elapsed > 5*time.Second {
				t.Errorf("timeout took %v", elapsed)
			}
		})
	}
}

func TestSend_ConnectError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := build(t, client.WithConnectTimeout(time.Second))

	_, err = client.Send(t.Context(), c, request(t, http.MethodGet, "http://"+addr), body.Discarding())
	if !errors.Is(err, client.ErrConnect) {
		t.Fatalf("expected ErrConnect, got %v", err)
	}

	var tErr *client.TransportError
	if !errors.As(err, &tErr) || tErr.Addr != addr {
		t.Errorf("expected transport error for %s, got %v", addr, err)
	}
}

func TestSend_TLSError(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ts.Close()

	c := build(t)

	_, err := client.Send(t.Context(), c, request(t, http.MethodGet, ts.URL), body.Discarding())
	if !errors.Is(err, client.ErrTLS) {
		t.Fatalf("expected ErrTLS, got %v", err)
	}
}

func TestSend_HTTP2(t *testing.T) {
	ts := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, r.Proto)
	}))
	ts.EnableHTTP2 = true
	ts.StartTLS()
	defer ts.Close()

	c := build(t, client.WithTLSConfig(trustedTLS(ts)))

	resp, err := client.Send(t.Context(), c, request(t, http.MethodGet, ts.URL), body.String())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.Version != transport.HTTP2 || resp.Body != "HTTP/2.0" {
		t.Errorf("expected HTTP/2, got %v with body %q", resp.Version, resp.Body)
	}

	resp, err = client.Send(t.Context(), c, request(t, http.MethodGet, ts.URL, client.WithExpectVersion(transport.HTTP11)), body.String())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.Version != transport.HTTP11 {
		t.Errorf("expected per-request HTTP/1.1, got %v", resp.Version)
	}
}

func TestSend_LinesOutlivesSend(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := range 3 {
			fmt.Fprintf(w, "line %d\n", i)
			w.(http.Flusher).Flush()
		}
	}))
	defer ts.Close()

	c := build(t, client.WithTimeout(5*time.Second))

	resp, err := client.Send(t.Context(), c, request(t, http.MethodGet, ts.URL), body.Lines())
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	lines, err := resp.Body.Collect()
	if err != nil {
		t.Fatalf("reading lines: %v", err)
	}
	if diff := cmp.Diff([]string{"line 0", "line 1", "line 2"}, lines); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
}

func TestSend_Form(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprintf(w, "%s %s", r.PostForm.Get("firstName"), r.PostForm.Get("lastName"))
	}))
	defer ts.Close()

	c := build(t)

	form := map[string][]string{"firstName": {"Ramin"}, "lastName": {"Zare"}}
	resp, err := client.Send(t.Context(), c, request(t, http.MethodPost, ts.URL, client.WithForm(form)), body.String())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.Body != "Ramin Zare" {
		t.Errorf("unexpected echo %q", resp.Body)
	}
}

func TestSend_Multipart(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		f, hdr, err := r.FormFile("upload")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)

		fmt.Fprintf(w, "%s|%s|%s", r.FormValue("name"), hdr.Filename, data)
	}))
	defer ts.Close()

	c := build(t)

	req := request(t, http.MethodPost, ts.URL, client.WithMultipart(
		client.FormField("name", "courier"),
		client.FormFile("upload", "a.txt", []byte("file body")),
	))
	resp, err := client.Send(t.Context(), c, req, body.String())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.StatusCode != http.StatusOK || resp.Body != "courier|a.txt|file body" {
		t.Errorf("unexpected response %d %q", resp.StatusCode, resp.Body)
	}
}

func TestSendAsync(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, r.URL.Path)
	}))
	defer ts.Close()

	p := pool.New(2)
	c := build(t, client.WithPool(p))

	paths := []string{"/a", "/b", "/c", "/d"}
	futures := make([]*pool.Future[string], len(paths))
	for i, path := range paths {
		f := client.SendAsync(t.Context(), c, request(t, http.MethodGet, ts.URL+path), body.String())
		futures[i] = pool.Map(f, func(r *client.Response[string]) string { return r.Body })
	}

	for i, f := range futures {
		got, err := f.Get(t.Context())
		if err != nil {
			t.Fatalf("future %d: %v", i, err)
		}
		if got != paths[i] {
			t.Errorf("future %d: expected %q, got %q", i, paths[i], got)
		}
	}
}

func TestSendAsync_LinesOutliveTask(t *testing.T) {
	more := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "one\n")
		w.(http.Flusher).Flush()
		<-more
		io.WriteString(w, "two\n")
	}))
	defer ts.Close()
	proceed := sync.OnceFunc(func() { close(more) })
	defer proceed()

	c := build(t, client.WithPool(pool.New(1)))

	resp, err := client.SendAsync(t.Context(), c, request(t, http.MethodGet, ts.URL), body.Lines()).Wait()
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	proceed()

	got, err := resp.Body.Collect()
	if err != nil {
		t.Fatalf("reading lines after the task finished: %v", err)
	}
	if diff := cmp.Diff([]string{"one", "two"}, got); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
}

func TestSendAsync_Cancel(t *testing.T) {
	release := make(chan struct{})
	arrived := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(arrived)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	c := build(t, client.WithPool(pool.New(1)))

	f := client.SendAsync(t.Context(), c, request(t, http.MethodGet, ts.URL), body.String())
	<-arrived

	if !f.Cancel() {
		t.Fatal("expected cancel to win")
	}
	if _, err := f.Get(t.Context()); !errors.Is(err, client.ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
	if f.Cancel() {
		t.Error("second cancel must be a no-op")
	}
}

func TestClient_StateHook(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/end", http.StatusFound)
		}
	}))
	defer ts.Close()

	var states []client.State
	c := build(t,
		client.WithRedirectPolicy(redirect.Normal),
		client.WithStateHook(func(_ context.Context, _ *client.Request, s client.State) {
			states = append(states, s)
		}),
	)

	if _, err := client.Send(t.Context(), c, request(t, http.MethodGet, ts.URL+"/start"), body.Discarding()); err != nil {
		t.Fatalf("send: %v", err)
	}

	exp := []client.State{
		client.Building,
		client.Connecting, client.Sending, client.AwaitingResponse,
		client.Redirecting,
		client.Connecting, client.Sending, client.AwaitingResponse,
		client.Complete,
	}
	if diff := cmp.Diff(exp, states); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}
	if !states[len(states)-1].Terminal() {
		t.Error("expected a terminal final state")
	}
}

func TestClient_Metrics(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/end", http.StatusFound)
		}
	}))
	defer ts.Close()

	reg := prometheus.NewRegistry()
	c := build(t, client.WithMetrics(reg), client.WithRedirectPolicy(redirect.Always))

	// A second client on the same registry shares the collectors.
	build(t, client.WithMetrics(reg))

	for range 2 {
		if _, err := client.Send(t.Context(), c, request(t, http.MethodGet, ts.URL+"/start"), body.Discarding()); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	expected := `
# HELP courier_redirects_total Redirect hops followed
# TYPE courier_redirects_total counter
courier_redirects_total 2
# HELP courier_requests_total Completed logical requests by method, final status and protocol
# TYPE courier_requests_total counter
courier_requests_total{method="GET",protocol="HTTP/1.1",status="200"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "courier_requests_total", "courier_redirects_total"); err != nil {
		t.Error(err)
	}
}

func TestClient_PropagatesTraceAndRequestID(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	var gotTrace, gotID []string
	var mu sync.Mutex
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotTrace = append(gotTrace, r.Header.Get("Traceparent"))
		gotID = append(gotID, r.Header.Get("X-Request-ID"))
		mu.Unlock()

		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/end", http.StatusFound)
		}
	}))
	defer ts.Close()

	c := build(t, client.WithRequestID(), client.WithRedirectPolicy(redirect.Normal))

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(t.Context(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	if _, err := client.Send(ctx, c, request(t, http.MethodGet, ts.URL+"/start"), body.Discarding()); err != nil {
		t.Fatalf("send: %v", err)
	}

	if len(gotTrace) != 2 {
		t.Fatalf("expected 2 hops, got %d", len(gotTrace))
	}
	for i := range gotTrace {
		if !strings.Contains(gotTrace[i], traceID.String()) {
			t.Errorf("hop %d: expected trace id in %q", i, gotTrace[i])
		}
	}
	if gotID[0] == "" || gotID[0] != gotID[1] {
		t.Errorf("expected one request id across hops, got %q", gotID)
	}
}

func TestClient_Throttle(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ts.Close()

	c := build(t, client.WithThrottle(10, 1))

	start := time.Now()
	for range 3 {
		if _, err := client.Send(t.Context(), c, request(t, http.MethodGet, ts.URL), body.Discarding()); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	// One token up front, then one every 100ms.
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("expected throttling to slow requests, took %v", elapsed)
	}
}

func TestBuild_InvalidOptions(t *testing.T) {
	testCases := map[string]client.Option{
		"zero throttle":      client.WithThrottle(0, 1),
		"zero redirects":     client.WithMaxRedirects(0),
		"nil authenticator":  client.WithAuthenticator(nil),
		"nil pool":           client.WithPool(nil),
		"bad version":        client.WithVersion(transport.Version(9)),
		"bad policy":         client.WithRedirectPolicy(redirect.Policy(7)),
		"negative timeout":   client.WithTimeout(-time.Second),
		"zero connect limit": client.WithConnectTimeout(0),
	}

	for name, opt := range testCases {
		t.Run(name, func(t *testing.T) {
			if _, err := client.Build(opt); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestClient_Do(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			io.WriteString(w, `{"body":"hello"}`)
		case "/forbidden":
			http.Error(w, "nope", http.StatusForbidden)
		default:
			http.Error(w, "missing", http.StatusNotFound)
		}
	}))
	defer ts.Close()

	c := build(t)

	var got payload
	if err := c.Do(t.Context(), request(t, http.MethodGet, ts.URL+"/ok"), http.StatusOK, client.WithDestination(&got)); err != nil {
		t.Fatalf("do: %v", err)
	}
	if got.Body != "hello" {
		t.Errorf("expected decoded body, got %+v", got)
	}

	err := c.Do(t.Context(), request(t, http.MethodGet, ts.URL+"/missing"), http.StatusOK)
	var statusErr *client.UnexpectedStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *UnexpectedStatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusNotFound || !strings.Contains(statusErr.Body, "missing") {
		t.Errorf("unexpected status error %+v", statusErr)
	}
	if errors.Is(err, client.ErrAuthFailure) {
		t.Error("404 must not be an auth failure")
	}

	err = c.Do(t.Context(), request(t, http.MethodGet, ts.URL+"/forbidden"), http.StatusOK)
	if !errors.Is(err, client.ErrUnexpectedStatusCode) || !errors.Is(err, client.ErrAuthFailure) {
		t.Errorf("expected auth failure, got %v", err)
	}
}

func TestClient_Download(t *testing.T) {
	const content = "\x89PNG fake image"

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		io.WriteString(w, content)
	}))
	defer ts.Close()

	c := build(t)
	dir := t.TempDir()

	sum := sha256.Sum256([]byte(content))
	dest := filepath.Join(dir, "image.png")
	err := c.Download(t.Context(), request(t, http.MethodGet, ts.URL+"/image/png"), http.StatusOK, dest,
		client.WithChecksum(sha256.New(), hex.EncodeToString(sum[:])),
	)
	if err != nil {
		t.Fatalf("download: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil || string(got) != content {
		t.Errorf("unexpected file %q, %v", got, err)
	}

	err = c.Download(t.Context(), request(t, http.MethodGet, ts.URL+"/missing"), http.StatusOK, filepath.Join(dir, "missing"))
	if !errors.Is(err, client.ErrUnexpectedStatusCode) {
		t.Errorf("expected ErrUnexpectedStatusCode, got %v", err)
	}

	err = c.Download(t.Context(), request(t, http.MethodGet, ts.URL), http.StatusOK, filepath.Join(dir, "bad"),
		client.WithChecksum(sha256.New(), "00"),
	)
	if !errors.Is(err, client.ErrChecksumMismatch) {
		t.Errorf("expected ErrChecksumMismatch, got %v", err)
	}

	if err := c.Download(t.Context(), request(t, http.MethodGet, ts.URL), http.StatusOK, ""); err == nil {
		t.Error("expected error for empty destPath")
	}
}

func TestClient_DownloadAsync(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, r.URL.Path)
	}))
	defer ts.Close()

	c := build(t, client.WithPool(pool.New(2)))
	dir := t.TempDir()

	kinds := []string{"jpeg", "png", "svg", "webp"}
	futures := make([]*pool.Future[string], len(kinds))
	for i, kind := range kinds {
		futures[i] = c.DownloadAsync(t.Context(), request(t, http.MethodGet, ts.URL+"/image/"+kind), http.StatusOK, filepath.Join(dir, kind))
	}

	if err := pool.Join(t.Context(), futures...); err != nil {
		t.Fatalf("downloads: %v", err)
	}

	for i, kind := range kinds {
		path, _ := futures[i].Wait()
		got, err := os.ReadFile(path)
		if err != nil || string(got) != "/image/"+kind {
			t.Errorf("%s: unexpected file %q, %v", kind, got, err)
		}
	}

	if err := c.DownloadAsync(t.Context(), request(t, http.MethodGet, ts.URL), http.StatusOK, "").Err(); err == nil {
		t.Error("expected error for empty destPath")
	}
}

func TestGet(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		io.WriteString(w, "legacy")
	}))
	defer ts.Close()

	got, err := client.Get(t.Context(), ts.URL)
	if err != nil || got != "legacy" {
		t.Errorf("expected %q, got %q, %v", "legacy", got, err)
	}

	if _, err := client.Get(t.Context(), ts.URL+"/fail"); !errors.Is(err, client.ErrUnexpectedStatusCode) {
		t.Errorf("expected ErrUnexpectedStatusCode, got %v", err)
	}
}

func TestURL(t *testing.T) {
	u := client.URL("http", "localhost", "/get",
		client.WithPort(8080),
		client.WithQueryStrings(map[string]string{"a": "1"}),
	)

	if got := u.String(); got != "http://localhost:8080/get?a=1" {
		t.Errorf("unexpected url %q", got)
	}
}
