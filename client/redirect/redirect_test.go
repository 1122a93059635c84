package redirect_test

import (
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/adamwoolhether/courier/client/redirect"
	"github.com/google/go-cmp/cmp"
)

type result struct {
	Followed bool
	Method   string
	URL      string
	Header   http.Header
	Body     string
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parsing %q: %v", raw, err)
	}

	return u
}

func TestPolicy_Follow(t *testing.T) {
	post := func(t *testing.T, raw string) redirect.Step {
		return redirect.Step{
			Method: http.MethodPost,
			URL:    mustURL(t, raw),
			Header: http.Header{
				"Content-Type":  {"application/x-www-form-urlencoded"},
				"Authorization": {"Basic YTpi"},
				"Accept":        {"*/*"},
			},
			Body: []byte("a=b"),
		}
	}

	testCases := []struct {
		name     string
		policy   redirect.Policy
		prev     func(t *testing.T) redirect.Step
		status   int
		location string
		exp      result
	}{
		{
			name:     "never short-circuits",
			policy:   redirect.Never,
			prev:     func(t *testing.T) redirect.Step { return post(t, "http://a.test/x") },
			status:   http.StatusFound,
			location: "/get",
		},
		{
			name:     "non-redirect status",
			policy:   redirect.Always,
			prev:     func(t *testing.T) redirect.Step { return post(t, "http://a.test/x") },
			status:   http.StatusNotModified,
			location: "/get",
		},
		{
			name:   "missing location",
			policy: redirect.Always,
			prev:   func(t *testing.T) redirect.Step { return post(t, "http://a.test/x") },
			status: http.StatusFound,
		},
		{
			name:     "unparsable location",
			policy:   redirect.Always,
			prev:     func(t *testing.T) redirect.Step { return post(t, "http://a.test/x") },
			status:   http.StatusFound,
			location: "http://[::1",
		},
		{
			name:     "unsupported scheme",
			policy:   redirect.Always,
			prev:     func(t *testing.T) redirect.Step { return post(t, "http://a.test/x") },
			status:   http.StatusFound,
			location: "ftp://a.test/file",
		},
		{
			name:     "302 rewrites post to get and drops body",
			policy:   redirect.Normal,
			prev:     func(t *testing.T) redirect.Step { return post(t, "http://a.test/x") },
			status:   http.StatusFound,
			location: "/get?x=1",
			exp: result{
				Followed: true,
				Method:   http.MethodGet,
				URL:      "http://a.test/get?x=1",
				Header: http.Header{
					"Authorization": {"Basic YTpi"},
					"Accept":        {"*/*"},
				},
			},
		},
		{
			name:     "307 keeps method and body",
			policy:   redirect.Normal,
			prev:     func(t *testing.T) redirect.Step { return post(t, "http://a.test/x") },
			status:   http.StatusTemporaryRedirect,
			location: "y",
			exp: result{
				Followed: true,
				Method:   http.MethodPost,
				URL:      "http://a.test/y",
				Header: http.Header{
					"Content-Type":  {"application/x-www-form-urlencoded"},
					"Authorization": {"Basic YTpi"},
					"Accept":        {"*/*"},
				},
				Body: "a=b",
			},
		},
		{
			name:   "303 keeps head",
			policy: redirect.Always,
			prev: func(t *testing.T) redirect.Step {
				return redirect.Step{Method: http.MethodHead, URL: mustURL(t, "http://a.test/x")}
			},
			status:   http.StatusSeeOther,
			location: "/z",
			exp: result{
				Followed: true,
				Method:   http.MethodHead,
				URL:      "http://a.test/z",
				Header:   http.Header{},
			},
		},
		{
			name:     "normal refuses downgrade",
			policy:   redirect.Normal,
			prev:     func(t *testing.T) redirect.Step { return post(t, "https://a.test/x") },
			status:   http.StatusFound,
			location: "http://a.test/get",
		},
		{
			name:     "always follows downgrade",
			policy:   redirect.Always,
			prev:     func(t *testing.T) redirect.Step { return post(t, "https://a.test/x") },
			status:   http.StatusMovedPermanently,
			location: "http://a.test/get",
			exp: result{
				Followed: true,
				Method:   http.MethodGet,
				URL:      "http://a.test/get",
				Header:   http.Header{"Accept": {"*/*"}},
			},
		},
		{
			name:     "cross host strips authorization",
			policy:   redirect.Normal,
			prev:     func(t *testing.T) redirect.Step { return post(t, "http://a.test/x") },
			status:   http.StatusPermanentRedirect,
			location: "http://b.test/x",
			exp: result{
				Followed: true,
				Method:   http.MethodPost,
				URL:      "http://b.test/x",
				Header: http.Header{
					"Content-Type": {"application/x-www-form-urlencoded"},
					"Accept":       {"*/*"},
				},
				Body: "a=b",
			},
		},
		{
			name:     "explicit default port is same origin",
			policy:   redirect.Normal,
			prev:     func(t *testing.T) redirect.Step { return post(t, "http://a.test/x") },
			status:   http.StatusTemporaryRedirect,
			location: "http://A.test:80/y",
			exp: result{
				Followed: true,
				Method:   http.MethodPost,
				URL:      "http://A.test:80/y",
				Header: http.Header{
					"Content-Type":  {"application/x-www-form-urlencoded"},
					"Authorization": {"Basic YTpi"},
					"Accept":        {"*/*"},
				},
				Body: "a=b",
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			prev := tc.prev(t)
			before := prev.Header.Clone()

			step, ok := tc.policy.Follow(prev, tc.status, tc.location)

			got := result{Followed: ok}
			if ok {
				got.Method = step.Method
				got.URL = step.URL.String()
				got.Header = step.Header
				got.Body = string(step.Body)
			}

			if diff := cmp.Diff(tc.exp, got); diff != "" {
				t.Errorf("follow mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(before, prev.Header); diff != "" {
				t.Errorf("previous step was mutated (-want +got):\n%s", diff)
			}
		})
	}
}

func TestChain_HopLimit(t *testing.T) {
	chain := redirect.NewChain(redirect.Always, 2)
	step := redirect.Step{Method: http.MethodGet, URL: mustURL(t, "http://a.test/0")}

	for i := range 2 {
		next, ok, err := chain.Next(step, http.StatusFound, "/loop")
		if err != nil || !ok {
			t.Fatalf("hop %d: expected follow, got ok=%v err=%v", i, ok, err)
		}
		step = next
	}

	_, ok, err := chain.Next(step, http.StatusFound, "/loop")
	if ok {
		t.Fatal("expected the third hop to be refused")
	}
	if !errors.Is(err, redirect.ErrTooManyRedirects) {
		t.Fatalf("expected ErrTooManyRedirects, got %v", err)
	}

	var rErr *redirect.Error
	if !errors.As(err, &rErr) {
		t.Fatalf("expected *redirect.Error, got %T", err)
	}
	if rErr.Hops != 2 || rErr.Status != http.StatusFound || rErr.Location != "/loop" {
		t.Errorf("unexpected error context: %+v", rErr)
	}
	if chain.Hops() != 2 {
		t.Errorf("expected 2 hops, got %d", chain.Hops())
	}
}

func TestChain_DefaultLimit(t *testing.T) {
	chain := redirect.NewChain(redirect.Normal, 0)
	step := redirect.Step{Method: http.MethodGet, URL: mustURL(t, "http://a.test/")}

	var err error
	for range redirect.DefaultMaxHops + 1 {
		if step, _, err = chain.Next(step, http.StatusFound, "/again"); err != nil {
			break
		}
	}

	if !errors.Is(err, redirect.ErrTooManyRedirects) {
		t.Fatalf("expected ErrTooManyRedirects after %d hops, got %v", redirect.DefaultMaxHops, err)
	}
}

func TestParsePolicy(t *testing.T) {
	for _, p := range []redirect.Policy{redirect.Never, redirect.Always, redirect.Normal} {
		b, _ := p.MarshalText()

		var got redirect.Policy
		if err := got.UnmarshalText(b); err != nil || got != p {
			t.Errorf("round trip %v: got %v, %v", p, got, err)
		}
	}

	if _, err := redirect.ParsePolicy("sometimes"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
