package httpbin

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adamwoolhether/courier/internal/web"
	"github.com/adamwoolhether/courier/internal/web/errs"
	"github.com/adamwoolhether/courier/internal/web/mux"
	"golang.org/x/text/encoding/htmlindex"
)

// maxMemory bounds the multipart form held in memory by /post.
const maxMemory = 8 << 20

// echo is the document /get, /post and /anything answer with.
type echo struct {
	Args    map[string]any    `json:"args"`
	Data    string            `json:"data"`
	Files   map[string]string `json:"files"`
	Form    map[string]any    `json:"form"`
	Headers map[string]string `json:"headers"`
	JSON    any               `json:"json"`
	Method  string            `json:"method"`
	Origin  string            `json:"origin"`
	URL     string            `json:"url"`
}

func newEcho(r *http.Request) echo {
	return echo{
		Args:    flatten(r.URL.Query()),
		Files:   map[string]string{},
		Form:    map[string]any{},
		Headers: headers(r),
		Method:  r.Method,
		Origin:  origin(r),
		URL:     fullURL(r),
	}
}

func (b bin) xml(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	f, err := static.Open("static/sample.xml")
	if err != nil {
		return errs.NewInternal(err)
	}
	defer f.Close()

	return web.Respond(ctx, w, http.StatusOK, "application/xml", f)
}

func (b bin) get(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	e := newEcho(r)

	return web.RespondJSON(ctx, w, http.StatusOK, struct {
		Args    map[string]any    `json:"args"`
		Headers map[string]string `json:"headers"`
		Origin  string            `json:"origin"`
		URL     string            `json:"url"`
	}{e.Args, e.Headers, e.Origin, e.URL})
}

func (b bin) headers(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.RespondJSON(ctx, w, http.StatusOK, map[string]any{"headers": headers(r)})
}

func (b bin) userAgent(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.RespondJSON(ctx, w, http.StatusOK, map[string]string{"user-agent": r.UserAgent()})
}

func (b bin) post(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	e := newEcho(r)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return errs.New(http.StatusBadRequest, fmt.Errorf("parsing form: %w", err))
		}
		e.Form = flatten(r.PostForm)

	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMemory); err != nil {
			return errs.New(http.StatusBadRequest, fmt.Errorf("parsing multipart form: %w", err))
		}
		e.Form = flatten(r.MultipartForm.Value)
		for name, fhs := range r.MultipartForm.File {
			if len(fhs) == 0 {
				continue
			}
			content, err := readFile(fhs[0])
			if err != nil {
				return errs.New(http.StatusBadRequest, err)
			}
			e.Files[name] = content
		}

	default:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return errs.New(http.StatusBadRequest, fmt.Errorf("reading body: %w", err))
		}
		e.Data = string(data)

		if mediaType == "application/json" && len(data) > 0 {
			if err := json.Unmarshal(data, &e.JSON); err != nil {
				return errs.New(http.StatusBadRequest, fmt.Errorf("parsing json: %w", err))
			}
		}
	}

	return web.RespondJSON(ctx, w, http.StatusOK, e)
}

type redirectToParams struct {
	URL        string `query:"url" validate:"required"`
	StatusCode int    `query:"status_code" validate:"gte=300,lte=399"`
}

func (b bin) redirectTo(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	code, err := web.QueryInt(r, "status_code", http.StatusFound)
	if err != nil {
		return err
	}

	p := redirectToParams{URL: r.URL.Query().Get("url"), StatusCode: code}
	if err := web.Validate(p); err != nil {
		return err
	}

	// http.Redirect would clean the target; the raw value is sent as given.
	w.Header().Set("Location", p.URL)
	w.WriteHeader(p.StatusCode)

	return nil
}

type redirectParams struct {
	N int `param:"n" validate:"min=1,max=100"`
}

func (b bin) redirect(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	p, err := redirectN(r)
	if err != nil {
		return err
	}

	next := "/get"
	if p.N > 1 {
		next = "/redirect/" + strconv.Itoa(p.N-1)
	}

	w.Header().Set("Location", next)
	w.WriteHeader(http.StatusFound)

	return nil
}

func (b bin) absoluteRedirect(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	p, err := redirectN(r)
	if err != nil {
		return err
	}

	next := "/get"
	if p.N > 1 {
		next = "/absolute-redirect/" + strconv.Itoa(p.N-1)
	}

	return web.Redirect(w, r, baseURL(r)+next, http.StatusFound)
}

func redirectN(r *http.Request) (redirectParams, error) {
	n, err := web.ParamInt(r, "n")
	if err != nil {
		return redirectParams{}, err
	}

	p := redirectParams{N: n}
	if err := web.Validate(p); err != nil {
		return redirectParams{}, err
	}

	return p, nil
}

// Realm is the realm of the /basic-auth challenge.
const Realm = "Fake Realm"

func (b bin) basicAuth(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	wantUser, wantPass := r.PathValue("user"), r.PathValue("passwd")

	user, pass, ok := r.BasicAuth()
	if !ok || !equal(user, wantUser) || !equal(pass, wantPass) {
		w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", Realm))
		mux.SetStatusCode(ctx, http.StatusUnauthorized)
		w.WriteHeader(http.StatusUnauthorized)
		return nil
	}

	return web.RespondJSON(ctx, w, http.StatusOK, map[string]any{"authenticated": true, "user": user})
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type statusParams struct {
	Code int `param:"code" validate:"min=100,max=599"`
}

func (b bin) status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	code, err := web.ParamInt(r, "code")
	if err != nil {
		return err
	}
	if err := web.Validate(statusParams{Code: code}); err != nil {
		return err
	}

	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther, http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		w.Header().Set("Location", "/redirect/1")
	case http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", Realm))
	}

	w.WriteHeader(code)

	return nil
}

type delayParams struct {
	Seconds float64 `param:"seconds" validate:"gte=0"`
}

func (b bin) delay(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	secs, err := web.ParamFloat(r, "seconds")
	if err != nil {
		return err
	}
	if err := web.Validate(delayParams{Seconds: secs}); err != nil {
		return err
	}

	d := min(time.Duration(secs*float64(time.Second)), b.maxDelay)

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil
	}

	return b.get(ctx, w, r)
}

type bytesParams struct {
	N    int `param:"n" validate:"min=0,max=102400"`
	Seed int `query:"seed" validate:"gte=0"`
}

func (b bin) bytes(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	n, err := web.ParamInt(r, "n")
	if err != nil {
		return err
	}
	seed, err := web.QueryInt(r, "seed", int(time.Now().UnixNano()&0x7fffffff))
	if err != nil {
		return err
	}

	p := bytesParams{N: n, Seed: seed}
	if err := web.Validate(p); err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(uint64(p.Seed), uint64(p.Seed)))
	buf := make([]byte, p.N)
	for i := range buf {
		buf[i] = byte(rng.UintN(256))
	}

	w.Header().Set("Content-Length", strconv.Itoa(p.N))

	return web.Respond(ctx, w, http.StatusOK, "application/octet-stream", bytes.NewReader(buf))
}

type streamParams struct {
	N int `param:"n" validate:"min=1,max=100"`
}

func (b bin) stream(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	n, err := web.ParamInt(r, "n")
	if err != nil {
		return err
	}
	if err := web.Validate(streamParams{N: n}); err != nil {
		return err
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "application/json")
	mux.SetStatusCode(ctx, http.StatusOK)

	e := newEcho(r)
	enc := json.NewEncoder(w)
	for i := range n {
		line := struct {
			ID      int               `json:"id"`
			Args    map[string]any    `json:"args"`
			Headers map[string]string `json:"headers"`
			Origin  string            `json:"origin"`
			URL     string            `json:"url"`
		}{i, e.Args, e.Headers, e.Origin, e.URL}

		if err := enc.Encode(line); err != nil {
			return nil
		}
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return nil
		}
	}

	return nil
}

// sampleText is served by /encoding in the requested charset.
const sampleText = "Größe: naïve café, déjà vu.\nÜber façade.\n"

func (b bin) encoding(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	name := r.PathValue("charset")

	enc, err := htmlindex.Get(name)
	if err != nil {
		return errs.Newf(http.StatusNotFound, "unknown charset %q", name)
	}
	canonical, err := htmlindex.Name(enc)
	if err != nil {
		return errs.NewInternal(err)
	}

	encoded, err := enc.NewEncoder().String(sampleText)
	if err != nil {
		return errs.NewInternal(fmt.Errorf("encoding sample as %s: %w", canonical, err))
	}

	return web.Respond(ctx, w, http.StatusOK, "text/plain; charset="+canonical, strings.NewReader(encoded))
}

// /////////////////////////////////////////////////////////////////

func flatten(values map[string][]string) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if len(v) == 1 {
			out[k] = v[0]
			continue
		}
		out[k] = v
	}

	return out
}

func headers(r *http.Request) map[string]string {
	out := make(map[string]string, len(r.Header)+1)
	for k, v := range r.Header {
		out[k] = strings.Join(v, ",")
	}
	out["Host"] = r.Host

	return out
}

func origin(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	return scheme + "://" + r.Host
}

func fullURL(r *http.Request) string {
	return baseURL(r) + r.URL.RequestURI()
}

func readFile(fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("opening upload: %w", err)
	}
	defer f.Close()

	b, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("reading upload: %w", err)
	}

	return string(b), nil
}
