package httpbin

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"strings"
	"sync"

	"github.com/adamwoolhether/courier/internal/web"
	"github.com/adamwoolhether/courier/internal/web/errs"
)

// webpLossless is a 1x1 lossless WebP; the standard library has no WebP
// encoder.
const webpLossless = "UklGRhoAAABXRUJQVlA4TA0AAAAvAAAAEAcQERGIiP4HAA=="

type picture struct {
	contentType string
	data        []byte
}

var pictures = sync.OnceValues(func() (map[string]picture, error) {
	img := gradient(64, 64)

	var pngBuf, jpegBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	if err := jpeg.Encode(&jpegBuf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("encoding jpeg: %w", err)
	}

	svg, err := static.ReadFile("static/logo.svg")
	if err != nil {
		return nil, err
	}

	webp, err := base64.StdEncoding.DecodeString(webpLossless)
	if err != nil {
		return nil, fmt.Errorf("decoding webp: %w", err)
	}

	return map[string]picture{
		"png":  {contentType: "image/png", data: pngBuf.Bytes()},
		"jpeg": {contentType: "image/jpeg", data: jpegBuf.Bytes()},
		"svg":  {contentType: "image/svg+xml", data: svg},
		"webp": {contentType: "image/webp", data: webp},
	}, nil
})

func gradient(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 0xd8, A: 0xff})
		}
	}

	return img
}

func (b bin) image(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return servePicture(ctx, w, r.PathValue("kind"))
}

// imageByAccept picks the format from the Accept header, PNG by default.
func (b bin) imageByAccept(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	accept := r.Header.Get("Accept")

	kind := "png"
	for _, k := range []string{"webp", "svg", "jpeg", "png"} {
		if strings.Contains(accept, "image/"+k) {
			kind = k
			break
		}
	}

	return servePicture(ctx, w, kind)
}

func servePicture(ctx context.Context, w http.ResponseWriter, kind string) error {
	all, err := pictures()
	if err != nil {
		return errs.NewInternal(err)
	}

	p, ok := all[kind]
	if !ok {
		return errs.Newf(http.StatusNotFound, "no image of type %q", kind)
	}

	return web.Respond(ctx, w, http.StatusOK, p.contentType, bytes.NewReader(p.data))
}
