package twitch

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

const thumbnailTimeout = 10 * time.Second

// ThumbnailURL expands a Helix thumbnail template ({width}x{height}) to a
// concrete size.
func ThumbnailURL(template string, width, height int) string {
	out := strings.ReplaceAll(template, "{width}", strconv.Itoa(width))
	return strings.ReplaceAll(out, "{height}", strconv.Itoa(height))
}

// FetchThumbnail downloads a stream preview image. Thumbnails are served
// from a CDN and fetched often, so this path skips the Helix client and
// its token plumbing entirely.
func FetchThumbnail(fetcher *fasthttp.Client, template string, width, height int) ([]byte, error) {
	if fetcher == nil {
		fetcher = &fasthttp.Client{}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(ThumbnailURL(template, width, height))
	req.Header.SetMethod(fasthttp.MethodGet)

	if err := fetcher.DoTimeout(req, resp, thumbnailTimeout); err != nil {
		return nil, fmt.Errorf("fetch thumbnail: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("fetch thumbnail: status=%d", resp.StatusCode())
	}

	// resp goes back to fasthttp's pool on return, so the body must be
	// copied out once.
	out := make([]byte, len(resp.Body()))
	copy(out, resp.Body())
	return out, nil
}
