package utils

import (
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateTrackingToken(t *testing.T) {
	a := GenerateTrackingToken()
	b := GenerateTrackingToken()

	assert.Len(t, a, 28)
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "/", "token must be URL-safe")
}

func TestInjectTrackingAddsPixel(t *testing.T) {
	out := InjectTracking("<p>Hello</p>", "https://track.example.com", "tok123")

	assert.Contains(t, out, "<p>Hello</p>")
	assert.Contains(t, out, "https://track.example.com/track/open/tok123")
	assert.Contains(t, out, `width="1" height="1"`)
}

func TestInjectTrackingRewritesLinks(t *testing.T) {
	body := `<p>See <a href="https://example.com/pricing">pricing</a> and ` +
		`<a href="https://example.com/docs">docs</a>.</p>`
	out := InjectTracking(body, "https://track.example.com", "tok123")

	assert.NotContains(t, out, `href="https://example.com/pricing"`)
	assert.Contains(t, out,
		fmt.Sprintf("/track/click/tok123?url=%s", url.QueryEscape("https://example.com/pricing")))
	assert.Contains(t, out,
		fmt.Sprintf("/track/click/tok123?url=%s", url.QueryEscape("https://example.com/docs")))

	// Both links rewritten, one pixel appended.
	assert.Equal(t, 2, strings.Count(out, "/track/click/"))
	assert.Equal(t, 1, strings.Count(out, "/track/open/"))
}

func TestInjectTrackingNoLinks(t *testing.T) {
	out := InjectTracking("plain text", "https://track.example.com", "tok123")
	assert.True(t, strings.HasPrefix(out, "plain text"))
	assert.Contains(t, out, "/track/open/tok123")
}
