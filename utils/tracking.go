package utils

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// GenerateTrackingToken returns an opaque, non-guessable token for one
// tracked email. The token is what public tracking URLs carry, never the row
// ID.
func GenerateTrackingToken() string {
	hash := sha256.Sum256([]byte(uuid.New().String()))
	return base64.URLEncoding.EncodeToString(hash[:])[:28]
}

// TrackingPixelURL builds the open-tracking pixel URL for a token
func TrackingPixelURL(baseURL, token string) string {
	return fmt.Sprintf("%s/track/open/%s", baseURL, token)
}

// ClickTrackURL builds the rewritten link URL for a token and destination
func ClickTrackURL(baseURL, token, originalURL string) string {
	return fmt.Sprintf("%s/track/click/%s?url=%s", baseURL, token, url.QueryEscape(originalURL))
}

// InjectTracking rewrites every link in the HTML body through the click
// endpoint and appends the open pixel.
func InjectTracking(htmlContent, baseURL, token string) string {
	pixel := fmt.Sprintf(`<img src="%s" alt="" width="1" height="1" style="display:none">`,
		TrackingPixelURL(baseURL, token))

	return injectClickTracking(htmlContent, baseURL, token) + pixel
}

func injectClickTracking(html, baseURL, token string) string {
	const startTag = `<a href="`
	const endTag = `"`
	offset := 0

	for {
		startIdx := strings.Index(html[offset:], startTag)
		if startIdx == -1 {
			break
		}
		startIdx += offset + len(startTag)

		endIdx := strings.Index(html[startIdx:], endTag)
		if endIdx == -1 {
			break
		}
		endIdx += startIdx

		originalURL := html[startIdx:endIdx]
		trackedURL := ClickTrackURL(baseURL, token, originalURL)

		html = html[:startIdx] + trackedURL + html[endIdx:]
		offset = startIdx + len(trackedURL)
	}

	return html
}
