package controller

import (
	"log"
	"net/url"
	"time"

	"leadpulse/store"
	"leadpulse/worker"

	"github.com/gofiber/fiber/v2"
)

// TrackingController serves the public open/click endpoints. Both are
// unauthenticated and keyed by the opaque per-email token; neither ever
// reveals to the caller whether a token was valid.
type TrackingController struct {
	Store       *store.Store
	Logger      *log.Logger
	FallbackURL string
}

func NewTrackingController(s *store.Store, logger *log.Logger, fallbackURL string) *TrackingController {
	return &TrackingController{
		Store:       s,
		Logger:      logger,
		FallbackURL: fallbackURL,
	}
}

// HandleOpenTracking responds with the 1x1 pixel unconditionally. Invalid or
// unknown tokens still get the pixel so error codes cannot be used to probe
// token validity.
func (tc *TrackingController) HandleOpenTracking(c *fiber.Ctx) error {
	token := c.Params("token")

	email, err := tc.Store.FindTrackedEmailByToken(token)
	if err != nil {
		tc.Logger.Printf("Open tracking: %v", &worker.TrackingError{Token: token, Err: err})
		return c.Type("gif").Send(transparentPixel())
	}

	first, err := tc.Store.RecordOpen(email, time.Now())
	if err != nil {
		tc.Logger.Printf("Open tracking: failed to record open for email %d: %v", email.ID, err)
		return c.Type("gif").Send(transparentPixel())
	}

	// Only the first open changes the engagement signals, so repeats skip
	// the recompute.
	if first {
		tc.recalculateScoreAsync(email.LeadID)
	}

	return c.Type("gif").Send(transparentPixel())
}

// HandleClickTracking records the click and redirects to the destination.
// Invalid tokens or unusable destinations redirect to the fallback without
// recording anything.
func (tc *TrackingController) HandleClickTracking(c *fiber.Ctx) error {
	token := c.Params("token")
	destination := c.Query("url")

	if !safeRedirectTarget(destination) {
		tc.Logger.Printf("Click tracking: unusable destination %q", destination)
		return c.Redirect(tc.FallbackURL, fiber.StatusFound)
	}

	email, err := tc.Store.FindTrackedEmailByToken(token)
	if err != nil {
		tc.Logger.Printf("Click tracking: %v", &worker.TrackingError{Token: token, Err: err})
		return c.Redirect(tc.FallbackURL, fiber.StatusFound)
	}

	created, err := tc.Store.RecordClick(email, destination, time.Now())
	if err != nil {
		tc.Logger.Printf("Click tracking: failed to record click for email %d: %v", email.ID, err)
	} else if created {
		tc.recalculateScoreAsync(email.LeadID)
	}

	return c.Redirect(destination, fiber.StatusFound)
}

// recalculateScoreAsync recomputes the lead score off the request path.
// Failures are logged and swallowed; the remote client is a mail provider or
// a browser, not an API consumer.
func (tc *TrackingController) recalculateScoreAsync(leadID uint) {
	go func() {
		if _, err := tc.Store.RecalculateLeadScore(leadID); err != nil {
			tc.Logger.Printf("Failed to recalculate score for lead %d: %v", leadID, err)
		}
	}()
}

func safeRedirectTarget(destination string) bool {
	if destination == "" {
		return false
	}
	u, err := url.Parse(destination)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func transparentPixel() []byte {
	// 1x1 transparent GIF
	return []byte{
		0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
		0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x21,
		0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00,
		0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44,
		0x01, 0x00, 0x3b,
	}
}
