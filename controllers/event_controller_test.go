package controller

import (
	"io"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"reachflow/analytics"
	"reachflow/channel"
	"reachflow/engine"
	"reachflow/store"
	"reachflow/utils"
)

const clickTestSecret = "click-test-secret"

func newClickTestApp(t *testing.T) *fiber.App {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	st := store.NewMemoryStore()
	agg := analytics.NewAggregator(st, logger.WithField("component", "analytics"))
	eng := engine.New(st, &channel.Registry{}, agg, nil, logger.WithField("component", "engine"))

	ec := NewEventController(st, eng, logger, clickTestSecret)
	app := fiber.New()
	app.Get("/track/click/:messageID/:token", ec.TrackClick)
	return app
}

func TestTrackClickRedirectsOnlyToBoundDestination(t *testing.T) {
	app := newClickTestApp(t)

	destination := "https://acme.test/pricing"
	token, err := utils.NewTrackingToken(clickTestSecret, utils.TrackingClaims{
		TenantID:     1,
		EnrollmentID: 42,
		StepID:       7,
		MessageID:    "msg-1",
		URLHash:      utils.URLHash(destination),
	})
	require.NoError(t, err)

	// the destination the token was minted for redirects
	req := httptest.NewRequest("GET", "/track/click/msg-1/"+token+"?url="+url.QueryEscape(destination), nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusFound, resp.StatusCode)
	require.Equal(t, destination, resp.Header.Get("Location"))

	// any other destination is refused
	req = httptest.NewRequest("GET", "/track/click/msg-1/"+token+"?url="+url.QueryEscape("https://evil.test/phish"), nil)
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestTrackClickRejectsUnboundToken(t *testing.T) {
	app := newClickTestApp(t)

	// a pixel token carries no destination hash and must not redirect
	token, err := utils.NewTrackingToken(clickTestSecret, utils.TrackingClaims{
		TenantID:  1,
		MessageID: "msg-1",
	})
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/track/click/msg-1/"+token+"?url="+url.QueryEscape("https://acme.test/pricing"), nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
