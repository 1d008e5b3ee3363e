package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSecret = "tracking-test-secret"

func TestTrackingTokenRoundTrip(t *testing.T) {
	token, err := NewTrackingToken(testSecret, TrackingClaims{
		TenantID:     1,
		EnrollmentID: 42,
		StepID:       7,
		MessageID:    "msg-123",
	})
	require.NoError(t, err)

	claims, err := ParseTrackingToken(testSecret, token)
	require.NoError(t, err)
	require.Equal(t, uint(1), claims.TenantID)
	require.Equal(t, uint(42), claims.EnrollmentID)
	require.Equal(t, uint(7), claims.StepID)
	require.Equal(t, "msg-123", claims.MessageID)
}

func TestTrackingTokenRejectsWrongSecret(t *testing.T) {
	token, err := NewTrackingToken(testSecret, TrackingClaims{TenantID: 1, MessageID: "msg-123"})
	require.NoError(t, err)

	_, err = ParseTrackingToken("some-other-secret", token)
	require.Error(t, err)
}

func TestInjectTrackingAppendsPixel(t *testing.T) {
	claims := TrackingClaims{TenantID: 1, MessageID: "msg-1"}
	body, err := InjectTracking("<p>Hi</p>", "https://t.example.test", testSecret, claims, false)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(body, "<p>Hi</p>"))
	require.Contains(t, body, `https://t.example.test/track/open/msg-1/`)
	require.Contains(t, body, `width="1" height="1"`)
}

func TestInjectTrackingRewritesLinks(t *testing.T) {
	html := `<p>See <a href="https://acme.test/pricing">pricing</a> and <a href="https://acme.test/docs">docs</a></p>`
	claims := TrackingClaims{TenantID: 1, MessageID: "msg-1"}
	body, err := InjectTracking(html, "https://t.example.test", testSecret, claims, true)
	require.NoError(t, err)

	require.NotContains(t, body, `href="https://acme.test/pricing"`)
	require.Contains(t, body, `url=https%3A%2F%2Facme.test%2Fpricing`)
	require.Contains(t, body, `url=https%3A%2F%2Facme.test%2Fdocs`)
}

func TestInjectTrackingBindsLinkTokensToDestination(t *testing.T) {
	html := `<a href="https://acme.test/pricing">pricing</a>`
	claims := TrackingClaims{TenantID: 1, MessageID: "msg-1"}
	body, err := InjectTracking(html, "https://t.example.test", testSecret, claims, true)
	require.NoError(t, err)

	// pull the minted token out of the rewritten href
	start := strings.Index(body, "/track/click/msg-1/") + len("/track/click/msg-1/")
	end := strings.Index(body[start:], "?url=") + start
	token := body[start:end]

	parsed, err := ParseTrackingToken(testSecret, token)
	require.NoError(t, err)
	require.Equal(t, URLHash("https://acme.test/pricing"), parsed.URLHash)
	require.NotEqual(t, URLHash("https://evil.test/"), parsed.URLHash)

	// the pixel token stays unbound
	pixelStart := strings.Index(body, "/track/open/msg-1/") + len("/track/open/msg-1/")
	pixelEnd := strings.Index(body[pixelStart:], `"`) + pixelStart
	pixelClaims, err := ParseTrackingToken(testSecret, body[pixelStart:pixelEnd])
	require.NoError(t, err)
	require.Empty(t, pixelClaims.URLHash)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := "0123456789abcdef0123456789abcdef"

	ciphertext, err := Encrypt(key, "smtp-password")
	require.NoError(t, err)
	require.NotEqual(t, "smtp-password", ciphertext)

	plain, err := Decrypt(key, ciphertext)
	require.NoError(t, err)
	require.Equal(t, "smtp-password", plain)

	// empty values pass through
	out, err := Encrypt(key, "")
	require.NoError(t, err)
	require.Empty(t, out)
}
