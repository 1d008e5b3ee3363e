package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// URLHash fingerprints a redirect destination for click-token binding
func URLHash(u string) string {
	sum := sha256.Sum256([]byte(u))
	return hex.EncodeToString(sum[:])
}

// TrackingPixelURL builds the open-tracking pixel URL for a message
func TrackingPixelURL(baseURL, messageID, token string) string {
	return fmt.Sprintf("%s/track/open/%s/%s", baseURL, messageID, token)
}

// ClickTrackURL wraps a link so the click registers before redirecting. The
// token must carry the destination's URLHash.
func ClickTrackURL(baseURL, messageID, token, originalURL string) string {
	return fmt.Sprintf("%s/track/click/%s/%s?url=%s", baseURL, messageID, token, url.QueryEscape(originalURL))
}

// InjectTracking appends an open-tracking pixel to the email body and, when
// trackClicks is set, rewrites every anchor href through the click redirect.
// Each rewritten link gets its own token binding the destination, so a click
// URL only ever redirects to the link it was minted for.
func InjectTracking(htmlContent, baseURL, secret string, claims TrackingClaims, trackClicks bool) (string, error) {
	if trackClicks {
		rewritten, err := injectClickTracking(htmlContent, baseURL, secret, claims)
		if err != nil {
			return "", err
		}
		htmlContent = rewritten
	}
	pixelToken, err := NewTrackingToken(secret, claims)
	if err != nil {
		return "", err
	}
	pixel := fmt.Sprintf(`<img src="%s" alt="" width="1" height="1" style="display:none">`,
		TrackingPixelURL(baseURL, claims.MessageID, pixelToken))
	return htmlContent + pixel, nil
}

func injectClickTracking(html, baseURL, secret string, claims TrackingClaims) (string, error) {
	// Simplified scan; good enough for the generated bodies we send
	startTag := `<a href="`
	endTag := `"`
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
		linkClaims := claims
		linkClaims.URLHash = URLHash(originalURL)
		token, err := NewTrackingToken(secret, linkClaims)
		if err != nil {
			return "", err
		}
		trackedURL := ClickTrackURL(baseURL, claims.MessageID, token, originalURL)

		html = html[:startIdx] + trackedURL + html[endIdx:]
		offset = startIdx + len(trackedURL)
	}

	return html, nil
}
