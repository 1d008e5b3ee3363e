package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"reachflow/models"

	"golang.org/x/oauth2"
)

// OAuthProfessionalSender posts messages to a professional-network messaging
// API, authenticating with the tenant's stored OAuth access token.
type OAuthProfessionalSender struct {
	APIURL string
}

func NewOAuthProfessionalSender(apiURL string) *OAuthProfessionalSender {
	return &OAuthProfessionalSender{APIURL: apiURL}
}

func (s *OAuthProfessionalSender) SendMessage(ctx context.Context, tenant *models.Tenant, recipient, content string) error {
	if !tenant.HasProfessional() {
		return fmt.Errorf("no professional-network credentials for tenant %d", tenant.ID)
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tenant.ProfessionalAccessToken})
	client := oauth2.NewClient(ctx, src)

	payload, err := json.Marshal(map[string]string{
		"recipient": recipient,
		"message":   content,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.APIURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("professional message to %s: %w", recipient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("professional message to %s: provider returned %d", recipient, resp.StatusCode)
	}
	return nil
}
