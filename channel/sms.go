package channel

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"

	"reachflow/models"

	"github.com/valyala/fasthttp"
)

// HTTPSMSSender posts messages to an SMS gateway's REST API with the tenant's
// account SID and auth token. The gateway base URL is fixed at construction;
// per-tenant credentials select the account.
type HTTPSMSSender struct {
	BaseURL string
	client  *fasthttp.Client
}

func NewHTTPSMSSender(baseURL string) *HTTPSMSSender {
	return &HTTPSMSSender{
		BaseURL: baseURL,
		client:  &fasthttp.Client{},
	}
}

func (s *HTTPSMSSender) SendSMS(ctx context.Context, tenant *models.Tenant, to, message string, metadata map[string]string) (SMSResult, error) {
	if !tenant.HasSMS() {
		return SMSResult{}, fmt.Errorf("no SMS provider configured for tenant %d", tenant.ID)
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", tenant.SMSFromNumber)
	form.Set("Body", message)
	for k, v := range metadata {
		form.Set(k, v)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(fmt.Sprintf("%s/Accounts/%s/Messages.json", s.BaseURL, tenant.SMSAccountSID))
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/x-www-form-urlencoded")
	auth := base64.StdEncoding.EncodeToString([]byte(tenant.SMSAccountSID + ":" + tenant.SMSAuthToken))
	req.Header.Set("Authorization", "Basic "+auth)
	req.SetBodyString(form.Encode())

	deadline, ok := ctx.Deadline()
	var err error
	if ok {
		err = s.client.DoDeadline(req, resp, deadline)
	} else {
		err = s.client.Do(req, resp)
	}
	if err != nil {
		return SMSResult{Provider: tenant.SMSProvider, Error: err.Error()}, fmt.Errorf("sms send to %s: %w", to, err)
	}

	if resp.StatusCode() >= 300 {
		msg := fmt.Sprintf("sms provider returned %d", resp.StatusCode())
		return SMSResult{Provider: tenant.SMSProvider, Error: msg}, fmt.Errorf("sms send to %s: %s", to, msg)
	}

	var body struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return SMSResult{Provider: tenant.SMSProvider, Error: err.Error()}, fmt.Errorf("sms response decode: %w", err)
	}

	return SMSResult{
		Success:   true,
		MessageID: body.SID,
		Provider:  tenant.SMSProvider,
	}, nil
}
