package channel

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"reachflow/models"
)

func smsTenant() *models.Tenant {
	return &models.Tenant{
		SMSProvider:   "twilio",
		SMSAccountSID: "AC123",
		SMSAuthToken:  "secret-token",
		SMSFromNumber: "+15550100",
	}
}

func TestSendSMSPostsFormAndParsesSID(t *testing.T) {
	var gotPath, gotAuth string
	var gotForm map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"To":   r.PostForm.Get("To"),
			"From": r.PostForm.Get("From"),
			"Body": r.PostForm.Get("Body"),
			"Tag":  r.PostForm.Get("Tag"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sid":"SM900","status":"queued"}`))
	}))
	defer srv.Close()

	sender := NewHTTPSMSSender(srv.URL)
	result, err := sender.SendSMS(context.Background(), smsTenant(), "+15550123", "Quick question", map[string]string{"Tag": "seq-1"})
	require.NoError(t, err)

	require.True(t, result.Success)
	require.Equal(t, "SM900", result.MessageID)
	require.Equal(t, "twilio", result.Provider)

	require.Equal(t, "/Accounts/AC123/Messages.json", gotPath)
	wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("AC123:secret-token"))
	require.Equal(t, wantAuth, gotAuth)
	require.Equal(t, "+15550123", gotForm["To"])
	require.Equal(t, "+15550100", gotForm["From"])
	require.Equal(t, "Quick question", gotForm["Body"])
	require.Equal(t, "seq-1", gotForm["Tag"])
}

func TestSendSMSProviderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	sender := NewHTTPSMSSender(srv.URL)
	result, err := sender.SendSMS(context.Background(), smsTenant(), "+15550123", "hi", nil)
	require.Error(t, err)
	require.False(t, result.Success)
	require.Contains(t, result.Error, "401")
}

func TestSendSMSRejectsUnconfiguredTenant(t *testing.T) {
	sender := NewHTTPSMSSender("http://unused.invalid")
	_, err := sender.SendSMS(context.Background(), &models.Tenant{}, "+15550123", "hi", nil)
	require.Error(t, err)
}
