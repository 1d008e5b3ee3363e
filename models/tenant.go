package models

import (
	"gorm.io/gorm"
)

// Email provider names usable as primary/fallback
const (
	EmailProviderSMTP     = "smtp"
	EmailProviderFallback = "fallback_smtp"
)

// Tenant holds one customer's channel configuration and credentials.
// Secrets are encrypted in the application layer before persisting.
type Tenant struct {
	gorm.Model
	Name string `gorm:"not null" json:"name"`

	// API access
	APIKeyHash string `gorm:"not null" json:"-"` // bcrypt hash of the tenant API key

	// Email identity
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`

	// Email providers: primary always attempted; the fallback is attempted only
	// when FallbackProvider names it and its credentials are present.
	PrimaryProvider  string `gorm:"default:'smtp'" json:"primary_provider"`
	FallbackProvider string `json:"fallback_provider"`

	// ========= SMTP (primary) =========
	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `gorm:"default:587" json:"smtp_port"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"-"` // encrypted

	// ========= SMTP (fallback) =========
	FallbackSMTPHost     string `json:"fallback_smtp_host"`
	FallbackSMTPPort     int    `json:"fallback_smtp_port"`
	FallbackSMTPUsername string `json:"fallback_smtp_username"`
	FallbackSMTPPassword string `json:"-"` // encrypted

	// ========= SMS provider =========
	SMSProvider   string `json:"sms_provider"`
	SMSAccountSID string `json:"sms_account_sid"`
	SMSAuthToken  string `json:"-"` // encrypted
	SMSFromNumber string `json:"sms_from_number"`

	// ========= Professional network =========
	ProfessionalAccessToken  string `json:"-"` // encrypted OAuth access token
	ProfessionalRefreshToken string `json:"-"` // encrypted

	// ========= IMAP (reply watching) =========
	IMAPHost     string `json:"imap_host"`
	IMAPPort     int    `gorm:"default:993" json:"imap_port"`
	IMAPUsername string `json:"imap_username"`
	IMAPPassword string `json:"-"` // encrypted
	IMAPMailbox  string `gorm:"default:'INBOX'" json:"imap_mailbox"`

	// Tracking
	TrackingBaseURL string `json:"tracking_base_url"`
	TrackOpens      bool   `gorm:"default:true" json:"track_opens"`
	TrackClicks     bool   `gorm:"default:true" json:"track_clicks"`
}

// HasFallbackEmail reports whether fallback email credentials are configured
func (t *Tenant) HasFallbackEmail() bool {
	return t.FallbackProvider != "" && t.FallbackSMTPHost != "" && t.FallbackSMTPUsername != ""
}

// HasSMS reports whether an SMS provider is configured
func (t *Tenant) HasSMS() bool {
	return t.SMSProvider != "" && t.SMSAuthToken != "" && t.SMSFromNumber != ""
}

// HasProfessional reports whether professional-network credentials exist
func (t *Tenant) HasProfessional() bool {
	return t.ProfessionalAccessToken != ""
}

// HasIMAP reports whether an inbox is configured for reply watching
func (t *Tenant) HasIMAP() bool {
	return t.IMAPHost != "" && t.IMAPUsername != ""
}

// Sanitize blanks secrets before returning a tenant over the API
func (t *Tenant) Sanitize() {
	t.APIKeyHash = ""
	t.SMTPPassword = ""
	t.FallbackSMTPPassword = ""
	t.SMSAuthToken = ""
	t.ProfessionalAccessToken = ""
	t.ProfessionalRefreshToken = ""
	t.IMAPPassword = ""
}
