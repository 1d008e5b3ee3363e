package controller

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"reachflow/models"
	"reachflow/store"
	"reachflow/utils"
)

type TenantController struct {
	Store  store.Store
	Logger *logrus.Logger
	// EncryptionKey encrypts channel credentials at rest; 32 bytes for AES-256
	EncryptionKey string
}

func NewTenantController(st store.Store, logger *logrus.Logger, encryptionKey string) *TenantController {
	return &TenantController{
		Store:         st,
		Logger:        logger,
		EncryptionKey: encryptionKey,
	}
}

// issueAPIKey generates a fresh API key for the tenant and stores its bcrypt
// hash. The plaintext key is returned exactly once.
func (tc *TenantController) issueAPIKey(tenant *models.Tenant) (string, error) {
	secret := strings.ReplaceAll(uuid.New().String(), "-", "")
	key := fmt.Sprintf("rf_%d_%s", tenant.ID, secret)

	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}
	tenant.APIKeyHash = string(hash)
	if err := tc.Store.SaveTenant(tenant); err != nil {
		return "", err
	}
	return key, nil
}

// CreateTenant provisions a tenant and returns its API key. Reachable only
// through the internal surface.
func (tc *TenantController) CreateTenant(c *fiber.Ctx) error {
	var input struct {
		Name      string `json:"name" validate:"required,min=1,max=200"`
		FromEmail string `json:"from_email" validate:"omitempty,email"`
		FromName  string `json:"from_name"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	tenant := &models.Tenant{
		Name:      input.Name,
		FromEmail: input.FromEmail,
		FromName:  input.FromName,
		// placeholder until the key is issued below
		APIKeyHash: "pending",
	}
	if err := tc.Store.SaveTenant(tenant); err != nil {
		tc.Logger.WithError(err).Error("Failed to create tenant")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create tenant", nil)
	}

	key, err := tc.issueAPIKey(tenant)
	if err != nil {
		tc.Logger.WithError(err).Error("Failed to issue API key")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to issue API key", nil)
	}

	tc.Logger.WithFields(logrus.Fields{
		"tenant_id": tenant.ID,
		"name":      tenant.Name,
	}).Info("Tenant created")

	tenant.Sanitize()
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(fiber.Map{
		"tenant":  tenant,
		"api_key": key,
	}))
}

// RotateAPIKey invalidates the tenant's current key and returns a new one
func (tc *TenantController) RotateAPIKey(c *fiber.Ctx) error {
	tenant := c.Locals("tenant").(*models.Tenant)

	key, err := tc.issueAPIKey(tenant)
	if err != nil {
		tc.Logger.WithError(err).Error("Failed to rotate API key")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to rotate API key", nil)
	}

	tc.Logger.WithField("tenant_id", tenant.ID).Info("API key rotated")
	return c.JSON(utils.SuccessResponse(fiber.Map{"api_key": key}))
}

func (tc *TenantController) GetTenant(c *fiber.Ctx) error {
	tenant := c.Locals("tenant").(*models.Tenant)
	sanitized := *tenant
	sanitized.Sanitize()
	return c.JSON(utils.SuccessResponse(&sanitized))
}

type channelSettingsInput struct {
	FromEmail        string `json:"from_email" validate:"omitempty,email"`
	FromName         string `json:"from_name"`
	FallbackProvider string `json:"fallback_provider"`

	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"smtp_password"`

	FallbackSMTPHost     string `json:"fallback_smtp_host"`
	FallbackSMTPPort     int    `json:"fallback_smtp_port"`
	FallbackSMTPUsername string `json:"fallback_smtp_username"`
	FallbackSMTPPassword string `json:"fallback_smtp_password"`

	SMSProvider   string `json:"sms_provider"`
	SMSAccountSID string `json:"sms_account_sid"`
	SMSAuthToken  string `json:"sms_auth_token"`
	SMSFromNumber string `json:"sms_from_number"`

	ProfessionalAccessToken string `json:"professional_access_token"`

	IMAPHost     string `json:"imap_host"`
	IMAPPort     int    `json:"imap_port"`
	IMAPUsername string `json:"imap_username"`
	IMAPPassword string `json:"imap_password"`

	TrackingBaseURL string `json:"tracking_base_url"`
	TrackOpens      *bool  `json:"track_opens"`
	TrackClicks     *bool  `json:"track_clicks"`
}

// UpdateChannelSettings updates the tenant's channel configuration. Secrets
// are encrypted before they hit the store; empty secret fields leave the
// stored value untouched.
func (tc *TenantController) UpdateChannelSettings(c *fiber.Ctx) error {
	tenant := c.Locals("tenant").(*models.Tenant)

	var input channelSettingsInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if input.FallbackProvider != "" &&
		input.FallbackProvider != models.EmailProviderSMTP &&
		input.FallbackProvider != models.EmailProviderFallback {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unknown fallback provider", nil)
	}

	applyString := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	applyInt := func(dst *int, src int) {
		if src != 0 {
			*dst = src
		}
	}
	applySecret := func(dst *string, src string) error {
		if src == "" {
			return nil
		}
		encrypted, err := utils.Encrypt(tc.EncryptionKey, src)
		if err != nil {
			return err
		}
		*dst = encrypted
		return nil
	}

	applyString(&tenant.FromEmail, input.FromEmail)
	applyString(&tenant.FromName, input.FromName)
	applyString(&tenant.FallbackProvider, input.FallbackProvider)
	applyString(&tenant.SMTPHost, input.SMTPHost)
	applyInt(&tenant.SMTPPort, input.SMTPPort)
	applyString(&tenant.SMTPUsername, input.SMTPUsername)
	applyString(&tenant.FallbackSMTPHost, input.FallbackSMTPHost)
	applyInt(&tenant.FallbackSMTPPort, input.FallbackSMTPPort)
	applyString(&tenant.FallbackSMTPUsername, input.FallbackSMTPUsername)
	applyString(&tenant.SMSProvider, input.SMSProvider)
	applyString(&tenant.SMSAccountSID, input.SMSAccountSID)
	applyString(&tenant.SMSFromNumber, input.SMSFromNumber)
	applyString(&tenant.IMAPHost, input.IMAPHost)
	applyInt(&tenant.IMAPPort, input.IMAPPort)
	applyString(&tenant.IMAPUsername, input.IMAPUsername)
	applyString(&tenant.TrackingBaseURL, input.TrackingBaseURL)
	if input.TrackOpens != nil {
		tenant.TrackOpens = *input.TrackOpens
	}
	if input.TrackClicks != nil {
		tenant.TrackClicks = *input.TrackClicks
	}

	for _, secret := range []struct {
		dst *string
		src string
	}{
		{&tenant.SMTPPassword, input.SMTPPassword},
		{&tenant.FallbackSMTPPassword, input.FallbackSMTPPassword},
		{&tenant.SMSAuthToken, input.SMSAuthToken},
		{&tenant.ProfessionalAccessToken, input.ProfessionalAccessToken},
		{&tenant.IMAPPassword, input.IMAPPassword},
	} {
		if err := applySecret(secret.dst, secret.src); err != nil {
			tc.Logger.WithError(err).Error("Failed to encrypt credential")
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to store credentials", nil)
		}
	}

	if err := tc.Store.SaveTenant(tenant); err != nil {
		tc.Logger.WithError(err).Error("Failed to update tenant settings")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update settings", nil)
	}

	sanitized := *tenant
	sanitized.Sanitize()
	return c.JSON(utils.SuccessResponse(&sanitized))
}
