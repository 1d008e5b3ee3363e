package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"

	"reachflow/models"
)

// Encrypt encrypts tenant channel credentials before they are persisted
func Encrypt(key, plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(plaintext))
	iv := ciphertext[:aes.BlockSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], []byte(plaintext))

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt
func Decrypt(key, ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return "", err
	}

	decoded, err := base64.URLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}

	if len(decoded) < aes.BlockSize {
		return "", errors.New("ciphertext too short")
	}

	iv := decoded[:aes.BlockSize]
	decoded = decoded[aes.BlockSize:]

	stream := cipher.NewCFBDecrypter(block, iv)
	stream.XORKeyStream(decoded, decoded)

	return string(decoded), nil
}

// DecryptTenantSecrets opens a tenant's stored channel credentials in place.
// Secrets that fail to decrypt are left as stored, which keeps plaintext
// values written before encryption was enabled usable.
func DecryptTenantSecrets(key string, t *models.Tenant) {
	if key == "" {
		return
	}
	for _, secret := range []*string{
		&t.SMTPPassword,
		&t.FallbackSMTPPassword,
		&t.SMSAuthToken,
		&t.ProfessionalAccessToken,
		&t.ProfessionalRefreshToken,
		&t.IMAPPassword,
	} {
		if *secret == "" {
			continue
		}
		if plain, err := Decrypt(key, *secret); err == nil && plain != "" {
			*secret = plain
		}
	}
}
