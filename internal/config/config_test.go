package config

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookup(values map[string]string) func(string) string {
	return func(key string) string {
		return values[key]
	}
}

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(lookup(nil))
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Empty(t, cfg.Server.Environment)
	assert.False(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, int64(10<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, ProviderGmail, cfg.Mail.Provider)
	assert.Equal(t, DefaultBrevoHost, cfg.Mail.BrevoHost)
	assert.Zero(t, cfg.Mail.BrevoPort)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORS.AllowedOrigins)
}

func TestLoadFromOrigins(t *testing.T) {
	cfg, err := LoadFrom(lookup(map[string]string{
		"FRONTEND_URL":       "https://app.example.com/",
		"CRM_URL":            "https://crm.example.com",
		"STUDENT_PORTAL_URL": "https://students.example.com",
		"MAIN_WEBSITE_URL":   "https://example.com",
		"ALLOWED_ORIGINS":    " https://crm.example.com, https://*.partner.io ,,",
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"http://localhost:3000",
		"https://app.example.com",
		"https://crm.example.com",
		"https://students.example.com",
		"https://example.com",
		"https://*.partner.io",
	}, cfg.CORS.AllowedOrigins)
}

func TestLoadFromMail(t *testing.T) {
	cfg, err := LoadFrom(lookup(map[string]string{
		"NODE_ENV":        "Production",
		"EMAIL_PROVIDER":  "BREVO",
		"BREVO_SMTP_PORT": "2525",
		"BREVO_SMTP_USER": "relay-user",
		"BREVO_SMTP_PASS": "relay-pass",
		"GMAIL_USER":      "ops@gmail.com",
		"GMAIL_PASS":      "app-pass",
	}))
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, ProviderBrevo, cfg.Mail.Provider)
	assert.Equal(t, 2525, cfg.Mail.BrevoPort)
	assert.Equal(t, "relay-user", cfg.Mail.BrevoUser)
	assert.Equal(t, "ops@gmail.com", cfg.Mail.GmailUser)
}

func TestLoadFromInvalidPort(t *testing.T) {
	_, err := LoadFrom(lookup(map[string]string{"BREVO_SMTP_PORT": "smtp"}))
	require.Error(t, err)

	var invalid *InvalidValueError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "BREVO_SMTP_PORT", invalid.Key)

	var numErr *strconv.NumError
	assert.True(t, errors.As(err, &numErr))
}
