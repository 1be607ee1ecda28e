package config

import (
	"os"
	"strconv"
	"strings"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DefaultPort          = "5001"
	DefaultBrevoHost     = "smtp-relay.brevo.com"
	DefaultUploadsDir    = "uploads"
	ProviderBrevo        = "brevo"
	ProviderGmail        = "gmail"
	DefaultMaxBodyBytes  = 10 << 20
	DefaultCompanyName   = "Study Abroad CRM"
	defaultAllowedOrigin = "http://localhost:3000"
)

type Config struct {
	Server   ServerConfig
	CORS     CORSConfig
	Mail     MailConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Branding BrandingConfig
	LogLevel string
}

type ServerConfig struct {
	Port         string
	Environment  string
	UploadsDir   string
	MaxBodyBytes int64
}

type CORSConfig struct {
	// Exact origins from FRONTEND_URL, CRM_URL, STUDENT_PORTAL_URL, MAIN_WEBSITE_URL and ALLOWED_ORIGINS.
	// Entries containing '*' are treated as wildcard patterns.
	AllowedOrigins []string
}

type MailConfig struct {
	Provider  string
	BrevoHost string
	BrevoPort int // 0 when BREVO_SMTP_PORT is unset
	BrevoUser string
	BrevoPass string
	GmailUser string
	GmailPass string
	From      string
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	URL string
}

type AuthConfig struct {
	JWTSecret string
}

type BrandingConfig struct {
	CompanyName  string
	SupportPhone string
	SupportEmail string
	WebsiteURL   string
}

// Load builds the configuration from the process environment.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom builds the configuration from an arbitrary lookup function.
func LoadFrom(getenv func(string) string) (*Config, error) {
	// An unset NODE_ENV is neither development nor production.
	env := strings.ToLower(strings.TrimSpace(getenv("NODE_ENV")))

	cfg := &Config{
		Server: ServerConfig{
			Port:         valueOr(getenv("PORT"), DefaultPort),
			Environment:  env,
			UploadsDir:   valueOr(getenv("UPLOADS_DIR"), DefaultUploadsDir),
			MaxBodyBytes: DefaultMaxBodyBytes,
		},
		Mail: MailConfig{
			Provider:  strings.ToLower(valueOr(getenv("EMAIL_PROVIDER"), ProviderGmail)),
			BrevoHost: valueOr(getenv("BREVO_SMTP_HOST"), DefaultBrevoHost),
			BrevoUser: getenv("BREVO_SMTP_USER"),
			BrevoPass: getenv("BREVO_SMTP_PASS"),
			GmailUser: getenv("GMAIL_USER"),
			GmailPass: getenv("GMAIL_PASS"),
			From:      getenv("MAIL_FROM"),
		},
		Database: DatabaseConfig{URL: getenv("DATABASE_URL")},
		Redis:    RedisConfig{URL: getenv("REDIS_URL")},
		Auth:     AuthConfig{JWTSecret: getenv("JWT_SECRET")},
		Branding: BrandingConfig{
			CompanyName:  valueOr(getenv("COMPANY_NAME"), DefaultCompanyName),
			SupportPhone: getenv("SUPPORT_PHONE"),
			SupportEmail: getenv("SUPPORT_EMAIL"),
			WebsiteURL:   getenv("MAIN_WEBSITE_URL"),
		},
		LogLevel: getenv("LOG_LEVEL"),
	}

	if raw := strings.TrimSpace(getenv("BREVO_SMTP_PORT")); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return nil, &InvalidValueError{Key: "BREVO_SMTP_PORT", Value: raw, Err: err}
		}
		cfg.Mail.BrevoPort = port
	}

	cfg.CORS.AllowedOrigins = collectOrigins(getenv)

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == EnvProduction
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == EnvDevelopment
}

// collectOrigins merges the named frontend URLs with ALLOWED_ORIGINS, dropping
// blanks and duplicates while keeping first-seen order.
func collectOrigins(getenv func(string) string) []string {
	candidates := []string{
		defaultAllowedOrigin,
		getenv("FRONTEND_URL"),
		getenv("CRM_URL"),
		getenv("STUDENT_PORTAL_URL"),
		getenv("MAIN_WEBSITE_URL"),
	}
	candidates = append(candidates, strings.Split(getenv("ALLOWED_ORIGINS"), ",")...)

	seen := make(map[string]struct{}, len(candidates))
	origins := make([]string, 0, len(candidates))
	for _, o := range candidates {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			continue
		}
		if _, dup := seen[o]; dup {
			continue
		}
		seen[o] = struct{}{}
		origins = append(origins, o)
	}
	return origins
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return strings.TrimSpace(v)
}
