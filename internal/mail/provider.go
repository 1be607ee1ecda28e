package mail

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/aman-churiwal/crm-gateway/internal/config"
)

type ProviderKind int

const (
	// Primary is the Brevo-style relay probed across several ports.
	Primary ProviderKind = iota
	// Fallback is the Gmail-style relay on a fixed SSL port.
	Fallback
)

func (k ProviderKind) String() string {
	switch k {
	case Primary:
		return "primary"
	case Fallback:
		return "fallback"
	default:
		return "unknown"
	}
}

const (
	GmailHost = "smtp.gmail.com"
	GmailPort = 465
	SSLPort   = 465

	probeConnectTimeout  = 10 * time.Second
	probeGreetingTimeout = 10 * time.Second
	socketTimeout        = 20 * time.Second
	steadyConnectTimeout = 20 * time.Second
	steadyGreetTimeout   = 20 * time.Second

	primaryMaxConnections  = 3
	fallbackMaxConnections = 5
	maxMessagesPerConn     = 100
	sendRatePerSecond      = 5
)

// DefaultPrimaryPorts are tried after the configured port.
var DefaultPrimaryPorts = []int{2525, 587, 465}

type ProviderConfig struct {
	Kind     ProviderKind
	Name     string // "Brevo", "Gmail"; used in logs and metrics
	Host     string
	User     string
	Password string
	Ports    []int // probe order
}

func (p ProviderConfig) hasCredentials() bool {
	return p.User != "" && p.Password != ""
}

// Options configures one pooled transport.
type Options struct {
	Provider        string
	Host            string
	Port            int
	User            string
	Password        string
	SSL             bool
	ConnectTimeout  time.Duration
	GreetingTimeout time.Duration
	SocketTimeout   time.Duration
	MaxConnections  int
	MaxMessages     int
	RateLimit       rate.Limit
	From            Sender
}

// probeOptions are the short timeouts used while looking for a reachable port.
func probeOptions(p ProviderConfig, port int, from Sender) Options {
	maxConns := primaryMaxConnections
	if p.Kind == Fallback {
		maxConns = fallbackMaxConnections
	}
	return Options{
		Provider:        p.Name,
		Host:            p.Host,
		Port:            port,
		User:            p.User,
		Password:        p.Password,
		SSL:             port == SSLPort,
		ConnectTimeout:  probeConnectTimeout,
		GreetingTimeout: probeGreetingTimeout,
		SocketTimeout:   socketTimeout,
		MaxConnections:  maxConns,
		MaxMessages:     maxMessagesPerConn,
		RateLimit:       rate.Limit(sendRatePerSecond),
		From:            from,
	}
}

// steadyOptions relax the handshake timeouts once a port is known to work.
func steadyOptions(probe Options) Options {
	opts := probe
	opts.ConnectTimeout = steadyConnectTimeout
	opts.GreetingTimeout = steadyGreetTimeout
	return opts
}

// PrimaryPorts returns the configured port followed by the defaults, without duplicates.
func PrimaryPorts(configured int) []int {
	ports := make([]int, 0, len(DefaultPrimaryPorts)+1)
	seen := make(map[int]struct{}, len(DefaultPrimaryPorts)+1)
	candidates := append([]int{configured}, DefaultPrimaryPorts...)
	for _, p := range candidates {
		if p <= 0 {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		ports = append(ports, p)
	}
	return ports
}

// Settings is everything the Supervisor needs to pick a provider.
type Settings struct {
	Providers []ProviderConfig // tried in order
	From      Sender
	Debug     bool
}

// SettingsFromConfig orders Brevo before Gmail when EMAIL_PROVIDER=brevo. Gmail is
// always the last resort.
func SettingsFromConfig(cfg *config.Config) Settings {
	var s Settings

	if cfg.Mail.Provider == config.ProviderBrevo {
		s.Providers = append(s.Providers, ProviderConfig{
			Kind:     Primary,
			Name:     "Brevo",
			Host:     cfg.Mail.BrevoHost,
			User:     cfg.Mail.BrevoUser,
			Password: cfg.Mail.BrevoPass,
			Ports:    PrimaryPorts(cfg.Mail.BrevoPort),
		})
	}
	s.Providers = append(s.Providers, ProviderConfig{
		Kind:     Fallback,
		Name:     "Gmail",
		Host:     GmailHost,
		User:     cfg.Mail.GmailUser,
		Password: cfg.Mail.GmailPass,
		Ports:    []int{GmailPort},
	})

	s.From = Sender{Address: cfg.Mail.From, Name: cfg.Branding.CompanyName}
	if s.From.Address == "" {
		if cfg.Mail.Provider == config.ProviderBrevo && cfg.Mail.BrevoUser != "" {
			s.From.Address = cfg.Mail.BrevoUser
		} else {
			s.From.Address = cfg.Mail.GmailUser
		}
	}
	s.Debug = cfg.IsDevelopment()
	return s
}
