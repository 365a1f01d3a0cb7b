package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/haukened/fr-dns/internal/dns/domain"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// Port is the network port the DoH frontend will bind to.
	Port int `koanf:"port" validate:"required,gte=1,lt=65535"`

	// PlainServer is an optional classic DNS resolver in ip:port form.
	// When set, plain UDP/TCP transport takes precedence over every
	// DoH endpoint, including caller-supplied ones.
	PlainServer string `koanf:"plain_server" validate:"omitempty,ip_port"`

	// UpstreamDefault is the DoH endpoint used when neither racing nor
	// a caller-supplied resolver applies.
	UpstreamDefault string `koanf:"upstream_default" validate:"required,doh_url"`

	// UpstreamPrimary and UpstreamSecondary are the preferred endpoint
	// pair raced against each other when RaceUpstreams is enabled.
	UpstreamPrimary   string `koanf:"upstream_primary" validate:"omitempty,doh_url"`
	UpstreamSecondary string `koanf:"upstream_secondary" validate:"omitempty,doh_url"`

	// RaceUpstreams dispatches each query to the preferred pair
	// concurrently and takes the first success.
	RaceUpstreams bool `koanf:"race_upstreams"`

	// StreamClient routes every DoH attempt through the per-request
	// HTTP/2 stream client instead of the pooled fetch client.
	StreamClient bool `koanf:"stream_client"`

	// ClientQPS and ClientBurst bound per-client inbound query rates
	// on the frontend. A QPS of zero disables rate limiting.
	ClientQPS   int `koanf:"client_qps" validate:"gte=0"`
	ClientBurst int `koanf:"client_burst" validate:"gte=0"`
}

// DEFAULT_APP_CONFIG defines the default application configuration for
// the resolver. Cloudflare is the default and primary endpoint with
// Google as the racing secondary.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:               "prod",
	LogLevel:          "info",
	Port:              8053,
	PlainServer:       "",
	UpstreamDefault:   "https://cloudflare-dns.com/dns-query",
	UpstreamPrimary:   "https://cloudflare-dns.com/dns-query",
	UpstreamSecondary: "https://dns.google/dns-query",
	RaceUpstreams:     false,
	StreamClient:      false,
	ClientQPS:         50,
	ClientBurst:       100,
}

// validIPPort validates whether the provided field value is a valid IP
// address and port combination in "IP:Port" form.
func validIPPort(fl validator.FieldLevel) bool {
	addr := fl.Field().String()
	ip, port, err := net.SplitHostPort(addr)
	if err != nil || ip == "" || port == "" {
		return false
	}
	if net.ParseIP(ip) == nil {
		return false
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	return err == nil && portNum > 0 && portNum < 65536
}

// validDoHURL validates whether the field parses as a DoH endpoint URL.
func validDoHURL(fl validator.FieldLevel) bool {
	_, err := domain.ParseUpstreamEndpoint(fl.Field().String())
	return err == nil
}

// envLoader loads environment variables with the prefix "DNS_",
// lowercasing keys and stripping the prefix. Replaceable in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "DNS_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, "DNS_"))
			return key, strings.TrimSpace(value)
		},
	}), nil)
}

// defaultLoader loads default configuration values using the structs
// provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidations registers the custom "ip_port" and "doh_url"
// validation tags.
var registerValidations = func(v *validator.Validate) error {
	if err := v.RegisterValidation("ip_port", validIPPort); err != nil {
		return err
	}
	return v.RegisterValidation("doh_url", validDoHURL)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	err := defaultLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	err = envLoader(k)
	if err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig

	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	err = registerValidations(validate)
	if err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	err = validate.Struct(&cfg)
	if err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
