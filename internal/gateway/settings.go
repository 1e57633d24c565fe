package gateway

import (
	"context"
	"fmt"

	domainErrors "github.com/sokodigital/storefront-payments/internal/domain/errors"
	"github.com/sokodigital/storefront-payments/internal/infrastructure/config"
)

// Settings holds one gateway's credentials and knobs. Fields not used by a
// gateway stay empty (ShortCode/Passkey are M-Pesa only, IPNID is Pesapal
// only).
type Settings struct {
	ConsumerKey     string
	ConsumerSecret  string
	ShortCode       string
	Passkey         string
	IPNID           string
	Sandbox         bool
	CallbackBaseURL string
}

// SettingsProvider resolves gateway settings per request. Implementations
// must fail with ErrConfigIncomplete rather than defaulting credentials;
// there are deliberately no embedded fallback secrets.
type SettingsProvider interface {
	Settings(ctx context.Context, gatewayName string) (Settings, error)
}

// SettingsStore is the persisted settings fallback consulted when the
// environment leaves a gateway's credentials incomplete.
type SettingsStore interface {
	// Get returns stored settings for a gateway, or nil when absent.
	Get(ctx context.Context, gatewayName string) (*Settings, error)
}

// ConfigSettingsProvider resolves settings from configuration first and falls
// back to the settings store for gateways the environment doesn't configure.
type ConfigSettingsProvider struct {
	cfg   config.GatewaysConfig
	store SettingsStore
}

// NewConfigSettingsProvider creates a ConfigSettingsProvider. store may be nil
// when no persisted fallback is wired (tests).
func NewConfigSettingsProvider(cfg config.GatewaysConfig, store SettingsStore) *ConfigSettingsProvider {
	return &ConfigSettingsProvider{cfg: cfg, store: store}
}

func (p *ConfigSettingsProvider) Settings(ctx context.Context, gatewayName string) (Settings, error) {
	s := p.fromConfig(gatewayName)
	if s == nil {
		return Settings{}, fmt.Errorf("gateway %q: %w", gatewayName, domainErrors.ErrGatewayNotFound)
	}

	if !complete(gatewayName, *s) && p.store != nil {
		stored, err := p.store.Get(ctx, gatewayName)
		if err != nil {
			return Settings{}, fmt.Errorf("settings store lookup for %q: %w", gatewayName, err)
		}
		if stored != nil {
			merge(s, stored)
		}
	}

	if !complete(gatewayName, *s) {
		return Settings{}, fmt.Errorf("gateway %q: %w", gatewayName, domainErrors.ErrConfigIncomplete)
	}
	return *s, nil
}

func (p *ConfigSettingsProvider) fromConfig(gatewayName string) *Settings {
	base := Settings{CallbackBaseURL: p.cfg.CallbackBaseURL}
	switch gatewayName {
	case Mpesa:
		base.ConsumerKey = p.cfg.Mpesa.ConsumerKey
		base.ConsumerSecret = p.cfg.Mpesa.ConsumerSecret
		base.ShortCode = p.cfg.Mpesa.ShortCode
		base.Passkey = p.cfg.Mpesa.Passkey
		base.Sandbox = p.cfg.Mpesa.Sandbox
	case PayPal:
		base.ConsumerKey = p.cfg.PayPal.ClientID
		base.ConsumerSecret = p.cfg.PayPal.ClientSecret
		base.Sandbox = p.cfg.PayPal.Sandbox
	case Pesapal:
		base.ConsumerKey = p.cfg.Pesapal.ConsumerKey
		base.ConsumerSecret = p.cfg.Pesapal.ConsumerSecret
		base.IPNID = p.cfg.Pesapal.IPNID
		base.Sandbox = p.cfg.Pesapal.Sandbox
	default:
		return nil
	}
	return &base
}

func complete(gatewayName string, s Settings) bool {
	if s.ConsumerKey == "" || s.ConsumerSecret == "" {
		return false
	}
	switch gatewayName {
	case Mpesa:
		return s.ShortCode != "" && s.Passkey != ""
	case Pesapal:
		return s.IPNID != ""
	}
	return true
}

// merge fills empty fields of dst from stored. Environment values win.
func merge(dst *Settings, stored *Settings) {
	if dst.ConsumerKey == "" {
		dst.ConsumerKey = stored.ConsumerKey
	}
	if dst.ConsumerSecret == "" {
		dst.ConsumerSecret = stored.ConsumerSecret
	}
	if dst.ShortCode == "" {
		dst.ShortCode = stored.ShortCode
	}
	if dst.Passkey == "" {
		dst.Passkey = stored.Passkey
	}
	if dst.IPNID == "" {
		dst.IPNID = stored.IPNID
	}
	if dst.CallbackBaseURL == "" {
		dst.CallbackBaseURL = stored.CallbackBaseURL
	}
}
