package auth

import (
	"log/slog"
	"sync"
	"time"
)

// TokenProvider hands out SAS tokens for a single device and regenerates
// them before they expire. It is safe for concurrent use.
type TokenProvider struct {
	hostName string
	deviceID string
	key      string
	validity time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewTokenProvider creates a provider issuing tokens valid for the given
// duration. The clock defaults to time.Now.
func NewTokenProvider(hostName, deviceID, sharedAccessKey string, validity time.Duration) *TokenProvider {
	return &TokenProvider{
		hostName: hostName,
		deviceID: deviceID,
		key:      sharedAccessKey,
		validity: validity,
		now:      time.Now,
		logger:   slog.Default(),
	}
}

// SetClock replaces the time source, for tests.
func (p *TokenProvider) SetClock(now func() time.Time) {
	p.now = now
}

// SetLogger sets the logger for the provider.
func (p *TokenProvider) SetLogger(logger *slog.Logger) {
	p.logger = logger
}

// Username returns the MQTT username for the provider's device.
func (p *TokenProvider) Username() string {
	return Username(p.hostName, p.deviceID)
}

// Token returns a SAS token with at least a tenth of the validity window
// remaining, generating a fresh one when the cached token is too close to
// expiry.
func (p *TokenProvider) Token() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.token != "" && now.Before(p.expiresAt.Add(-p.validity/10)) {
		return p.token, nil
	}

	token, err := GenerateSASToken(ResourceURI(p.hostName, p.deviceID), p.key, p.validity, now)
	if err != nil {
		return "", err
	}

	p.token = token
	p.expiresAt = now.Add(p.validity)
	p.logger.Debug("issued SAS token", "device", p.deviceID, "expires", p.expiresAt)
	return token, nil
}

// MQTTCredentials implements the paho credentials-provider contract so
// reconnects pick up a fresh password. Generation only fails on a bad key,
// which would have failed the first connect already, so errors here are
// logged and the stale token returned.
func (p *TokenProvider) MQTTCredentials() (username string, password string) {
	token, err := p.Token()
	if err != nil {
		p.logger.Error("SAS token renewal failed", "device", p.deviceID, "error", err)
		p.mu.Lock()
		token = p.token
		p.mu.Unlock()
	}
	return p.Username(), token
}
