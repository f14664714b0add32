package extractor

import (
	"context"
	"errors"
	"fmt"

	"bankmail/internal/repository"
	"bankmail/pkg/secrets"
)

// ErrNoAPIKey is returned when no LLM API key is available from the
// chosen provider.
var ErrNoAPIKey = errors.New("extractor API key not available")

// SettingKeyGeminiToken is the global settings key holding the LLM API
// token.
const SettingKeyGeminiToken = "GEMINI_API_TOKEN"

// KeyProvider supplies the LLM API key. The two implementations cover the
// two runtime contexts: static configuration (environment-driven) and the
// settings table (admin-managed). The caller picks one at construction;
// there is no fallback at call time.
type KeyProvider interface {
	APIKey(ctx context.Context) (string, error)
}

// StaticKeyProvider returns a key fixed at construction.
type StaticKeyProvider struct {
	Key string
}

func (p StaticKeyProvider) APIKey(ctx context.Context) (string, error) {
	if p.Key == "" {
		return "", ErrNoAPIKey
	}
	return p.Key, nil
}

// SettingsKeyProvider looks the key up in the global settings table,
// decrypting it when stored encrypted.
type SettingsKeyProvider struct {
	settings *repository.SettingsRepository
	cipher   *secrets.Cipher
}

func NewSettingsKeyProvider(settings *repository.SettingsRepository, cipher *secrets.Cipher) *SettingsKeyProvider {
	return &SettingsKeyProvider{settings: settings, cipher: cipher}
}

func (p *SettingsKeyProvider) APIKey(ctx context.Context) (string, error) {
	value, isEncrypted, err := p.settings.GetValue(ctx, SettingKeyGeminiToken)
	if errors.Is(err, repository.ErrSettingNotFound) {
		return "", ErrNoAPIKey
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", SettingKeyGeminiToken, err)
	}

	if !isEncrypted {
		return value, nil
	}

	plain, err := p.cipher.Decrypt(value)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt %s: %w", SettingKeyGeminiToken, err)
	}
	return plain, nil
}
