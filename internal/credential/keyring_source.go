package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/zalando/go-keyring"
)

// KeyringSource reads credentials from the OS keychain. Each account under the
// service becomes one record labelled with the account name.
type KeyringSource struct {
	service  string
	accounts []string
}

// NewKeyringSource returns a nil Source when service or accounts are empty, so callers
// can append the result unconditionally.
func NewKeyringSource(service string, accounts []string) Source {
	service = strings.TrimSpace(service)
	if service == "" || len(accounts) == 0 {
		return nil
	}
	return &KeyringSource{service: service, accounts: accounts}
}

func (s *KeyringSource) Name() string { return string(OriginKeyring) }

func (s *KeyringSource) Load(ctx context.Context) ([]*Record, error) {
	if s == nil {
		return nil, nil
	}
	out := make([]*Record, 0, len(s.accounts))
	for _, account := range s.accounts {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		account = strings.TrimSpace(account)
		if account == "" {
			continue
		}
		secret, err := keyring.Get(s.service, account)
		if err != nil {
			if errors.Is(err, keyring.ErrNotFound) {
				log.WithField("credential", account).Warnf("keyring item not found in service %s", s.service)
				continue
			}
			return out, fmt.Errorf("keyring %s/%s: %w", s.service, account, err)
		}
		if strings.TrimSpace(secret) == "" {
			continue
		}
		out = append(out, NewRecord(account, strings.TrimSpace(secret), OriginKeyring))
	}
	return out, nil
}

// StoreInKeyring saves secret for account under service. Used by voicectl.
func StoreInKeyring(service, account, secret string) error {
	if err := keyring.Set(service, account, secret); err != nil {
		return fmt.Errorf("keyring set %s/%s: %w", service, account, err)
	}
	return nil
}
