package credentials

import (
	"os"
	"strings"

	"go.uber.org/zap"
)

// Resolver looks up the API key in the secure store and falls back to an environment variable.
type Resolver struct {
	store   Store
	service string
	account string
	envVar  string
	logger  *zap.Logger
}

// NewResolver creates a resolver for the given store entry. envVar may be empty.
func NewResolver(store Store, service, account, envVar string, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		store:   store,
		service: service,
		account: account,
		envVar:  envVar,
		logger:  logger,
	}
}

// APIKey returns the trimmed key or ErrMissingAPIKey. A store read failure is logged and
// treated as a missing key so the environment fallback still applies.
func (r *Resolver) APIKey() (string, error) {
	if r.store != nil {
		key, ok, err := r.store.Read(r.service, r.account)
		if err != nil {
			r.logger.Warn("could not read API key", zap.String("service", r.service), zap.Error(err))
		} else if ok {
			if key = strings.TrimSpace(key); key != "" {
				return key, nil
			}
		}
	}
	if r.envVar != "" {
		if key := strings.TrimSpace(os.Getenv(r.envVar)); key != "" {
			return key, nil
		}
	}
	return "", ErrMissingAPIKey
}

// HasAPIKey reports whether APIKey would succeed.
func (r *Resolver) HasAPIKey() bool {
	_, err := r.APIKey()
	return err == nil
}

// SaveAPIKey stores the trimmed key; an empty key deletes the stored one.
func (r *Resolver) SaveAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return r.DeleteAPIKey()
	}
	return r.store.Write(r.service, r.account, key)
}

// DeleteAPIKey removes the stored key.
func (r *Resolver) DeleteAPIKey() error {
	return r.store.Delete(r.service, r.account)
}
