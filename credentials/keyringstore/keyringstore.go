// Package keyringstore keeps credentials in the OS keychain / credential manager.
package keyringstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jrsteele09/go-session-client/credentials"
	"github.com/zalando/go-keyring"
)

var _ credentials.KV = (*KeyringStore)(nil)

type KeyringStore struct {
	service   string
	namespace string
}

// New stores each key as a keyring item named "<namespace>:<key>" under service.
func New(service, namespace string) *KeyringStore {
	return &KeyringStore{service: service, namespace: namespace}
}

func (k *KeyringStore) item(key string) string {
	return fmt.Sprintf("%s:%s", k.namespace, key)
}

func (k *KeyringStore) Get(_ context.Context, key string) (string, bool, error) {
	value, err := keyring.Get(k.service, k.item(key))
	if errors.Is(err, keyring.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("keyring get %s: %w", key, err)
	}
	return value, true, nil
}

func (k *KeyringStore) SetAll(_ context.Context, values map[string]string) error {
	for key, value := range values {
		if err := keyring.Set(k.service, k.item(key), value); err != nil {
			return fmt.Errorf("keyring set %s: %w", key, err)
		}
	}
	return nil
}

func (k *KeyringStore) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		if err := keyring.Delete(k.service, k.item(key)); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("keyring delete %s: %w", key, err)
		}
	}
	return nil
}
