package config

type StoreBackend string

const (
	StoreMemory  StoreBackend = "memory"
	StoreFile    StoreBackend = "file"
	StoreKeyring StoreBackend = "keyring"
	StoreRedis   StoreBackend = "redis"
)

// StoreConfig selects and configures the credential store backend.
type StoreConfig interface {
	GetStoreBackend() StoreBackend
	GetStoreFile() string
	GetEncryptionKey() string
	GetKeyringService() string
	GetRedisURL() string
	GetNamespace() string
}

type Store struct{}

var _ StoreConfig = Store{}

func (Store) GetStoreBackend() StoreBackend {
	return StoreBackend(GetEnv("SESSION_STORE", string(StoreFile)))
}

func (Store) GetStoreFile() string {
	return GetEnv("SESSION_FILE", "./data/session.json")
}

// GetEncryptionKey returns a passphrase for at-rest encryption of the file store. Empty disables it.
func (Store) GetEncryptionKey() string {
	return GetEnv("SESSION_ENCRYPTION_KEY", "")
}

func (Store) GetKeyringService() string {
	return GetEnv("SESSION_KEYRING_SERVICE", "realty-session")
}

func (Store) GetRedisURL() string {
	return GetEnv("SESSION_REDIS_URL", "redis://localhost:6379/0")
}

func (Store) GetNamespace() string {
	return GetEnv("SESSION_NAMESPACE", "default")
}
