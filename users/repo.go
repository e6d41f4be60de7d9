package users

// AccountRepo stores backend accounts. Email lookups are case-insensitive.
type AccountRepo interface {
	Upsert(account *Account) error
	Delete(id string) error
	GetByEmail(email string) (*Account, error)
	GetByID(id string) (*Account, error)
	GetByExternalID(sub string) (*Account, error)
	List(offset, limit int) ([]*Account, error)
}
