package users

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/jrsteele09/go-session-client/internal/utils"
	"golang.org/x/crypto/bcrypt"
)

// User is the authenticated identity carried by a session and persisted as auth_user.
type User struct {
	ID                 string  `json:"id"`                           // Unique identifier for the user
	Name               string  `json:"name"`                         // Display name
	Email              string  `json:"email"`                        // User's email address
	Picture            *string `json:"picture,omitempty"`            // Avatar URL, federated accounts usually have one
	ExternalProviderID *string `json:"externalProviderId,omitempty"` // Subject at the federated identity provider
}

// Validate checks the fields a session cannot work without.
func (u User) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(u.Email) == "" {
		return fmt.Errorf("user email is required")
	}
	return nil
}

// PictureURL returns the picture or an empty string.
func (u User) PictureURL() string {
	return utils.Value(u.Picture)
}

// ProfilePatch is a partial update of the mutable profile fields. Nil fields are left unchanged.
type ProfilePatch struct {
	Name    *string `json:"name,omitempty"`
	Picture *string `json:"picture,omitempty"`
}

// Apply returns a copy of u with the patch applied.
func (p ProfilePatch) Apply(u User) User {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Picture != nil {
		u.Picture = utils.Ptr(*p.Picture)
	}
	return u
}

// NewAccount is the partial profile returned by a federated login for an email
// that has no account yet. It is handed to the profile-completion flow.
type NewAccount struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	Sub     string `json:"sub"` // Subject at the identity provider
}

// Account is the backend-side record behind a User.
type Account struct {
	User
	PasswordHash string `json:"-"` // never serialize
	Blocked      bool   `json:"blocked,omitempty"`
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
