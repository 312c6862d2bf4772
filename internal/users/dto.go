package users

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/snapspend-backend/pkg/db/models"
)

// GuestEmailDomain is the domain used for generated guest account emails.
const GuestEmailDomain = "guest.snapspend.app"

// UserDTO is the transport shape that omits sensitive credentials.
type UserDTO struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	DisplayName *string    `json:"display_name,omitempty"`
	IsGuest     bool       `json:"is_guest"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	ID           uuid.UUID
	Email        string
	PasswordHash *string
	DisplayName  *string
	IsGuest      bool
}

// GuestEmail returns the generated email for a guest account id.
func GuestEmail(id uuid.UUID) string {
	return "guest-" + id.String() + "@" + GuestEmailDomain
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}

	return &UserDTO{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		IsGuest:     u.IsGuest,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}

func (c CreateUserDTO) ToModel() *models.User {
	id := c.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	var displayName *string
	if c.DisplayName != nil {
		if trimmed := strings.TrimSpace(*c.DisplayName); trimmed != "" {
			displayName = &trimmed
		}
	}

	return &models.User{
		ID:           id,
		Email:        strings.ToLower(strings.TrimSpace(c.Email)),
		PasswordHash: c.PasswordHash,
		DisplayName:  displayName,
		IsGuest:      c.IsGuest,
		IsActive:     true,
	}
}
