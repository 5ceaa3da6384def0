package domain

import (
	"time"
)

// Landlord represents a property owner using the platform
type Landlord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Rolodex   []string  `json:"rolodex"` // saved contractor ids, consulted before broad search
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
