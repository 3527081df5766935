package models

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Lead is an enquiry submitted against the catalog, optionally about one listing.
type Lead struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone"`
	Email      string    `json:"email,omitempty"`
	Category   Category  `json:"category,omitempty"`
	PropertyID string    `json:"propertyId,omitempty"`
	Message    string    `json:"message,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Validate checks required fields. A property id is only meaningful together with its category.
func (l *Lead) Validate() error {
	var fields []string
	if strings.TrimSpace(l.Name) == "" {
		fields = append(fields, "name")
	}
	digits := 0
	for _, r := range l.Phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < 7 {
		fields = append(fields, "phone")
	}
	if l.Email != "" {
		if _, err := mail.ParseAddress(l.Email); err != nil {
			fields = append(fields, "email")
		}
	}
	if l.Category != "" {
		if c, ok := ParseCategory(string(l.Category)); !ok || c == CategoryAll {
			fields = append(fields, "category")
		}
	} else if strings.TrimSpace(l.PropertyID) != "" {
		fields = append(fields, "category")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
