package model

import "time"

// Category is a named spending bucket with display metadata. Categories have an
// independent lifecycle and are referenced by line items and rules.
type Category struct {
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Color       string    `json:"color"`
	Icon        string    `json:"icon,omitempty"`
	ID          int64     `json:"id"`
	SortOrder   int       `json:"sort_order"`
	IsActive    bool      `json:"is_active"`
}
