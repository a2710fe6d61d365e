package models

import "time"

// Repository represents a git repository that sessions build against.
type Repository struct {
	ID            string
	Name          string
	URL           string
	DefaultBranch string
	GitProvider   string // "github", "gitlab", etc.
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
