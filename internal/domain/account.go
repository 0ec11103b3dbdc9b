package domain

import (
	"strings"
	"time"
)

type Account struct {
	ID                         string     `gorm:"primaryKey;size:36" json:"id"`
	Email                      string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash               string     `gorm:"size:1024;not null" json:"-"`
	IsVerified                 bool       `gorm:"not null;default:false" json:"is_verified"`
	VerificationTokenHash      *string    `gorm:"uniqueIndex;size:64" json:"-"`
	VerificationTokenExpiresAt *time.Time `json:"-"`
	VerifiedTokenHash          *string    `gorm:"index;size:64" json:"-"`
	ResetTokenHash             *string    `gorm:"uniqueIndex;size:64" json:"-"`
	ResetTokenExpiresAt        *time.Time `json:"-"`
	VerifiedAt                 *time.Time `json:"verified_at,omitempty"`
	PasswordChangedAt          *time.Time `json:"password_changed_at,omitempty"`

	FullName            string   `gorm:"size:255;not null" json:"full_name"`
	Bio                 string   `gorm:"size:2048" json:"bio,omitempty"`
	Qualification       string   `gorm:"size:255" json:"qualification,omitempty"`
	ProfilePictureURL   string   `gorm:"size:1024" json:"profile_picture_url,omitempty"`
	SkillsOffered       []string `gorm:"serializer:json" json:"skills_offered,omitempty"`
	SkillsWanted        []string `gorm:"serializer:json" json:"skills_wanted,omitempty"`
	HasCompletedProfile bool     `gorm:"not null;default:false" json:"has_completed_profile"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizeEmail applies the case policy used for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (a *Account) VerificationPending(now time.Time) bool {
	return !a.IsVerified && a.VerificationTokenHash != nil &&
		a.VerificationTokenExpiresAt != nil && now.Before(*a.VerificationTokenExpiresAt)
}

func (a *Account) ResetPending(now time.Time) bool {
	return a.ResetTokenHash != nil && a.ResetTokenExpiresAt != nil && now.Before(*a.ResetTokenExpiresAt)
}
