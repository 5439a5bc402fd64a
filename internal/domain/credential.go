package domain

import (
	"fmt"
	"strings"
	"time"
)

// Credential statuses
const (
	CredentialStatusActive  = "active"
	CredentialStatusRevoked = "revoked"
)

// DigitalCredential is the membership credential issued on provisioning
type DigitalCredential struct {
	ID               string    `json:"id,omitempty"`
	UserID           string    `json:"user_id"`
	CredentialNumber string    `json:"credential_number"`
	MembershipTier   string    `json:"membership_tier"`
	HolderName       string    `json:"holder_name"`
	IssuedAt         time.Time `json:"issued_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	Status           string    `json:"status"`
}

// CredentialNumber derives a stable credential number from the user id and issue year,
// e.g. SG-2026-3F2A9C1B
func CredentialNumber(userID string, issued time.Time) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(userID) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() == 8 {
				break
			}
		}
	}
	suffix := b.String()
	if suffix == "" {
		suffix = "00000000"
	}
	return fmt.Sprintf("SG-%d-%s", issued.Year(), suffix)
}

// NewDigitalCredential builds a one-year credential for the user
func NewDigitalCredential(u *User, issued time.Time) *DigitalCredential {
	return &DigitalCredential{
		UserID:           u.ID,
		CredentialNumber: CredentialNumber(u.ID, issued),
		MembershipTier:   u.MembershipTier,
		HolderName:       u.DisplayName(),
		IssuedAt:         issued,
		ExpiresAt:        issued.AddDate(1, 0, 0),
		Status:           CredentialStatusActive,
	}
}
