package provisioning

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prohmpiriya/safeguard-membership/internal/domain"
)

// MemberMirror keeps a secondary copy of member profiles
type MemberMirror interface {
	UpsertMember(ctx context.Context, user *domain.User) error
}

// PostgresMemberMirror upserts members into the members table
type PostgresMemberMirror struct {
	pool *pgxpool.Pool
}

// NewPostgresMemberMirror creates a PostgreSQL member mirror
func NewPostgresMemberMirror(pool *pgxpool.Pool) *PostgresMemberMirror {
	return &PostgresMemberMirror{pool: pool}
}

// UpsertMember inserts or refreshes the member row keyed by user id
func (m *PostgresMemberMirror) UpsertMember(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO members (
			id, email, full_name, organisation_id, organisation_name, job_title,
			membership_tier, membership_status, stripe_customer_id, synced_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			full_name = EXCLUDED.full_name,
			organisation_id = EXCLUDED.organisation_id,
			organisation_name = EXCLUDED.organisation_name,
			job_title = EXCLUDED.job_title,
			membership_tier = EXCLUDED.membership_tier,
			membership_status = EXCLUDED.membership_status,
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			synced_at = EXCLUDED.synced_at
	`

	_, err := m.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.DisplayName(),
		nullable(user.OrganisationID),
		nullable(user.OrganisationName),
		nullable(user.JobTitle),
		user.MembershipTier,
		user.MembershipStatus,
		nullable(user.StripeCustomerID),
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert member %s: %w", user.ID, err)
	}
	return nil
}

// NoopMemberMirror is used when the secondary database is disabled
type NoopMemberMirror struct{}

// UpsertMember does nothing
func (NoopMemberMirror) UpsertMember(ctx context.Context, user *domain.User) error {
	return nil
}
