package invitations

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/platinummonkey/membership/pkg/audit"
	"github.com/platinummonkey/membership/pkg/locks"
	"github.com/platinummonkey/membership/pkg/models"
	"github.com/platinummonkey/membership/pkg/observability"
	"github.com/platinummonkey/membership/pkg/orgs"
	"github.com/platinummonkey/membership/pkg/store"
	"github.com/platinummonkey/membership/pkg/users"
)

// DefaultExpiry is the lifetime of an invitation created without one
const DefaultExpiry = 72 * time.Hour

// tokenBytes is the amount of randomness in an invitation token
const tokenBytes = 32

// Service implements the invitation operations
type Service struct {
	store     store.Store
	orgs      *orgs.Service
	directory users.Directory
	recorder  *audit.Recorder
	locker    locks.Locker
	logger    *observability.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock

	defaultExpiry time.Duration
	newToken      func() (string, error)
}

// NewService creates a Service. Memberships and organizations created on
// acceptance go through organizations so their invariants and side effects
// apply.
func NewService(st store.Store, organizations *orgs.Service, directory users.Directory, opts ...Option) *Service {
	s := &Service{
		store:         st,
		orgs:          organizations,
		directory:     directory,
		logger:        observability.NopLogger(),
		clock:         clockwork.NewRealClock(),
		defaultExpiry: DefaultExpiry,
		newToken:      generateToken,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.recorder == nil {
		s.recorder = audit.NewRecorder(nil)
	}
	if s.locker == nil {
		s.locker = locks.NewMemoryLocker(s.metrics)
	}
	s.logger = s.logger.WithField("component", "invitations")
	return s
}

func (s *Service) operation(ctx context.Context, name string) (context.Context, func(error)) {
	return observability.Operation(ctx, s.logger, s.metrics, "invitations", name)
}

// generateToken generates a random token
func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

// expire moves an overdue pending invitation to expired inside tx
func (s *Service) expire(ctx context.Context, tx store.Repositories, inv *models.Invitation, now time.Time) error {
	inv.Status = models.InvitationStatusExpired
	inv.UpdatedAt = now
	return store.Translate(tx.Invitations().UpdateInvitation(ctx, inv))
}

// checkPending returns the error matching an invitation that can no longer
// be acted on, or nil when it is pending and not expired.
func checkPending(inv *models.Invitation, now time.Time) error {
	switch {
	case inv.IsExpiredAt(now), inv.Status == models.InvitationStatusExpired:
		return fmt.Errorf("%w: invitation %s expired at %s", models.ErrExpired, inv.ID, inv.ExpiresAt.Format(time.RFC3339))
	case !inv.IsPending():
		return fmt.Errorf("%w: invitation %s is %s", models.ErrInvalidState, inv.ID, inv.Status)
	}
	return nil
}

// load reads an invitation and applies lazy expiry. When the invitation had
// to be expired the returned error is ErrExpired and the write is committed.
func (s *Service) load(ctx context.Context, find func(ctx context.Context, tx store.Repositories) (*models.Invitation, error)) (*models.Invitation, error) {
	var inv *models.Invitation
	expired := false
	err := s.store.Batch(ctx, func(ctx context.Context, tx store.Repositories) error {
		var err error
		inv, err = find(ctx, tx)
		if err != nil {
			return store.Translate(err)
		}
		now := s.now()
		if inv.IsExpiredAt(now) {
			expired = true
			return s.expire(ctx, tx, inv, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		s.metrics.InvitationsExpired(1)
	}
	return inv, nil
}

func byToken(token string) func(context.Context, store.Repositories) (*models.Invitation, error) {
	return func(ctx context.Context, tx store.Repositories) (*models.Invitation, error) {
		return tx.Invitations().GetInvitationByToken(ctx, token)
	}
}

func byID(id string) func(context.Context, store.Repositories) (*models.Invitation, error) {
	return func(ctx context.Context, tx store.Repositories) (*models.Invitation, error) {
		return tx.Invitations().GetInvitation(ctx, id)
	}
}

func (s *Service) invitationEntry(actor models.Actor, inv *models.Invitation, action string) *audit.Entry {
	orgID := inv.OrganizationID
	if orgID == "" && inv.IsAgency() {
		orgID = inv.AgencyInvitation.ParentOrganizationID
	}
	entry := audit.NewEntry(actor, orgID, audit.CategoryInvitation, action)
	entry.ResourceType = string(models.ResourceInvitation)
	entry.ResourceID = inv.ID
	entry.Metadata = map[string]interface{}{"email": inv.Email}
	return entry
}

// GetInvitationByToken returns an invitation, expiring it first when overdue
func (s *Service) GetInvitationByToken(ctx context.Context, token string) (_ *models.Invitation, err error) {
	ctx, done := s.operation(ctx, "GetInvitationByToken")
	defer func() { done(err) }()

	return s.load(ctx, byToken(token))
}
