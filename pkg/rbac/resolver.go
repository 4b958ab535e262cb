package rbac

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/membership/pkg/cache"
	"github.com/platinummonkey/membership/pkg/models"
	"github.com/platinummonkey/membership/pkg/store"
)

const roleLoadConcurrency = 8

// Permission check results reported to metrics
const (
	resultGranted = "granted"
	resultDenied  = "denied"
	resultError   = "error"
)

// lookupActive returns the active membership of the pair, or nil when the
// user is not an active member.
func (s *Service) lookupActive(ctx context.Context, userID, organizationID string) (*models.Membership, error) {
	m, err := s.store.Memberships().FindMembership(ctx, userID, organizationID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if !m.IsActive() {
		return nil, nil
	}
	return m, nil
}

// overrideMatches reports whether any well-formed entry of list grants the pair
func (s *Service) overrideMatches(list []string, resource models.Resource, action models.Action) bool {
	for _, raw := range list {
		p, err := models.ParsePermission(raw)
		if err != nil {
			s.logger.WithField("permission", raw).Warn("ignoring malformed permission override")
			continue
		}
		if p.Matches(resource, action) {
			return true
		}
	}
	return false
}

// HasPermission reports whether the user may perform action on resource in
// the organization. Users without an active membership are denied.
func (s *Service) HasPermission(ctx context.Context, userID, organizationID string, resource models.Resource, action models.Action, resourceID string) (allowed bool, err error) {
	ctx, done := s.operation(ctx, "HasPermission")
	defer func() {
		done(err)
		switch {
		case err != nil:
			s.metrics.PermissionCheck(resultError)
		case allowed:
			s.metrics.PermissionCheck(resultGranted)
		default:
			s.metrics.PermissionCheck(resultDenied)
		}
	}()

	m, err := s.lookupActive(ctx, userID, organizationID)
	if err != nil || m == nil {
		return false, err
	}
	if m.Type == models.MembershipTypeOwner {
		return true, nil
	}
	if s.overrideMatches(m.Permissions.CustomPermissions, resource, action) {
		return true, nil
	}
	if s.overrideMatches(m.Permissions.RestrictedPermissions, resource, action) {
		return false, nil
	}

	for _, roleID := range m.Roles {
		role, err := s.store.Roles().GetRole(ctx, roleID)
		if err != nil {
			if store.IsNotFound(err) {
				continue
			}
			return false, err
		}
		if !role.UsableIn(organizationID) {
			continue
		}
		for _, p := range role.Permissions {
			if !p.Matches(resource, action) {
				continue
			}
			if !p.HasConditions() {
				return true, nil
			}
			ok, err := s.conditions.Evaluate(ctx, ConditionRequest{
				UserID:         userID,
				OrganizationID: organizationID,
				Resource:       resource,
				Action:         action,
				ResourceID:     resourceID,
				Conditions:     p.Conditions,
			})
			if err != nil {
				return false, fmt.Errorf("evaluating conditions of role %q: %w", role.Name, err)
			}
			if ok {
				return true, nil
			}
		}
	}
	return false, nil
}

// GetUserEffectivePermissions returns the sorted set of concrete
// resource:action strings the user holds in the organization: custom
// grants and role grants, minus restricted entries. Non-members get an
// empty set.
func (s *Service) GetUserEffectivePermissions(ctx context.Context, userID, organizationID string) (_ []string, err error) {
	ctx, done := s.operation(ctx, "GetUserEffectivePermissions")
	defer func() { done(err) }()

	var gen cache.Generation
	cacheable := s.cache != nil
	if cacheable {
		perms, ok, err := s.cache.Get(ctx, userID, organizationID)
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("permission cache read failed")
		} else if ok {
			return perms, nil
		}
		if gen, err = s.cache.Generation(ctx, userID, organizationID); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("permission cache generation read failed")
			cacheable = false
		}
	}
	if !cacheable {
		return s.computeEffective(ctx, userID, organizationID)
	}

	// one computation per (user, organization, generation)
	key := userID + "|" + organizationID + "|" + string(gen)
	shared := context.WithoutCancel(ctx)
	ch := s.effective.DoChan(key, func() (interface{}, error) {
		perms, err := s.computeEffective(shared, userID, organizationID)
		if err != nil {
			return nil, err
		}
		if _, err := s.cache.Set(shared, userID, organizationID, gen, perms); err != nil {
			s.logger.WithContext(shared).WithError(err).Warn("permission cache write failed")
		}
		return perms, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return append([]string(nil), res.Val.([]string)...), nil
	}
}

func (s *Service) computeEffective(ctx context.Context, userID, organizationID string) ([]string, error) {
	m, err := s.lookupActive(ctx, userID, organizationID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return []string{}, nil
	}

	roles := make([]*models.Role, len(m.Roles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(roleLoadConcurrency)
	for i, roleID := range m.Roles {
		g.Go(func() error {
			role, err := s.store.Roles().GetRole(gctx, roleID)
			if err != nil {
				if store.IsNotFound(err) {
					return nil
				}
				return err
			}
			roles[i] = role
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	set := make(map[string]struct{})
	add := func(p models.Permission) {
		for _, perm := range p.Expand() {
			set[perm] = struct{}{}
		}
	}
	for _, raw := range m.Permissions.CustomPermissions {
		if p, err := models.ParsePermission(raw); err == nil {
			add(p)
		}
	}
	for _, role := range roles {
		if role == nil || !role.UsableIn(organizationID) {
			continue
		}
		for _, p := range role.Permissions {
			add(p)
		}
	}
	for _, raw := range m.Permissions.RestrictedPermissions {
		p, err := models.ParsePermission(raw)
		if err != nil {
			continue
		}
		for _, denied := range p.Expand() {
			delete(set, denied)
		}
	}

	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}
