// Package invitations issues and resolves invitations to organizations.
//
// An invitation is created pending and moves exactly once to accepted,
// declined, revoked or expired. Expiry is applied lazily: any read that
// observes a pending invitation past its expiry writes the expired status
// before doing anything else. SweepExpiredInvitations expires every overdue
// invitation at once and is meant to run on a schedule.
//
// Agency invitations provision a new professional child organization under
// an agency when accepted, owned by the accepting user, who also joins the
// agency itself as a member.
package invitations
