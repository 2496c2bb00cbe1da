package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-approvals/internal/client"
	"github.com/pesio-ai/be-approvals/internal/errors"
	"github.com/pesio-ai/be-approvals/internal/logger"
	"github.com/pesio-ai/be-approvals/internal/repository"
)

// UserResolverInterface maps a directory login to an internal user. It returns
// a NOT_FOUND error when no active user matches.
type UserResolverInterface interface {
	ResolveUsername(ctx context.Context, username string) (*repository.User, error)
}

// AuditLogInterface stores the approval audit trail.
type AuditLogInterface interface {
	Append(ctx context.Context, entry *repository.ApprovalAuditEntry) error
	ListByDocument(ctx context.Context, documentID string) ([]*repository.ApprovalAuditEntry, error)
}

// Audit actions.
const (
	actionCreated  = "created"
	actionApproved = "approved"
	actionRejected = "rejected"
)

// ApprovalService is the approval engine: it creates approval documents,
// applies approve and reject decisions level by level, and answers status
// queries.
type ApprovalService struct {
	store     repository.ApprovalStore
	directory client.ApproverDirectoryInterface
	users     UserResolverInterface
	audit     AuditLogInterface
	events    client.EventPublisherInterface
	log       *logger.Logger
	now       func() time.Time
}

// Option configures optional ApprovalService collaborators.
type Option func(*ApprovalService)

// WithAuditLog enables the audit trail.
func WithAuditLog(audit AuditLogInterface) Option {
	return func(s *ApprovalService) { s.audit = audit }
}

// WithEventPublisher enables lifecycle events.
func WithEventPublisher(events client.EventPublisherInterface) Option {
	return func(s *ApprovalService) { s.events = events }
}

// WithClock overrides the time source used for approved_at.
func WithClock(now func() time.Time) Option {
	return func(s *ApprovalService) { s.now = now }
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(
	store repository.ApprovalStore,
	directory client.ApproverDirectoryInterface,
	users UserResolverInterface,
	log *logger.Logger,
	opts ...Option,
) *ApprovalService {
	s := &ApprovalService{
		store:     store,
		directory: directory,
		users:     users,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ── Creation ─────────────────────────────────────────────────────────────────

// CreateApproval creates a document with one group per requested approval
// group and populates each group from the approver directory. Nothing is
// written when any group ends up without approvers.
func (s *ApprovalService) CreateApproval(ctx context.Context, req *CreateApprovalRequest) (*CreatedApproval, error) {
	if err := validateCreateRequest(req); err != nil {
		return nil, err
	}

	var result *CreatedApproval
	err := s.store.InTransaction(ctx, func(tx repository.ApprovalTx) error {
		doc := &repository.ApprovalDocument{
			Origin:      strings.TrimSpace(req.Origin),
			OriginRef:   strings.TrimSpace(req.OriginRef),
			Description: req.Description,
			Status:      repository.StatusPending,
		}
		if err := tx.CreateDocument(ctx, doc); err != nil {
			return err
		}

		created := &CreatedApproval{Groups: make([]CreatedGroup, 0, len(req.Groups))}
		groupRows := make([]*repository.ApprovalGroup, 0, len(req.Groups))

		for _, gr := range req.Groups {
			group := &repository.ApprovalGroup{
				ApprovalID:    doc.ID,
				ApprovalGroup: strings.TrimSpace(gr.ApprovalGroup),
				Amount:        gr.Amount,
				Status:        repository.StatusPending,
			}
			if err := tx.CreateGroup(ctx, group); err != nil {
				return err
			}

			approvers, err := s.populateGroup(ctx, tx, group)
			if err != nil {
				return err
			}

			if status := DeriveGroupStatus(approvers); status != group.Status {
				if err := tx.SetGroupStatus(ctx, group.ID, status); err != nil {
					return err
				}
				group.Status = status
			}

			groupRows = append(groupRows, group)
			created.Groups = append(created.Groups, CreatedGroup{
				GroupView: groupView(group),
				Approvers: approverViews(approvers),
			})
		}

		if status := DeriveDocumentStatus(groupRows); status != doc.Status {
			if err := tx.SetDocumentStatus(ctx, doc.ID, status); err != nil {
				return err
			}
			doc.Status = status
		}

		created.Document = documentView(doc)
		result = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("document_id", result.Document.ID).
		Str("origin", result.Document.Origin).
		Str("origin_ref", result.Document.OriginRef).
		Int("groups", len(result.Groups)).
		Msg("Approval document created")

	status := result.Document.Status
	s.appendAudit(ctx, &repository.ApprovalAuditEntry{
		DocumentID:  result.Document.ID,
		Action:      actionCreated,
		StatusAfter: &status,
		Metadata: map[string]interface{}{
			"origin":     result.Document.Origin,
			"origin_ref": result.Document.OriginRef,
			"groups":     len(result.Groups),
		},
	})

	var recipients []string
	for _, g := range result.Groups {
		for _, a := range g.Approvers {
			if a.Status == repository.ApproverPending {
				recipients = append(recipients, a.UserID)
			}
		}
	}
	s.publish(ctx, &client.ApprovalEvent{
		EventType:      client.EventApprovalCreated,
		DocumentID:     result.Document.ID,
		Origin:         result.Document.Origin,
		OriginRef:      result.Document.OriginRef,
		DocumentStatus: string(result.Document.Status),
		Recipients:     recipients,
	})

	return result, nil
}

// populateGroup looks up the group's approvers, resolves their logins and
// inserts one approver row per resolved user. Only the lowest resolved level
// starts pending; higher levels wait.
func (s *ApprovalService) populateGroup(
	ctx context.Context,
	tx repository.ApprovalTx,
	group *repository.ApprovalGroup,
) ([]*repository.GroupApprover, error) {
	candidates, err := s.directory.LookupApprovers(ctx, group.ApprovalGroup, group.Amount)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal,
			fmt.Sprintf("failed to look up approvers for approval group %s", group.ApprovalGroup))
	}
	if len(candidates) == 0 {
		return nil, errors.NoApprovers(group.ApprovalGroup)
	}

	type resolved struct {
		user  *repository.User
		level int
	}
	seen := make(map[string]bool)
	var slots []resolved

	for _, c := range candidates {
		user, err := s.users.ResolveUsername(ctx, c.Username)
		if err != nil {
			if errors.Is(err, errors.ErrCodeNotFound) {
				s.log.Warn().
					Str("approval_group", group.ApprovalGroup).
					Str("username", c.Username).
					Msg("Approver login has no internal user; skipping")
				continue
			}
			return nil, err
		}
		key := fmt.Sprintf("%s/%d", user.ID, c.Level)
		if seen[key] {
			continue
		}
		seen[key] = true
		slots = append(slots, resolved{user: user, level: c.Level})
	}

	if len(slots) == 0 {
		return nil, errors.New(errors.ErrCodeNoApprovers,
			fmt.Sprintf("no approvers of approval group %s resolve to internal users", group.ApprovalGroup))
	}

	minLevel := slots[0].level
	for _, r := range slots[1:] {
		if r.level < minLevel {
			minLevel = r.level
		}
	}

	approvers := make([]*repository.GroupApprover, 0, len(slots))
	for _, r := range slots {
		status := repository.ApproverPending
		if r.level > minLevel {
			status = repository.ApproverWaitingPreviousLevel
		}
		a := &repository.GroupApprover{
			GroupID:  group.ID,
			UserID:   r.user.ID,
			UserName: r.user.Name,
			Level:    r.level,
			Status:   status,
		}
		if err := tx.CreateApprover(ctx, a); err != nil {
			return nil, err
		}
		approvers = append(approvers, a)
	}
	return approvers, nil
}

func validateCreateRequest(req *CreateApprovalRequest) error {
	if req == nil {
		return errors.InvalidInput("request", "request body is required")
	}
	if strings.TrimSpace(req.Origin) == "" {
		return errors.InvalidInput("origin", "origin is required")
	}
	if strings.TrimSpace(req.OriginRef) == "" {
		return errors.InvalidInput("origin_ref", "origin_ref is required")
	}
	if len(req.Groups) == 0 {
		return errors.InvalidInput("groups", "at least one approval group is required")
	}
	for i, g := range req.Groups {
		field := fmt.Sprintf("groups[%d]", i)
		if g == nil || strings.TrimSpace(g.ApprovalGroup) == "" {
			return errors.InvalidInput(field+".approval_group", "approval_group is required")
		}
		if g.Amount.IsNegative() {
			return errors.InvalidInput(field+".amount", "amount must not be negative")
		}
	}
	return nil
}

// ── Decisions ────────────────────────────────────────────────────────────────

// Approve records userID's approval in a group. Every other open approver at
// or below the acting level is settled as approved_by_higher_level, and the
// next waiting level above the actor is unlocked. Returns the document
// snapshot after the decision.
func (s *ApprovalService) Approve(ctx context.Context, documentID, groupID, userID string) (*Snapshot, error) {
	if err := validateTriple(documentID, groupID, userID); err != nil {
		return nil, err
	}

	var (
		snap     *Snapshot
		pendency *repository.Pendency
		skipped  []string
		unlocked []string
		noop     bool
	)
	err := s.store.InTransaction(ctx, func(tx repository.ApprovalTx) error {
		p, err := tx.LockPendency(ctx, documentID, groupID, userID)
		if err != nil {
			return err
		}
		if err := checkActionable(p, true); err != nil {
			return err
		}
		pendency = p

		approvers, err := tx.LockGroupApprovers(ctx, groupID)
		if err != nil {
			return err
		}

		// Nothing left to decide in this group.
		minLevel, ok := minOpenLevel(approvers)
		if !ok {
			noop = true
			snap, err = s.snapshot(ctx, tx, documentID)
			return err
		}

		acting := p.Approver
		now := s.now()

		for _, a := range approvers {
			if a.ID != acting.ID && a.Status.IsOpen() && a.Level <= acting.Level {
				skipped = append(skipped, a.ID)
				a.Status = repository.ApproverApprovedByHigherLevel
				a.ApprovedAt = &now
			}
			if a.ID == acting.ID {
				a.Status = repository.ApproverApproved
				a.ApprovedAt = &now
			}
		}
		if len(skipped) > 0 {
			if err := tx.SetApproverStatus(ctx, skipped, repository.ApproverApprovedByHigherLevel, &now); err != nil {
				return err
			}
		}
		if err := tx.SetApproverStatus(ctx, []string{acting.ID}, repository.ApproverApproved, &now); err != nil {
			return err
		}

		if acting.Level > minLevel {
			s.log.Info().
				Str("group_id", groupID).
				Int("acting_level", acting.Level).
				Int("min_open_level", minLevel).
				Msg("Higher level approval settles lower levels")
		}

		if next, ok := nextWaitingLevel(approvers, acting.Level); ok {
			var ids []string
			for _, a := range approvers {
				if a.Level == next && a.Status == repository.ApproverWaitingPreviousLevel {
					ids = append(ids, a.ID)
					unlocked = append(unlocked, a.UserID)
					a.Status = repository.ApproverPending
				}
			}
			if err := tx.SetApproverStatus(ctx, ids, repository.ApproverPending, nil); err != nil {
				return err
			}
		}

		if err := s.settleStatuses(ctx, tx, p, approvers); err != nil {
			return err
		}

		snap, err = s.snapshot(ctx, tx, documentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if noop {
		return snap, nil
	}

	s.log.Info().
		Str("document_id", documentID).
		Str("group_id", groupID).
		Str("user_id", userID).
		Int("skipped", len(skipped)).
		Int("unlocked", len(unlocked)).
		Str("document_status", string(snap.Document.Status)).
		Msg("Approval recorded")

	groupStatus := snap.groupStatus(groupID)
	s.appendAudit(ctx, &repository.ApprovalAuditEntry{
		DocumentID:  documentID,
		GroupID:     &groupID,
		UserID:      &userID,
		Action:      actionApproved,
		StatusAfter: &groupStatus,
		Metadata: map[string]interface{}{
			"level":           pendency.Approver.Level,
			"skipped":         len(skipped),
			"document_status": string(snap.Document.Status),
		},
	})

	s.publish(ctx, &client.ApprovalEvent{
		EventType:      client.EventApprovalApproved,
		DocumentID:     documentID,
		Origin:         snap.Document.Origin,
		OriginRef:      snap.Document.OriginRef,
		GroupID:        groupID,
		ActorID:        userID,
		DocumentStatus: string(snap.Document.Status),
	})
	if len(unlocked) > 0 {
		s.publish(ctx, &client.ApprovalEvent{
			EventType:      client.EventLevelUnlocked,
			DocumentID:     documentID,
			Origin:         snap.Document.Origin,
			OriginRef:      snap.Document.OriginRef,
			GroupID:        groupID,
			ActorID:        userID,
			DocumentStatus: string(snap.Document.Status),
			Recipients:     unlocked,
		})
	}

	return snap, nil
}

// Reject records userID's rejection. A rejection is terminal for the group and
// the whole document. Only an approver whose level is currently pending may
// reject.
func (s *ApprovalService) Reject(ctx context.Context, documentID, groupID, userID string) (*Snapshot, error) {
	if err := validateTriple(documentID, groupID, userID); err != nil {
		return nil, err
	}

	var snap *Snapshot
	err := s.store.InTransaction(ctx, func(tx repository.ApprovalTx) error {
		p, err := tx.LockPendency(ctx, documentID, groupID, userID)
		if err != nil {
			return err
		}
		if err := checkActionable(p, false); err != nil {
			return err
		}

		now := s.now()
		if err := tx.SetApproverStatus(ctx, []string{p.Approver.ID}, repository.ApproverRejected, &now); err != nil {
			return err
		}
		if err := tx.SetGroupStatus(ctx, groupID, repository.StatusRejected); err != nil {
			return err
		}
		if err := tx.SetDocumentStatus(ctx, documentID, repository.StatusRejected); err != nil {
			return err
		}

		snap, err = s.snapshot(ctx, tx, documentID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("document_id", documentID).
		Str("group_id", groupID).
		Str("user_id", userID).
		Msg("Approval rejected")

	rejected := repository.StatusRejected
	s.appendAudit(ctx, &repository.ApprovalAuditEntry{
		DocumentID:  documentID,
		GroupID:     &groupID,
		UserID:      &userID,
		Action:      actionRejected,
		StatusAfter: &rejected,
	})

	s.publish(ctx, &client.ApprovalEvent{
		EventType:      client.EventApprovalRejected,
		DocumentID:     documentID,
		Origin:         snap.Document.Origin,
		OriginRef:      snap.Document.OriginRef,
		GroupID:        groupID,
		ActorID:        userID,
		DocumentStatus: string(snap.Document.Status),
	})

	return snap, nil
}

// settleStatuses re-derives the group status from its approvers and the
// document status from its groups, writing only what changed.
func (s *ApprovalService) settleStatuses(
	ctx context.Context,
	tx repository.ApprovalTx,
	p *repository.Pendency,
	approvers []*repository.GroupApprover,
) error {
	if status := DeriveGroupStatus(approvers); status != p.Group.Status {
		if err := tx.SetGroupStatus(ctx, p.Group.ID, status); err != nil {
			return err
		}
	}

	groups, err := tx.ListGroups(ctx, p.Document.ID)
	if err != nil {
		return err
	}
	if status := DeriveDocumentStatus(groups); status != p.Document.Status {
		if err := tx.SetDocumentStatus(ctx, p.Document.ID, status); err != nil {
			return err
		}
	}
	return nil
}

// checkActionable validates a locked pendency. Waiting approvers may approve
// (overriding lower levels) but only pending ones may reject.
func checkActionable(p *repository.Pendency, allowWaiting bool) error {
	if p.Document.Status != repository.StatusPending {
		return errors.InvalidState(fmt.Sprintf("approval document is %s", p.Document.Status))
	}
	if p.Group.Status != repository.StatusPending {
		return errors.InvalidState(fmt.Sprintf("approval group is %s", p.Group.Status))
	}
	switch p.Approver.Status {
	case repository.ApproverPending:
		return nil
	case repository.ApproverWaitingPreviousLevel:
		if allowWaiting {
			return nil
		}
		return errors.InvalidState("approver is waiting for a previous level")
	default:
		return errors.InvalidState(fmt.Sprintf("approver already decided (%s)", p.Approver.Status))
	}
}

func validateTriple(documentID, groupID, userID string) error {
	if err := requireID("document_id", documentID); err != nil {
		return err
	}
	if err := requireID("group_id", groupID); err != nil {
		return err
	}
	return requireID("user_id", userID)
}

// requireID rejects empty and non-UUID identifiers before they reach the store.
func requireID(field, value string) error {
	if value == "" {
		return errors.InvalidInput(field, field+" is required")
	}
	if _, err := uuid.Parse(value); err != nil {
		return errors.InvalidInput(field, field+" must be a UUID")
	}
	return nil
}

// ── Queries ──────────────────────────────────────────────────────────────────

// GetPendingByUser returns the user's actionable approvals, newest document
// first.
func (s *ApprovalService) GetPendingByUser(ctx context.Context, userID string) ([]PendingItem, error) {
	if err := requireID("user_id", userID); err != nil {
		return nil, err
	}
	rows, err := s.store.ListPendingByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return pendingItems(rows), nil
}

// GetDocumentSnapshot returns the status tree of a document.
func (s *ApprovalService) GetDocumentSnapshot(ctx context.Context, documentID string) (*Snapshot, error) {
	if err := requireID("document_id", documentID); err != nil {
		return nil, err
	}
	return s.snapshot(ctx, s.store, documentID)
}

// GetSnapshotByGroup returns the snapshot of the document owning a group.
func (s *ApprovalService) GetSnapshotByGroup(ctx context.Context, groupID string) (*Snapshot, error) {
	if err := requireID("group_id", groupID); err != nil {
		return nil, err
	}
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return s.snapshot(ctx, s.store, group.ApprovalID)
}

// GetByOrigin returns the snapshot of the most recent document raised for an
// origin reference.
func (s *ApprovalService) GetByOrigin(ctx context.Context, origin, originRef string) (*Snapshot, error) {
	if origin == "" {
		return nil, errors.InvalidInput("origin", "origin is required")
	}
	if originRef == "" {
		return nil, errors.InvalidInput("origin_ref", "origin_ref is required")
	}
	doc, err := s.store.FindLatestByOrigin(ctx, origin, originRef)
	if err != nil {
		return nil, err
	}
	return s.snapshot(ctx, s.store, doc.ID)
}

// GetHistory returns the audit trail of a document, oldest first. Without an
// audit log the trail is empty.
func (s *ApprovalService) GetHistory(ctx context.Context, documentID string) ([]AuditEntryView, error) {
	if err := requireID("document_id", documentID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	if s.audit == nil {
		return []AuditEntryView{}, nil
	}
	entries, err := s.audit.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return auditEntryViews(entries), nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

// appendAudit writes an audit entry and logs a warning on failure.
func (s *ApprovalService) appendAudit(ctx context.Context, entry *repository.ApprovalAuditEntry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("document_id", entry.DocumentID).
			Str("action", entry.Action).
			Msg("Failed to write audit log entry")
	}
}

func (s *ApprovalService) publish(ctx context.Context, event *client.ApprovalEvent) {
	if s.events == nil {
		return
	}
	event.OccurredAt = s.now()
	s.events.PublishApprovalEvent(ctx, event)
}
