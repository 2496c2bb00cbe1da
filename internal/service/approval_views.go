package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-approvals/internal/repository"
)

// CreateApprovalRequest is the input of CreateApproval.
type CreateApprovalRequest struct {
	Origin      string                `json:"origin"`
	OriginRef   string                `json:"origin_ref"`
	Description *string               `json:"description,omitempty"`
	Groups      []*CreateGroupRequest `json:"groups"`
}

// CreateGroupRequest is one approval group of a CreateApprovalRequest. A
// missing amount is zero.
type CreateGroupRequest struct {
	ApprovalGroup string          `json:"approval_group"`
	Amount        decimal.Decimal `json:"amount"`
}

// CreatedApproval is the result of CreateApproval.
type CreatedApproval struct {
	Document DocumentView   `json:"document"`
	Groups   []CreatedGroup `json:"groups"`
}

// CreatedGroup is a created group together with its approvers.
type CreatedGroup struct {
	GroupView
	Approvers []ApproverView `json:"approvers"`
}

// DocumentView is the public shape of a document.
type DocumentView struct {
	ID          string                    `json:"id"`
	Origin      string                    `json:"origin"`
	OriginRef   string                    `json:"origin_ref"`
	Description *string                   `json:"description,omitempty"`
	Status      repository.ApprovalStatus `json:"status"`
	CreatedAt   time.Time                 `json:"created_at"`
	UpdatedAt   time.Time                 `json:"updated_at"`
}

// GroupView is the public shape of a group.
type GroupView struct {
	ID            string                    `json:"id"`
	ApprovalGroup string                    `json:"approval_group"`
	Amount        decimal.Decimal           `json:"amount"`
	Status        repository.ApprovalStatus `json:"status"`
}

// ApproverView is the public shape of an approver slot.
type ApproverView struct {
	UserID     string                    `json:"user_id"`
	Name       string                    `json:"name"`
	Level      int                       `json:"level"`
	Status     repository.ApproverStatus `json:"status"`
	ApprovedAt *time.Time                `json:"approved_at,omitempty"`
}

// Snapshot is the full status tree of one document.
type Snapshot struct {
	Document SnapshotDocument `json:"document"`
	Groups   []SnapshotGroup  `json:"groups"`
	Pending  SnapshotPending  `json:"pending"`
}

// SnapshotDocument identifies the document of a snapshot.
type SnapshotDocument struct {
	ID        string                    `json:"id"`
	Origin    string                    `json:"origin"`
	OriginRef string                    `json:"origin_ref"`
	Status    repository.ApprovalStatus `json:"status"`
}

// SnapshotGroup is one group of a snapshot.
type SnapshotGroup struct {
	GroupID       string                    `json:"group_id"`
	ApprovalGroup string                    `json:"approval_group"`
	Status        repository.ApprovalStatus `json:"status"`
	Approvers     []ApproverView            `json:"approvers"`
}

// SnapshotPending lists what is still outstanding: pending groups, and the
// approvers of those groups who can act right now.
type SnapshotPending struct {
	Groups []string      `json:"groups"`
	Users  []PendingUser `json:"users"`
}

// PendingUser is an actionable approver of a pending group.
type PendingUser struct {
	GroupID string `json:"group_id"`
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
}

// PendingItem is one row of a user's worklist.
type PendingItem struct {
	DocumentID        string          `json:"document_id"`
	Origin            string          `json:"origin"`
	OriginRef         string          `json:"origin_ref"`
	Description       *string         `json:"description,omitempty"`
	DocumentCreatedAt time.Time       `json:"document_created_at"`
	GroupID           string          `json:"group_id"`
	ApprovalGroup     string          `json:"approval_group"`
	Amount            decimal.Decimal `json:"amount"`
	Level             int             `json:"level"`
}

// AuditEntryView is the public shape of an audit log entry.
type AuditEntryView struct {
	ID          string                     `json:"id"`
	GroupID     *string                    `json:"group_id,omitempty"`
	UserID      *string                    `json:"user_id,omitempty"`
	Action      string                     `json:"action"`
	StatusAfter *repository.ApprovalStatus `json:"status_after,omitempty"`
	Metadata    map[string]interface{}     `json:"metadata,omitempty"`
	PerformedAt time.Time                  `json:"performed_at"`
}

// ── converters ───────────────────────────────────────────────────────────────

func documentView(d *repository.ApprovalDocument) DocumentView {
	return DocumentView{
		ID:          d.ID,
		Origin:      d.Origin,
		OriginRef:   d.OriginRef,
		Description: d.Description,
		Status:      d.Status,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func groupView(g *repository.ApprovalGroup) GroupView {
	return GroupView{
		ID:            g.ID,
		ApprovalGroup: g.ApprovalGroup,
		Amount:        g.Amount,
		Status:        g.Status,
	}
}

func approverViews(approvers []*repository.GroupApprover) []ApproverView {
	views := make([]ApproverView, 0, len(approvers))
	for _, a := range approvers {
		views = append(views, ApproverView{
			UserID:     a.UserID,
			Name:       a.UserName,
			Level:      a.Level,
			Status:     a.Status,
			ApprovedAt: a.ApprovedAt,
		})
	}
	return views
}

func pendingItems(rows []*repository.PendingApproval) []PendingItem {
	items := make([]PendingItem, 0, len(rows))
	for _, p := range rows {
		items = append(items, PendingItem{
			DocumentID:        p.DocumentID,
			Origin:            p.Origin,
			OriginRef:         p.OriginRef,
			Description:       p.Description,
			DocumentCreatedAt: p.DocumentCreatedAt,
			GroupID:           p.GroupID,
			ApprovalGroup:     p.ApprovalGroup,
			Amount:            p.Amount,
			Level:             p.Level,
		})
	}
	return items
}

func auditEntryViews(entries []*repository.ApprovalAuditEntry) []AuditEntryView {
	views := make([]AuditEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, AuditEntryView{
			ID:          e.ID,
			GroupID:     e.GroupID,
			UserID:      e.UserID,
			Action:      e.Action,
			StatusAfter: e.StatusAfter,
			Metadata:    e.Metadata,
			PerformedAt: e.PerformedAt,
		})
	}
	return views
}
