package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// ── Status enums ─────────────────────────────────────────────────────────────

// ApprovalStatus is the status of a document or a group.
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
)

// ApproverStatus is the status of one approver slot within a group.
type ApproverStatus string

const (
	ApproverPending               ApproverStatus = "pending"
	ApproverWaitingPreviousLevel  ApproverStatus = "waiting_previous_level"
	ApproverApproved              ApproverStatus = "approved"
	ApproverApprovedByHigherLevel ApproverStatus = "approved_by_higher_level"
	ApproverRejected              ApproverStatus = "rejected"
)

// IsOpen reports whether the approver has not settled yet.
func (s ApproverStatus) IsOpen() bool {
	return s == ApproverPending || s == ApproverWaitingPreviousLevel
}

// ── Domain types ─────────────────────────────────────────────────────────────

// ApprovalDocument is one approval request raised by another module.
type ApprovalDocument struct {
	ID          string
	Origin      string // requesting module tag, e.g. cost_reallocation
	OriginRef   string // identifier inside the requesting module
	Description *string
	Status      ApprovalStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ApprovalGroup is one approval gate of a document.
type ApprovalGroup struct {
	ID            string
	ApprovalID    string // owning document
	ApprovalGroup string // rule-set code, e.g. a cost-center authorization group
	Amount        decimal.Decimal
	Status        ApprovalStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// GroupApprover is one person's slot within a group.
type GroupApprover struct {
	ID         string
	GroupID    string
	UserID     string
	UserName   string // read-side only, joined from users
	Level      int    // lower acts first
	Status     ApproverStatus
	ApprovedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Pendency joins the document, group and approver rows addressed by an
// approve or reject call.
type Pendency struct {
	Document *ApprovalDocument
	Group    *ApprovalGroup
	Approver *GroupApprover
}

// PendingApproval is one row of a user's actionable worklist.
type PendingApproval struct {
	DocumentID        string
	Origin            string
	OriginRef         string
	Description       *string
	DocumentCreatedAt time.Time
	GroupID           string
	ApprovalGroup     string
	Amount            decimal.Decimal
	ApproverID        string
	UserID            string
	Level             int
}

// DirectoryApprover is one eligible approver returned by an approver
// directory for a group code and amount.
type DirectoryApprover struct {
	Username  string
	Level     int
	MinAmount decimal.Decimal
	MaxAmount *decimal.Decimal // nil = no upper bound
}

// User is an internal user resolved from a directory login.
type User struct {
	ID       string
	Username string
	Name     string
}

// ApprovalRule maps an approval group and amount range to one approver.
type ApprovalRule struct {
	ID            string
	ApprovalGroup string
	Username      string
	Level         int
	MinAmount     decimal.Decimal
	MaxAmount     *decimal.Decimal // nil = no upper bound
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ApprovalAuditEntry is one immutable record in the audit log.
type ApprovalAuditEntry struct {
	ID          string
	DocumentID  string
	GroupID     *string
	UserID      *string
	Action      string // created | approved | rejected
	StatusAfter *ApprovalStatus
	Metadata    map[string]interface{}
	PerformedAt time.Time
}
