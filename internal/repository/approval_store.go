package repository

import (
	"context"
	"time"
)

// ApprovalReader is the read side of the approval store, usable both inside
// and outside a transaction.
type ApprovalReader interface {
	GetDocument(ctx context.Context, id string) (*ApprovalDocument, error)
	GetGroup(ctx context.Context, id string) (*ApprovalGroup, error)
	ListGroups(ctx context.Context, documentID string) ([]*ApprovalGroup, error)
	ListApprovers(ctx context.Context, groupID string) ([]*GroupApprover, error)
	FindLatestByOrigin(ctx context.Context, origin, originRef string) (*ApprovalDocument, error)
}

// ApprovalTx is the transactional view of the store. Every mutation of
// documents, groups and approvers goes through it.
type ApprovalTx interface {
	ApprovalReader

	// LockPendency locks and returns the document, group and approver rows for
	// the triple. Returns a NotFound error when the triple does not exist.
	LockPendency(ctx context.Context, documentID, groupID, userID string) (*Pendency, error)
	// LockGroupApprovers locks and returns every approver of a group.
	LockGroupApprovers(ctx context.Context, groupID string) ([]*GroupApprover, error)

	CreateDocument(ctx context.Context, doc *ApprovalDocument) error
	CreateGroup(ctx context.Context, group *ApprovalGroup) error
	CreateApprover(ctx context.Context, approver *GroupApprover) error

	SetApproverStatus(ctx context.Context, ids []string, status ApproverStatus, approvedAt *time.Time) error
	SetGroupStatus(ctx context.Context, id string, status ApprovalStatus) error
	SetDocumentStatus(ctx context.Context, id string, status ApprovalStatus) error
}

// ApprovalStore is the durable home of approval documents.
type ApprovalStore interface {
	ApprovalReader

	// InTransaction runs fn atomically; any error rolls back every write made
	// through tx and is returned unchanged.
	InTransaction(ctx context.Context, fn func(tx ApprovalTx) error) error
	// ListPendingByUser returns the user's actionable approvals, newest
	// document first.
	ListPendingByUser(ctx context.Context, userID string) ([]*PendingApproval, error)
}
