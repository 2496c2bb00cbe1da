package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pesio-ai/be-approvals/internal/database"
	"github.com/pesio-ai/be-approvals/internal/errors"
)

// querier is satisfied by both *database.DB and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ApprovalRepository is the Postgres ApprovalStore. Documents, groups and
// approvers are only ever written inside InTransaction.
type ApprovalRepository struct {
	db *database.DB
	approvalQueries
}

// NewApprovalRepository creates a new ApprovalRepository.
func NewApprovalRepository(db *database.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db, approvalQueries: approvalQueries{q: db}}
}

// InTransaction runs fn in one database transaction.
func (r *ApprovalRepository) InTransaction(ctx context.Context, fn func(tx ApprovalTx) error) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		return fn(&approvalTx{approvalQueries: approvalQueries{q: tx}})
	})
}

// ListPendingByUser returns rows where the approver, its group and its
// document are all pending.
func (r *ApprovalRepository) ListPendingByUser(ctx context.Context, userID string) ([]*PendingApproval, error) {
	query := `
		SELECT d.id, d.origin, d.origin_ref, d.description, d.created_at,
		       g.id, g.approval_group, g.amount,
		       a.id, a.user_id, a.level
		FROM approval_group_approvers a
		JOIN approval_document_groups g ON g.id = a.group_id
		JOIN approval_documents d       ON d.id = g.approval_id
		WHERE a.user_id = $1
		  AND a.status = 'pending'
		  AND g.status = 'pending'
		  AND d.status = 'pending'
		ORDER BY d.created_at DESC, g.created_at ASC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list pending approvals")
	}
	defer rows.Close()

	var items []*PendingApproval
	for rows.Next() {
		p := &PendingApproval{}
		err := rows.Scan(
			&p.DocumentID,
			&p.Origin,
			&p.OriginRef,
			&p.Description,
			&p.DocumentCreatedAt,
			&p.GroupID,
			&p.ApprovalGroup,
			&p.Amount,
			&p.ApproverID,
			&p.UserID,
			&p.Level,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan pending approval")
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list pending approvals")
	}
	return items, nil
}

// approvalTx is the ApprovalTx handed to InTransaction callbacks.
type approvalTx struct {
	approvalQueries
}

// ── Shared queries ────────────────────────────────────────────────────────────

type approvalQueries struct {
	q querier
}

const documentColumns = `
	d.id, d.origin, d.origin_ref, d.description, d.status, d.created_at, d.updated_at`

const groupColumns = `
	g.id, g.approval_id, g.approval_group, g.amount, g.status, g.created_at, g.updated_at`

const approverColumns = `
	a.id, a.group_id, a.user_id, COALESCE(u.name, ''), a.level, a.status,
	a.approved_at, a.created_at, a.updated_at`

// GetDocument retrieves a document by primary key.
func (r approvalQueries) GetDocument(ctx context.Context, id string) (*ApprovalDocument, error) {
	query := `SELECT ` + documentColumns + ` FROM approval_documents d WHERE d.id = $1`

	doc, err := scanDocument(r.q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval_document", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval document")
	}
	return doc, nil
}

// FindLatestByOrigin returns the most recent document raised for a reference
// in the requesting module.
func (r approvalQueries) FindLatestByOrigin(ctx context.Context, origin, originRef string) (*ApprovalDocument, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM approval_documents d
		WHERE d.origin = $1 AND d.origin_ref = $2
		ORDER BY d.created_at DESC
		LIMIT 1
	`

	doc, err := scanDocument(r.q.QueryRow(ctx, query, origin, originRef))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval_document", origin+"/"+originRef)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to find approval document")
	}
	return doc, nil
}

// GetGroup retrieves a group by primary key.
func (r approvalQueries) GetGroup(ctx context.Context, id string) (*ApprovalGroup, error) {
	query := `SELECT ` + groupColumns + ` FROM approval_document_groups g WHERE g.id = $1`

	group, err := scanGroup(r.q.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval_group", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval group")
	}
	return group, nil
}

// ListGroups returns a document's groups in creation order.
func (r approvalQueries) ListGroups(ctx context.Context, documentID string) ([]*ApprovalGroup, error) {
	query := `
		SELECT ` + groupColumns + `
		FROM approval_document_groups g
		WHERE g.approval_id = $1
		ORDER BY g.created_at ASC, g.id ASC
	`

	rows, err := r.q.Query(ctx, query, documentID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approval groups")
	}
	defer rows.Close()

	var groups []*ApprovalGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval group")
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approval groups")
	}
	return groups, nil
}

// ListApprovers returns a group's approvers ordered by level.
func (r approvalQueries) ListApprovers(ctx context.Context, groupID string) ([]*GroupApprover, error) {
	query := `
		SELECT ` + approverColumns + `
		FROM approval_group_approvers a
		LEFT JOIN users u ON u.id = a.user_id
		WHERE a.group_id = $1
		ORDER BY a.level ASC, a.created_at ASC
	`
	return r.queryApprovers(ctx, query, groupID)
}

// ── Transactional operations ──────────────────────────────────────────────────

// LockPendency locks the document, group and approver rows for the triple, in
// that order, so concurrent actions on one document serialize. When a user
// holds several slots in one group the open slot with the highest level wins.
func (t *approvalTx) LockPendency(ctx context.Context, documentID, groupID, userID string) (*Pendency, error) {
	query := `
		SELECT ` + documentColumns + `,` + groupColumns + `,` + approverColumns + `
		FROM approval_group_approvers a
		JOIN approval_document_groups g ON g.id = a.group_id
		JOIN approval_documents d       ON d.id = g.approval_id
		LEFT JOIN users u               ON u.id = a.user_id
		WHERE d.id = $1 AND g.id = $2 AND a.user_id = $3
		ORDER BY (a.status IN ('pending', 'waiting_previous_level')) DESC, a.level DESC
		LIMIT 1
		FOR UPDATE OF d, g, a
	`

	p := &Pendency{
		Document: &ApprovalDocument{},
		Group:    &ApprovalGroup{},
		Approver: &GroupApprover{},
	}
	d, g, a := p.Document, p.Group, p.Approver
	err := t.q.QueryRow(ctx, query, documentID, groupID, userID).Scan(
		&d.ID, &d.Origin, &d.OriginRef, &d.Description, &d.Status, &d.CreatedAt, &d.UpdatedAt,
		&g.ID, &g.ApprovalID, &g.ApprovalGroup, &g.Amount, &g.Status, &g.CreatedAt, &g.UpdatedAt,
		&a.ID, &a.GroupID, &a.UserID, &a.UserName, &a.Level, &a.Status, &a.ApprovedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("pendency", documentID+"/"+groupID+"/"+userID)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to lock pendency")
	}
	return p, nil
}

// LockGroupApprovers locks every approver row of a group.
func (t *approvalTx) LockGroupApprovers(ctx context.Context, groupID string) ([]*GroupApprover, error) {
	query := `
		SELECT ` + approverColumns + `
		FROM approval_group_approvers a
		LEFT JOIN users u ON u.id = a.user_id
		WHERE a.group_id = $1
		ORDER BY a.level ASC, a.created_at ASC
		FOR UPDATE OF a
	`
	return t.queryApprovers(ctx, query, groupID)
}

// CreateDocument inserts a pending document.
func (t *approvalTx) CreateDocument(ctx context.Context, doc *ApprovalDocument) error {
	query := `
		INSERT INTO approval_documents (origin, origin_ref, description, status)
		VALUES ($1, $2, $3, 'pending'::approval_status)
		RETURNING id, status, created_at, updated_at
	`

	err := t.q.QueryRow(ctx, query,
		doc.Origin,
		doc.OriginRef,
		doc.Description,
	).Scan(&doc.ID, &doc.Status, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval document")
	}
	return nil
}

// CreateGroup inserts a pending group.
func (t *approvalTx) CreateGroup(ctx context.Context, group *ApprovalGroup) error {
	query := `
		INSERT INTO approval_document_groups (approval_id, approval_group, amount, status)
		VALUES ($1, $2, $3, 'pending'::approval_status)
		RETURNING id, status, created_at, updated_at
	`

	err := t.q.QueryRow(ctx, query,
		group.ApprovalID,
		group.ApprovalGroup,
		group.Amount,
	).Scan(&group.ID, &group.Status, &group.CreatedAt, &group.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval group")
	}
	return nil
}

// CreateApprover inserts one approver slot with its initial status.
func (t *approvalTx) CreateApprover(ctx context.Context, a *GroupApprover) error {
	query := `
		INSERT INTO approval_group_approvers (group_id, user_id, level, status)
		VALUES ($1, $2, $3, $4::approver_status)
		RETURNING id, created_at, updated_at
	`

	err := t.q.QueryRow(ctx, query,
		a.GroupID,
		a.UserID,
		a.Level,
		a.Status,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create group approver")
	}
	return nil
}

// SetApproverStatus moves the given approvers to status. A non-nil decidedAt
// stamps approved_at; nil keeps the current value.
func (t *approvalTx) SetApproverStatus(ctx context.Context, ids []string, status ApproverStatus, decidedAt *time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE approval_group_approvers
		SET status      = $2::approver_status,
		    approved_at = COALESCE($3, approved_at),
		    updated_at  = NOW()
		WHERE id = ANY($1::uuid[])
	`

	tag, err := t.q.Exec(ctx, query, ids, status, decidedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update approver status")
	}
	if int(tag.RowsAffected()) != len(ids) {
		return errors.New(errors.ErrCodeInternal, "approver status update touched an unexpected number of rows")
	}
	return nil
}

// SetGroupStatus updates a group's derived status.
func (t *approvalTx) SetGroupStatus(ctx context.Context, id string, status ApprovalStatus) error {
	query := `
		UPDATE approval_document_groups
		SET status     = $2::approval_status,
		    updated_at = NOW()
		WHERE id = $1
	`

	tag, err := t.q.Exec(ctx, query, id, status)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update group status")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("approval_group", id)
	}
	return nil
}

// SetDocumentStatus updates a document's derived status.
func (t *approvalTx) SetDocumentStatus(ctx context.Context, id string, status ApprovalStatus) error {
	query := `
		UPDATE approval_documents
		SET status     = $2::approval_status,
		    updated_at = NOW()
		WHERE id = $1
	`

	tag, err := t.q.Exec(ctx, query, id, status)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update document status")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("approval_document", id)
	}
	return nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*ApprovalDocument, error) {
	d := &ApprovalDocument{}
	err := row.Scan(
		&d.ID,
		&d.Origin,
		&d.OriginRef,
		&d.Description,
		&d.Status,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func scanGroup(row rowScanner) (*ApprovalGroup, error) {
	g := &ApprovalGroup{}
	err := row.Scan(
		&g.ID,
		&g.ApprovalID,
		&g.ApprovalGroup,
		&g.Amount,
		&g.Status,
		&g.CreatedAt,
		&g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (r approvalQueries) queryApprovers(ctx context.Context, query string, groupID string) ([]*GroupApprover, error) {
	rows, err := r.q.Query(ctx, query, groupID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list group approvers")
	}
	defer rows.Close()

	var approvers []*GroupApprover
	for rows.Next() {
		a := &GroupApprover{}
		err := rows.Scan(
			&a.ID,
			&a.GroupID,
			&a.UserID,
			&a.UserName,
			&a.Level,
			&a.Status,
			&a.ApprovedAt,
			&a.CreatedAt,
			&a.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan group approver")
		}
		approvers = append(approvers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list group approvers")
	}
	return approvers, nil
}
