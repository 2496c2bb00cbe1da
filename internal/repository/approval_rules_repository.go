package repository

import (
	"context"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-approvals/internal/database"
	"github.com/pesio-ai/be-approvals/internal/errors"
)

// ApprovalRulesRepository handles CRUD for approval_rules and serves as an
// approver directory for deployments without the ERP authorization tables.
type ApprovalRulesRepository struct {
	db *database.DB
}

// NewApprovalRulesRepository creates a new ApprovalRulesRepository.
func NewApprovalRulesRepository(db *database.DB) *ApprovalRulesRepository {
	return &ApprovalRulesRepository{db: db}
}

// Create inserts a new approval rule.
func (r *ApprovalRulesRepository) Create(ctx context.Context, rule *ApprovalRule) error {
	query := `
		INSERT INTO approval_rules
		    (approval_group, username, level, min_amount, max_amount, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		rule.ApprovalGroup,
		rule.Username,
		rule.Level,
		rule.MinAmount,
		rule.MaxAmount,
		rule.IsActive,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval rule")
	}
	return nil
}

// List returns the rules of one approval group (all groups when empty),
// optionally filtered to active only.
func (r *ApprovalRulesRepository) List(ctx context.Context, approvalGroup string, activeOnly bool) ([]*ApprovalRule, error) {
	query := `
		SELECT id, approval_group, username, level,
		       min_amount, max_amount, is_active, created_at, updated_at
		FROM approval_rules
		WHERE ($1 = '' OR approval_group = $1)
	`
	if activeOnly {
		query += " AND is_active = TRUE"
	}
	query += " ORDER BY approval_group ASC, level ASC, username ASC"

	rows, err := r.db.Query(ctx, query, approvalGroup)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approval rules")
	}
	defer rows.Close()

	var rules []*ApprovalRule
	for rows.Next() {
		rule, err := r.scanRule(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval rule")
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approval rules")
	}
	return rules, nil
}

// LookupApprovers returns the approvers of the active rules of a group whose
// amount range covers amount (see RuleCoversAmount), ordered by level.
// Returns an empty slice (no error) when no rule matches.
func (r *ApprovalRulesRepository) LookupApprovers(ctx context.Context, approvalGroup string, amount decimal.Decimal) ([]DirectoryApprover, error) {
	rules, err := r.List(ctx, strings.TrimSpace(approvalGroup), true)
	if err != nil {
		return nil, err
	}

	approvers := make([]DirectoryApprover, 0, len(rules))
	for _, rule := range rules {
		if !RuleCoversAmount(rule.MinAmount, rule.MaxAmount, amount) {
			continue
		}
		approvers = append(approvers, DirectoryApprover{
			Username:  rule.Username,
			Level:     rule.Level,
			MinAmount: rule.MinAmount,
			MaxAmount: rule.MaxAmount,
		})
	}
	sort.SliceStable(approvers, func(i, j int) bool { return approvers[i].Level < approvers[j].Level })
	return approvers, nil
}

// RuleCoversAmount reports whether amount lies in [min, max]. A nil max has
// no upper bound.
func RuleCoversAmount(min decimal.Decimal, max *decimal.Decimal, amount decimal.Decimal) bool {
	if amount.LessThan(min) {
		return false
	}
	if max != nil && amount.GreaterThan(*max) {
		return false
	}
	return true
}

// Update persists changes to an existing rule.
func (r *ApprovalRulesRepository) Update(ctx context.Context, rule *ApprovalRule) error {
	query := `
		UPDATE approval_rules
		SET approval_group = $2,
		    username       = $3,
		    level          = $4,
		    min_amount     = $5,
		    max_amount     = $6,
		    is_active      = $7,
		    updated_at     = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		rule.ID,
		rule.ApprovalGroup,
		rule.Username,
		rule.Level,
		rule.MinAmount,
		rule.MaxAmount,
		rule.IsActive,
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)
	if err == pgx.ErrNoRows {
		return errors.NotFound("approval_rule", rule.ID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update approval rule")
	}
	return nil
}

// Delete removes an approval rule. Documents already created keep their
// approvers; rules are only read at creation time.
func (r *ApprovalRulesRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM approval_rules WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete approval rule")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("approval_rule", id)
	}
	return nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

func (r *ApprovalRulesRepository) scanRule(row rowScanner) (*ApprovalRule, error) {
	rule := &ApprovalRule{}
	err := row.Scan(
		&rule.ID,
		&rule.ApprovalGroup,
		&rule.Username,
		&rule.Level,
		&rule.MinAmount,
		&rule.MaxAmount,
		&rule.IsActive,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rule, nil
}
