package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-approvals/internal/errors"
	"github.com/pesio-ai/be-approvals/internal/logger"
	"github.com/pesio-ai/be-approvals/internal/repository"
)

// RulesStoreInterface persists approval rules.
type RulesStoreInterface interface {
	Create(ctx context.Context, rule *repository.ApprovalRule) error
	List(ctx context.Context, approvalGroup string, activeOnly bool) ([]*repository.ApprovalRule, error)
	Update(ctx context.Context, rule *repository.ApprovalRule) error
	Delete(ctx context.Context, id string) error
}

// RuleRequest is the input of CreateRule and UpdateRule.
type RuleRequest struct {
	ApprovalGroup string           `json:"approval_group"`
	Username      string           `json:"username"`
	Level         int              `json:"level"`
	MinAmount     decimal.Decimal  `json:"min_amount"`
	MaxAmount     *decimal.Decimal `json:"max_amount,omitempty"`
	IsActive      *bool            `json:"is_active,omitempty"`
}

// RuleView is the public shape of an approval rule.
type RuleView struct {
	ID            string           `json:"id"`
	ApprovalGroup string           `json:"approval_group"`
	Username      string           `json:"username"`
	Level         int              `json:"level"`
	MinAmount     decimal.Decimal  `json:"min_amount"`
	MaxAmount     *decimal.Decimal `json:"max_amount,omitempty"`
	IsActive      bool             `json:"is_active"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// ApprovalRulesService manages the rules used by the rules approver directory.
type ApprovalRulesService struct {
	rules RulesStoreInterface
	log   *logger.Logger
}

// NewApprovalRulesService creates a new ApprovalRulesService.
func NewApprovalRulesService(rules RulesStoreInterface, log *logger.Logger) *ApprovalRulesService {
	return &ApprovalRulesService{rules: rules, log: log}
}

// CreateRule validates and stores a new rule. Rules are active unless stated
// otherwise.
func (s *ApprovalRulesService) CreateRule(ctx context.Context, req *RuleRequest) (*RuleView, error) {
	rule, err := ruleFromRequest(req)
	if err != nil {
		return nil, err
	}
	if err := s.rules.Create(ctx, rule); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("rule_id", rule.ID).
		Str("approval_group", rule.ApprovalGroup).
		Str("username", rule.Username).
		Int("level", rule.Level).
		Msg("Approval rule created")

	view := ruleView(rule)
	return &view, nil
}

// ListRules returns the rules of one approval group, or all when empty.
func (s *ApprovalRulesService) ListRules(ctx context.Context, approvalGroup string, activeOnly bool) ([]RuleView, error) {
	rules, err := s.rules.List(ctx, strings.TrimSpace(approvalGroup), activeOnly)
	if err != nil {
		return nil, err
	}
	views := make([]RuleView, 0, len(rules))
	for _, r := range rules {
		views = append(views, ruleView(r))
	}
	return views, nil
}

// UpdateRule replaces an existing rule.
func (s *ApprovalRulesService) UpdateRule(ctx context.Context, id string, req *RuleRequest) (*RuleView, error) {
	if id == "" {
		return nil, errors.InvalidInput("id", "id is required")
	}
	rule, err := ruleFromRequest(req)
	if err != nil {
		return nil, err
	}
	rule.ID = id
	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, err
	}

	s.log.Info().Str("rule_id", id).Msg("Approval rule updated")

	view := ruleView(rule)
	return &view, nil
}

// DeleteRule removes a rule.
func (s *ApprovalRulesService) DeleteRule(ctx context.Context, id string) error {
	if id == "" {
		return errors.InvalidInput("id", "id is required")
	}
	if err := s.rules.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("rule_id", id).Msg("Approval rule deleted")
	return nil
}

func ruleFromRequest(req *RuleRequest) (*repository.ApprovalRule, error) {
	if req == nil {
		return nil, errors.InvalidInput("request", "request body is required")
	}
	group := strings.TrimSpace(req.ApprovalGroup)
	if group == "" {
		return nil, errors.InvalidInput("approval_group", "approval_group is required")
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, errors.InvalidInput("username", "username is required")
	}
	if req.Level < 0 {
		return nil, errors.InvalidInput("level", "level must not be negative")
	}
	if req.MinAmount.IsNegative() {
		return nil, errors.InvalidInput("min_amount", "min_amount must not be negative")
	}
	if req.MaxAmount != nil && req.MaxAmount.LessThan(req.MinAmount) {
		return nil, errors.InvalidInput("max_amount", "max_amount must not be below min_amount")
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return &repository.ApprovalRule{
		ApprovalGroup: group,
		Username:      username,
		Level:         req.Level,
		MinAmount:     req.MinAmount,
		MaxAmount:     req.MaxAmount,
		IsActive:      active,
	}, nil
}

func ruleView(r *repository.ApprovalRule) RuleView {
	return RuleView{
		ID:            r.ID,
		ApprovalGroup: r.ApprovalGroup,
		Username:      r.Username,
		Level:         r.Level,
		MinAmount:     r.MinAmount,
		MaxAmount:     r.MaxAmount,
		IsActive:      r.IsActive,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}
