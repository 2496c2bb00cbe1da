package client

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-approvals/internal/repository"
)

// ApproverDirectoryInterface returns the eligible approvers of an approval
// group for an amount. Implementations: ProtheusDirectory, FileDirectory and
// repository.ApprovalRulesRepository.
type ApproverDirectoryInterface interface {
	LookupApprovers(ctx context.Context, approvalGroup string, amount decimal.Decimal) ([]repository.DirectoryApprover, error)
}

// EventPublisherInterface publishes approval lifecycle events. Publishing never
// fails the caller.
type EventPublisherInterface interface {
	PublishApprovalEvent(ctx context.Context, event *ApprovalEvent)
}
