package handler

import (
	"context"

	"github.com/pesio-ai/be-approvals/internal/errors"
	"github.com/pesio-ai/be-approvals/internal/repository"
	"github.com/pesio-ai/be-approvals/internal/service"
)

// fakeApprovals records the last call and returns canned results.
type fakeApprovals struct {
	err error

	created   *service.CreateApprovalRequest
	decision  [3]string
	snapshot  *service.Snapshot
	pending   []service.PendingItem
	history   []service.AuditEntryView
	lastQuery []string
}

func newFakeApprovals() *fakeApprovals {
	return &fakeApprovals{
		snapshot: &service.Snapshot{
			Document: service.SnapshotDocument{ID: testDocID, Origin: "cost_reallocation", OriginRef: "CR-1", Status: repository.StatusPending},
			Groups: []service.SnapshotGroup{{
				GroupID:       testGroupID,
				ApprovalGroup: "CC01",
				Status:        repository.StatusPending,
				Approvers: []service.ApproverView{
					{UserID: testUserID, Name: "Alice", Level: 1, Status: repository.ApproverPending},
				},
			}},
			Pending: service.SnapshotPending{
				Groups: []string{testGroupID},
				Users:  []service.PendingUser{{GroupID: testGroupID, UserID: testUserID, Name: "Alice"}},
			},
		},
	}
}

const (
	testDocID   = "0b8f0f8e-8f43-4b8e-9a53-0d5c2a1f3e11"
	testGroupID = "5d2f7a1c-3b9e-4c6d-8e0f-1a2b3c4d5e6f"
	testUserID  = "9c8b7a6d-5e4f-4a3b-2c1d-0e9f8a7b6c5d"
)

func (f *fakeApprovals) CreateApproval(ctx context.Context, req *service.CreateApprovalRequest) (*service.CreatedApproval, error) {
	f.created = req
	if f.err != nil {
		return nil, f.err
	}
	return &service.CreatedApproval{
		Document: service.DocumentView{ID: testDocID, Origin: req.Origin, OriginRef: req.OriginRef, Status: repository.StatusPending},
	}, nil
}

func (f *fakeApprovals) Approve(ctx context.Context, documentID, groupID, userID string) (*service.Snapshot, error) {
	f.decision = [3]string{documentID, groupID, userID}
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshot, nil
}

func (f *fakeApprovals) Reject(ctx context.Context, documentID, groupID, userID string) (*service.Snapshot, error) {
	f.decision = [3]string{documentID, groupID, userID}
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshot, nil
}

func (f *fakeApprovals) GetPendingByUser(ctx context.Context, userID string) ([]service.PendingItem, error) {
	f.lastQuery = []string{userID}
	if f.err != nil {
		return nil, f.err
	}
	return f.pending, nil
}

func (f *fakeApprovals) GetDocumentSnapshot(ctx context.Context, documentID string) (*service.Snapshot, error) {
	f.lastQuery = []string{documentID}
	if documentID != testDocID {
		return nil, errors.NotFound("approval document", documentID)
	}
	return f.snapshot, f.err
}

func (f *fakeApprovals) GetSnapshotByGroup(ctx context.Context, groupID string) (*service.Snapshot, error) {
	f.lastQuery = []string{groupID}
	return f.snapshot, f.err
}

func (f *fakeApprovals) GetByOrigin(ctx context.Context, origin, originRef string) (*service.Snapshot, error) {
	f.lastQuery = []string{origin, originRef}
	if origin == "" {
		return nil, errors.InvalidInput("origin", "origin is required")
	}
	return f.snapshot, f.err
}

func (f *fakeApprovals) GetHistory(ctx context.Context, documentID string) ([]service.AuditEntryView, error) {
	f.lastQuery = []string{documentID}
	return f.history, f.err
}
