package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-approvals/internal/client"
	"github.com/pesio-ai/be-approvals/internal/errors"
	"github.com/pesio-ai/be-approvals/internal/logger"
	"github.com/pesio-ai/be-approvals/internal/repository"
)

var fixedNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type engineFixture struct {
	store  *memStore
	users  fakeUsers
	audit  *fakeAudit
	events *fakeEvents
	svc    *ApprovalService
}

func newFixture(dir fakeDirectory, logins ...string) *engineFixture {
	f := &engineFixture{
		store:  newMemStore(),
		users:  newFakeUsers(logins...),
		audit:  &fakeAudit{},
		events: &fakeEvents{},
	}
	f.svc = NewApprovalService(f.store, dir, f.users, logger.Nop(),
		WithAuditLog(f.audit),
		WithEventPublisher(f.events),
		WithClock(func() time.Time { return fixedNow }),
	)
	return f
}

func (f *engineFixture) create(t *testing.T, groups ...string) *CreatedApproval {
	t.Helper()
	req := &CreateApprovalRequest{Origin: "cost_reallocation", OriginRef: "CR-0001"}
	for _, g := range groups {
		req.Groups = append(req.Groups, &CreateGroupRequest{ApprovalGroup: g, Amount: decimal.NewFromInt(1500)})
	}
	created, err := f.svc.CreateApproval(context.Background(), req)
	require.NoError(t, err)
	return created
}

func (f *engineFixture) status(groupID, login string) repository.ApproverStatus {
	return f.store.approverByUser(groupID, f.users.id(login)).Status
}

func TestCreateApproval_LevelGating(t *testing.T) {
	f := newFixture(fakeDirectory{
		"CC01": {level("carol", 3), level("alice", 1), level("bob", 2), level("dave", 1)},
	}, "alice", "bob", "carol", "dave")

	created := f.create(t, "CC01")

	assert.Equal(t, repository.StatusPending, created.Document.Status)
	require.Len(t, created.Groups, 1)
	groupID := created.Groups[0].ID

	assert.Equal(t, repository.ApproverPending, f.status(groupID, "alice"))
	assert.Equal(t, repository.ApproverPending, f.status(groupID, "dave"))
	assert.Equal(t, repository.ApproverWaitingPreviousLevel, f.status(groupID, "bob"))
	assert.Equal(t, repository.ApproverWaitingPreviousLevel, f.status(groupID, "carol"))

	assert.Equal(t, []string{client.EventApprovalCreated}, f.events.types())
	assert.ElementsMatch(t, []string{f.users.id("alice"), f.users.id("dave")}, f.events.events[0].Recipients)
}

func TestCreateApproval_LevelHolesStartAtLowestLevel(t *testing.T) {
	f := newFixture(fakeDirectory{
		"CC01": {level("alice", 2), level("bob", 5)},
	}, "alice", "bob")

	created := f.create(t, "CC01")
	groupID := created.Groups[0].ID

	assert.Equal(t, repository.ApproverPending, f.status(groupID, "alice"))
	assert.Equal(t, repository.ApproverWaitingPreviousLevel, f.status(groupID, "bob"))

	snap, err := f.svc.Approve(context.Background(), created.Document.ID, groupID, f.users.id("alice"))
	require.NoError(t, err)
	assert.Equal(t, repository.ApproverPending, f.status(groupID, "bob"))
	assert.Equal(t, repository.StatusPending, snap.Document.Status)
}

func TestCreateApproval_Validation(t *testing.T) {
	f := newFixture(fakeDirectory{})
	ctx := context.Background()

	tests := []struct {
		name string
		req  *CreateApprovalRequest
	}{
		{"nil request", nil},
		{"missing origin", &CreateApprovalRequest{OriginRef: "1", Groups: []*CreateGroupRequest{{ApprovalGroup: "G"}}}},
		{"missing origin_ref", &CreateApprovalRequest{Origin: "x", Groups: []*CreateGroupRequest{{ApprovalGroup: "G"}}}},
		{"no groups", &CreateApprovalRequest{Origin: "x", OriginRef: "1"}},
		{"blank approval group", &CreateApprovalRequest{Origin: "x", OriginRef: "1", Groups: []*CreateGroupRequest{{ApprovalGroup: "  "}}}},
		{"negative amount", &CreateApprovalRequest{Origin: "x", OriginRef: "1", Groups: []*CreateGroupRequest{{ApprovalGroup: "G", Amount: decimal.NewFromInt(-1)}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateApproval(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
		})
	}

	docs, groups, approvers := f.store.counts()
	assert.Zero(t, docs+groups+approvers)
}

func TestCreateApproval_UnresolvedLoginsAreSkipped(t *testing.T) {
	f := newFixture(fakeDirectory{
		"CC01": {level("ghost", 1), level("alice", 1), level("bob", 2)},
	}, "alice", "bob")

	created := f.create(t, "CC01")
	require.Len(t, created.Groups[0].Approvers, 2)
	assert.Equal(t, repository.ApproverPending, f.status(created.Groups[0].ID, "alice"))
}

func TestCreateApproval_NoResolvableApprovers(t *testing.T) {
	f := newFixture(fakeDirectory{
		"CC01": {level("ghost", 1), level("phantom", 2)},
	})

	_, err := f.svc.CreateApproval(context.Background(), &CreateApprovalRequest{
		Origin: "cost_reallocation", OriginRef: "CR-1",
		Groups: []*CreateGroupRequest{{ApprovalGroup: "CC01"}},
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNoApprovers, errors.CodeOf(err))

	docs, groups, approvers := f.store.counts()
	assert.Zero(t, docs+groups+approvers)
}

func TestCreateApproval_AmountOutsideEveryRange(t *testing.T) {
	max := decimal.NewFromInt(1000)
	f := newFixture(fakeDirectory{
		"CC01": {{Username: "alice", Level: 1, MinAmount: decimal.Zero, MaxAmount: &max}},
	}, "alice")

	_, err := f.svc.CreateApproval(context.Background(), &CreateApprovalRequest{
		Origin: "x", OriginRef: "1",
		Groups: []*CreateGroupRequest{{ApprovalGroup: "CC01", Amount: decimal.NewFromInt(5000)}},
	})
	assert.Equal(t, errors.ErrCodeNoApprovers, errors.CodeOf(err))
}

// Scenario: one empty group among three aborts the whole creation.
func TestCreateApproval_AtomicOnMissingApprovers(t *testing.T) {
	f := newFixture(fakeDirectory{
		"CC01": {level("alice", 1)},
		"CC03": {level("bob", 1)},
	}, "alice", "bob")

	_, err := f.svc.CreateApproval(context.Background(), &CreateApprovalRequest{
		Origin: "cost_reallocation", OriginRef: "CR-9",
		Groups: []*CreateGroupRequest{
			{ApprovalGroup: "CC01"},
			{ApprovalGroup: "CC02"},
			{ApprovalGroup: "CC03"},
		},
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNoApprovers, errors.CodeOf(err))

	docs, groups, approvers := f.store.counts()
	assert.Zero(t, docs)
	assert.Zero(t, groups)
	assert.Zero(t, approvers)
	assert.Empty(t, f.events.types())
	assert.Empty(t, f.audit.entries)
}

// Scenario: two levels approve in order.
func TestApprove_HappyPath(t *testing.T) {
	f := newFixture(fakeDirectory{"CC01": {level("alice", 1), level("bob", 2)}}, "alice", "bob")
	created := f.create(t, "CC01")
	docID, groupID := created.Document.ID, created.Groups[0].ID
	ctx := context.Background()

	snap, err := f.svc.Approve(ctx, docID, groupID, f.users.id("alice"))
	require.NoError(t, err)
	assert.Equal(t, repository.StatusPending, snap.Groups[0].Status)
	assert.Equal(t, repository.ApproverApproved, f.status(groupID, "alice"))
	assert.Equal(t, repository.ApproverPending, f.status(groupID, "bob"))
	assert.Equal(t, []PendingUser{{GroupID: groupID, UserID: f.users.id("bob"), Name: "BOB"}}, snap.Pending.Users)

	snap, err = f.svc.Approve(ctx, docID, groupID, f.users.id("bob"))
	require.NoError(t, err)
	assert.Equal(t, repository.StatusApproved, snap.Groups[0].Status)
	assert.Equal(t, repository.StatusApproved, snap.Document.Status)
	assert.Empty(t, snap.Pending.Groups)
	assert.Empty(t, snap.Pending.Users)

	alice := f.store.approverByUser(groupID, f.users.id("alice"))
	require.NotNil(t, alice.ApprovedAt)
	assert.Equal(t, 2026, alice.ApprovedAt.Year())

	assert.Equal(t, []string{
		client.EventApprovalCreated,
		client.EventApprovalApproved,
		client.EventLevelUnlocked,
		client.EventApprovalApproved,
	}, f.events.types())
}

// Scenario: a peer at the same level is settled by the first approval.
func TestApprove_PeerSkip(t *testing.T) {
	f := newFixture(fakeDirectory{
		"CC01": {level("alice", 1), level("carol", 1), level("bob", 2)},
	}, "alice", "bob", "carol")
	created := f.create(t, "CC01")
	docID, groupID := created.Document.ID, created.Groups[0].ID
	ctx := context.Background()

	_, err := f.svc.Approve(ctx, docID, groupID, f.users.id("alice"))
	require.NoError(t, err)
	assert.Equal(t, repository.ApproverApprovedByHigherLevel, f.status(groupID, "carol"))
	assert.Equal(t, repository.ApproverPending, f.status(groupID, "bob"))

	snap, err := f.svc.Approve(ctx, docID, groupID, f.users.id("bob"))
	require.NoError(t, err)
	assert.Equal(t, repository.StatusApproved, snap.Groups[0].Status)
}

func TestApprove_HigherLevelOverridesLowerLevels(t *testing.T) {
	f := newFixture(fakeDirectory{
		"CC01": {level("alice", 1), level("dave", 1), level("bob", 2), level("carol", 3), level("erin", 3), level("frank", 4)},
	}, "alice", "bob", "carol", "dave", "erin", "frank")
	created := f.create(t, "CC01")
	docID, groupID := created.Document.ID, created.Groups[0].ID

	snap, err := f.svc.Approve(context.Background(), docID, groupID, f.users.id("carol"))
	require.NoError(t, err)

	for _, login := range []string{"alice", "dave", "bob", "erin"} {
		assert.Equal(t, repository.ApproverApprovedByHigherLevel, f.status(groupID, login), login)
	}
	assert.Equal(t, repository.ApproverApproved, f.status(groupID, "carol"))
	assert.Equal(t, repository.ApproverPending, f.status(groupID, "frank"))
	assert.Equal(t, repository.StatusPending, snap.Document.Status)
}

func TestApprove_TopLevelApprovesGroup(t *testing.T) {
	f := newFixture(fakeDirectory{
		"CC01": {level("alice", 1), level("bob", 2)},
	}, "alice", "bob")
	created := f.create(t, "CC01")

	snap, err := f.svc.Approve(context.Background(), created.Document.ID, created.Groups[0].ID, f.users.id("bob"))
	require.NoError(t, err)
	assert.Equal(t, repository.StatusApproved, snap.Document.Status)
	assert.Equal(t, repository.ApproverApprovedByHigherLevel, f.status(created.Groups[0].ID, "alice"))
}

// Scenario: the document waits for every group.
func TestApprove_MultiGroup(t *testing.T) {
	f := newFixture(fakeDirectory{
		"CC01": {level("alice", 1)},
		"CC02": {level("bob", 1)},
	}, "alice", "bob")
	created := f.create(t, "CC01", "CC02")
	docID := created.Document.ID
	ctx := context.Background()

	snap, err := f.svc.Approve(ctx, docID, created.Groups[0].ID, f.users.id("alice"))
	require.NoError(t, err)
	assert.Equal(t, repository.StatusApproved, snap.Groups[0].Status)
	assert.Equal(t, repository.StatusPending, snap.Groups[1].Status)
	assert.Equal(t, repository.StatusPending, snap.Document.Status)
	assert.Equal(t, []string{created.Groups[1].ID}, snap.Pending.Groups)

	snap, err = f.svc.Approve(ctx, docID, created.Groups[1].ID, f.users.id("bob"))
	require.NoError(t, err)
	assert.Equal(t, repository.StatusApproved, snap.Document.Status)
}

func TestApprove_SecondCallIsRejectedWithoutChanges(t *testing.T) {
	f := newFixture(fakeDirectory{"CC01": {level("alice", 1), level("bob", 2)}}, "alice", "bob")
	created := f.create(t, "CC01")
	docID, groupID := created.Document.ID, created.Groups[0].ID
	ctx := context.Background()

	_, err := f.svc.Approve(ctx, docID, groupID, f.users.id("alice"))
	require.NoError(t, err)
	before, err := f.svc.GetDocumentSnapshot(ctx, docID)
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, docID, groupID, f.users.id("alice"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidState, errors.CodeOf(err))

	after, err := f.svc.GetDocumentSnapshot(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestApprove_FinalDocumentRefusesFurtherActions(t *testing.T) {
	f := newFixture(fakeDirectory{"CC01": {level("alice", 1), level("bob", 1)}}, "alice", "bob")
	created := f.create(t, "CC01")
	docID, groupID := created.Document.ID, created.Groups[0].ID
	ctx := context.Background()

	_, err := f.svc.Approve(ctx, docID, groupID, f.users.id("alice"))
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, docID, groupID, f.users.id("bob"))
	assert.Equal(t, errors.ErrCodeInvalidState, errors.CodeOf(err))
	_, err = f.svc.Reject(ctx, docID, groupID, f.users.id("bob"))
	assert.Equal(t, errors.ErrCodeInvalidState, errors.CodeOf(err))
}

// Scenario: a rejection settles the document at once.
// A locked group without open slots returns the current snapshot and records
// nothing. Row locks keep real stores from reaching this path.
func TestApprove_SettledGroupReturnsSnapshotUnchanged(t *testing.T) {
	f := newFixture(fakeDirectory{"CC01": {level("alice", 1), level("bob", 2)}}, "alice", "bob")
	created := f.create(t, "CC01")
	docID, groupID := created.Document.ID, created.Groups[0].ID
	auditBefore := len(f.audit.entries)
	eventsBefore := len(f.events.types())

	f.store.settledLock = true
	snap, err := f.svc.Approve(context.Background(), docID, groupID, f.users.id("alice"))
	require.NoError(t, err)

	assert.Equal(t, repository.StatusPending, snap.Document.Status)
	assert.Equal(t, repository.StatusPending, snap.Groups[0].Status)
	assert.Equal(t, repository.ApproverPending, f.status(groupID, "alice"))
	assert.Equal(t, repository.ApproverWaitingPreviousLevel, f.status(groupID, "bob"))
	assert.Nil(t, f.store.approverByUser(groupID, f.users.id("alice")).ApprovedAt)
	assert.Len(t, f.audit.entries, auditBefore)
	assert.Len(t, f.events.types(), eventsBefore)
}

func TestReject_IsTerminal(t *testing.T) {
	f := newFixture(fakeDirectory{
		"CC01": {level("alice", 1), level("bob", 2)},
		"CC02": {level("carol", 1)},
	}, "alice", "bob", "carol")
	created := f.create(t, "CC01", "CC02")
	docID, groupID := created.Document.ID, created.Groups[0].ID
	ctx := context.Background()

	snap, err := f.svc.Reject(ctx, docID, groupID, f.users.id("alice"))
	require.NoError(t, err)
	assert.Equal(t, repository.StatusRejected, snap.Groups[0].Status)
	assert.Equal(t, repository.StatusRejected, snap.Document.Status)
	assert.Equal(t, repository.ApproverRejected, f.status(groupID, "alice"))
	assert.Equal(t, repository.ApproverWaitingPreviousLevel, f.status(groupID, "bob"))

	rejectedAt := f.store.approverByUser(groupID, f.users.id("alice")).ApprovedAt
	require.NotNil(t, rejectedAt)
	assert.True(t, rejectedAt.Equal(fixedNow))
	assert.Nil(t, f.store.approverByUser(groupID, f.users.id("bob")).ApprovedAt)

	_, err = f.svc.Approve(ctx, docID, groupID, f.users.id("bob"))
	assert.Equal(t, errors.ErrCodeInvalidState, errors.CodeOf(err))
	_, err = f.svc.Approve(ctx, docID, created.Groups[1].ID, f.users.id("carol"))
	assert.Equal(t, errors.ErrCodeInvalidState, errors.CodeOf(err))

	after, err := f.svc.GetDocumentSnapshot(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusRejected, after.Document.Status)
}

func TestReject_WaitingApproverCannotReject(t *testing.T) {
	f := newFixture(fakeDirectory{"CC01": {level("alice", 1), level("bob", 2)}}, "alice", "bob")
	created := f.create(t, "CC01")

	_, err := f.svc.Reject(context.Background(), created.Document.ID, created.Groups[0].ID, f.users.id("bob"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidState, errors.CodeOf(err))
	assert.Equal(t, repository.ApproverWaitingPreviousLevel, f.status(created.Groups[0].ID, "bob"))
}

func TestDecisions_UnknownTriple(t *testing.T) {
	f := newFixture(fakeDirectory{"CC01": {level("alice", 1)}, "CC02": {level("bob", 1)}}, "alice", "bob")
	created := f.create(t, "CC01")
	other := f.create(t, "CC02")
	ctx := context.Background()

	tests := []struct {
		name                      string
		documentID, groupID, user string
	}{
		{"unknown document", "00000000-0000-0000-0000-000000000000", created.Groups[0].ID, f.users.id("alice")},
		{"group of another document", created.Document.ID, other.Groups[0].ID, f.users.id("bob")},
		{"user not in group", created.Document.ID, created.Groups[0].ID, f.users.id("bob")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Approve(ctx, tt.documentID, tt.groupID, tt.user)
			assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))
			_, err = f.svc.Reject(ctx, tt.documentID, tt.groupID, tt.user)
			assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))
		})
	}
}

func TestDecisions_MalformedIDs(t *testing.T) {
	f := newFixture(fakeDirectory{"CC01": {level("alice", 1)}}, "alice")
	created := f.create(t, "CC01")
	docID, groupID, alice := created.Document.ID, created.Groups[0].ID, f.users.id("alice")
	ctx := context.Background()

	tests := []struct {
		name                      string
		documentID, groupID, user string
	}{
		{"document id", "abc", groupID, alice},
		{"group id", docID, "CC01", alice},
		{"user id", docID, groupID, "alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Approve(ctx, tt.documentID, tt.groupID, tt.user)
			assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
			_, err = f.svc.Reject(ctx, tt.documentID, tt.groupID, tt.user)
			assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
		})
	}

	_, err := f.svc.GetDocumentSnapshot(ctx, "abc")
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
	_, err = f.svc.GetSnapshotByGroup(ctx, "CC01")
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
	_, err = f.svc.GetPendingByUser(ctx, "alice")
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
	_, err = f.svc.GetHistory(ctx, "abc")
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))

	assert.Equal(t, repository.ApproverPending, f.status(groupID, "alice"))
}

func TestApprove_StoreFailureRollsBack(t *testing.T) {
	f := newFixture(fakeDirectory{"CC01": {level("alice", 1), level("bob", 2)}}, "alice", "bob")
	created := f.create(t, "CC01")
	groupID := created.Groups[0].ID

	f.store.failOn = "set approver status"
	_, err := f.svc.Approve(context.Background(), created.Document.ID, groupID, f.users.id("alice"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInternal, errors.CodeOf(err))
	assert.ErrorIs(t, err, errInjected)

	assert.Equal(t, repository.ApproverPending, f.status(groupID, "alice"))
	assert.Equal(t, repository.ApproverWaitingPreviousLevel, f.status(groupID, "bob"))
}

func TestApprove_ConcurrentPeersSettleOnce(t *testing.T) {
	f := newFixture(fakeDirectory{"CC01": {level("alice", 1), level("bob", 1)}}, "alice", "bob")
	created := f.create(t, "CC01")
	docID, groupID := created.Document.ID, created.Groups[0].ID

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, login := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(i int, userID string) {
			defer wg.Done()
			_, errs[i] = f.svc.Approve(context.Background(), docID, groupID, userID)
		}(i, f.users.id(login))
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, errors.ErrCodeInvalidState, errors.CodeOf(err))
	}
	assert.Equal(t, 1, succeeded)

	snap, err := f.svc.GetDocumentSnapshot(context.Background(), docID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusApproved, snap.Document.Status)
}

func TestQueries(t *testing.T) {
	f := newFixture(fakeDirectory{"CC01": {level("alice", 1), level("bob", 2)}}, "alice", "bob")
	first := f.create(t, "CC01")
	second := f.create(t, "CC01")
	ctx := context.Background()

	t.Run("pending by user lists newest first", func(t *testing.T) {
		items, err := f.svc.GetPendingByUser(ctx, f.users.id("alice"))
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, second.Document.ID, items[0].DocumentID)
		assert.Equal(t, first.Document.ID, items[1].DocumentID)

		items, err = f.svc.GetPendingByUser(ctx, f.users.id("bob"))
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("snapshot by group", func(t *testing.T) {
		snap, err := f.svc.GetSnapshotByGroup(ctx, first.Groups[0].ID)
		require.NoError(t, err)
		assert.Equal(t, first.Document.ID, snap.Document.ID)
	})

	t.Run("by origin returns the latest document", func(t *testing.T) {
		snap, err := f.svc.GetByOrigin(ctx, "cost_reallocation", "CR-0001")
		require.NoError(t, err)
		assert.Equal(t, second.Document.ID, snap.Document.ID)

		_, err = f.svc.GetByOrigin(ctx, "cost_reallocation", "missing")
		assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))
	})

	t.Run("snapshot of unknown document", func(t *testing.T) {
		_, err := f.svc.GetDocumentSnapshot(ctx, "00000000-0000-0000-0000-000000000000")
		assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))
	})

	t.Run("history", func(t *testing.T) {
		_, err := f.svc.Approve(ctx, first.Document.ID, first.Groups[0].ID, f.users.id("alice"))
		require.NoError(t, err)

		history, err := f.svc.GetHistory(ctx, first.Document.ID)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, "created", history[0].Action)
		assert.Equal(t, "approved", history[1].Action)
	})
}

func TestHistoryWithoutAuditLog(t *testing.T) {
	store := newMemStore()
	users := newFakeUsers("alice")
	svc := NewApprovalService(store, fakeDirectory{"CC01": {level("alice", 1)}}, users, logger.Nop())

	created, err := svc.CreateApproval(context.Background(), &CreateApprovalRequest{
		Origin: "x", OriginRef: "1", Groups: []*CreateGroupRequest{{ApprovalGroup: "CC01"}},
	})
	require.NoError(t, err)

	history, err := svc.GetHistory(context.Background(), created.Document.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}
