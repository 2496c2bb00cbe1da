package service

import "github.com/pesio-ai/be-approvals/internal/repository"

// DeriveGroupStatus computes a group's status from its approvers: any
// rejection rejects the group, no open approver approves it, anything else
// leaves it pending.
func DeriveGroupStatus(approvers []*repository.GroupApprover) repository.ApprovalStatus {
	open := 0
	for _, a := range approvers {
		if a.Status == repository.ApproverRejected {
			return repository.StatusRejected
		}
		if a.Status.IsOpen() {
			open++
		}
	}
	if open == 0 {
		return repository.StatusApproved
	}
	return repository.StatusPending
}

// DeriveDocumentStatus computes a document's status from its groups.
func DeriveDocumentStatus(groups []*repository.ApprovalGroup) repository.ApprovalStatus {
	pending := 0
	for _, g := range groups {
		if g.Status == repository.StatusRejected {
			return repository.StatusRejected
		}
		if g.Status == repository.StatusPending {
			pending++
		}
	}
	if pending == 0 {
		return repository.StatusApproved
	}
	return repository.StatusPending
}

// minOpenLevel returns the lowest level among open approvers, and false when
// nobody is open.
func minOpenLevel(approvers []*repository.GroupApprover) (int, bool) {
	min, found := 0, false
	for _, a := range approvers {
		if !a.Status.IsOpen() {
			continue
		}
		if !found || a.Level < min {
			min, found = a.Level, true
		}
	}
	return min, found
}

// nextWaitingLevel returns the smallest level above level that still has
// approvers waiting for a previous level.
func nextWaitingLevel(approvers []*repository.GroupApprover, level int) (int, bool) {
	next, found := 0, false
	for _, a := range approvers {
		if a.Status != repository.ApproverWaitingPreviousLevel || a.Level <= level {
			continue
		}
		if !found || a.Level < next {
			next, found = a.Level, true
		}
	}
	return next, found
}
