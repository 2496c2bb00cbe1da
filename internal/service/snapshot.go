package service

import (
	"context"

	"github.com/pesio-ai/be-approvals/internal/repository"
)

// snapshot builds the status tree of a document from any reader, so the same
// code serves queries and the tail of a decision transaction.
func (s *ApprovalService) snapshot(ctx context.Context, r repository.ApprovalReader, documentID string) (*Snapshot, error) {
	doc, err := r.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	groupRows, err := r.ListGroups(ctx, documentID)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Document: SnapshotDocument{
			ID:        doc.ID,
			Origin:    doc.Origin,
			OriginRef: doc.OriginRef,
			Status:    doc.Status,
		},
		Groups: make([]SnapshotGroup, 0, len(groupRows)),
		Pending: SnapshotPending{
			Groups: []string{},
			Users:  []PendingUser{},
		},
	}

	for _, g := range groupRows {
		approvers, err := r.ListApprovers(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		snap.Groups = append(snap.Groups, SnapshotGroup{
			GroupID:       g.ID,
			ApprovalGroup: g.ApprovalGroup,
			Status:        g.Status,
			Approvers:     approverViews(approvers),
		})

		if g.Status != repository.StatusPending {
			continue
		}
		snap.Pending.Groups = append(snap.Pending.Groups, g.ID)
		for _, a := range approvers {
			if a.Status == repository.ApproverPending {
				snap.Pending.Users = append(snap.Pending.Users, PendingUser{
					GroupID: g.ID,
					UserID:  a.UserID,
					Name:    a.UserName,
				})
			}
		}
	}
	return snap, nil
}

func (snap *Snapshot) groupStatus(groupID string) repository.ApprovalStatus {
	for _, g := range snap.Groups {
		if g.GroupID == groupID {
			return g.Status
		}
	}
	return ""
}
