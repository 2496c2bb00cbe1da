package service

import (
	"context"
	stderrors "errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-approvals/internal/client"
	"github.com/pesio-ai/be-approvals/internal/errors"
	"github.com/pesio-ai/be-approvals/internal/repository"
)

// ── in-memory approval store ─────────────────────────────────────────────────

type memState struct {
	seq       int
	order     map[string]int
	docs      map[string]repository.ApprovalDocument
	groups    map[string]repository.ApprovalGroup
	approvers map[string]repository.GroupApprover
}

func newMemState() *memState {
	return &memState{
		order:     map[string]int{},
		docs:      map[string]repository.ApprovalDocument{},
		groups:    map[string]repository.ApprovalGroup{},
		approvers: map[string]repository.GroupApprover{},
	}
}

func (st *memState) clone() *memState {
	c := newMemState()
	c.seq = st.seq
	for k, v := range st.order {
		c.order[k] = v
	}
	for k, v := range st.docs {
		c.docs[k] = v
	}
	for k, v := range st.groups {
		c.groups[k] = v
	}
	for k, v := range st.approvers {
		c.approvers[k] = v
	}
	return c
}

func (st *memState) nextID() string {
	st.seq++
	id := uuid.NewString()
	st.order[id] = st.seq
	return id
}

// memStore serializes transactions with one mutex: each runs on a copy of the
// state, which replaces the committed state only on success.
type memStore struct {
	mu    sync.Mutex
	state *memState

	// failOn names a mutation that fails inside transactions.
	failOn string
	// settledLock makes LockGroupApprovers report every slot as decided.
	settledLock bool
}

func newMemStore() *memStore {
	return &memStore{state: newMemState()}
}

var errInjected = stderrors.New("injected store failure")

func (m *memStore) InTransaction(ctx context.Context, fn func(tx repository.ApprovalTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memTx{memReader{work}, m.failOn, m.settledLock}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *memStore) ListPendingByUser(ctx context.Context, userID string) ([]*repository.PendingApproval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*repository.PendingApproval
	for _, a := range m.state.approvers {
		g := m.state.groups[a.GroupID]
		d := m.state.docs[g.ApprovalID]
		if a.UserID != userID || a.Status != repository.ApproverPending ||
			g.Status != repository.StatusPending || d.Status != repository.StatusPending {
			continue
		}
		out = append(out, &repository.PendingApproval{
			DocumentID:        d.ID,
			Origin:            d.Origin,
			OriginRef:         d.OriginRef,
			Description:       d.Description,
			DocumentCreatedAt: d.CreatedAt,
			GroupID:           g.ID,
			ApprovalGroup:     g.ApprovalGroup,
			Amount:            g.Amount,
			ApproverID:        a.ID,
			UserID:            a.UserID,
			Level:             a.Level,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return m.state.order[out[i].DocumentID] > m.state.order[out[j].DocumentID]
	})
	return out, nil
}

func (m *memStore) GetDocument(ctx context.Context, id string) (*repository.ApprovalDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memReader{m.state}.GetDocument(ctx, id)
}

func (m *memStore) GetGroup(ctx context.Context, id string) (*repository.ApprovalGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memReader{m.state}.GetGroup(ctx, id)
}

func (m *memStore) ListGroups(ctx context.Context, documentID string) ([]*repository.ApprovalGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memReader{m.state}.ListGroups(ctx, documentID)
}

func (m *memStore) ListApprovers(ctx context.Context, groupID string) ([]*repository.GroupApprover, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memReader{m.state}.ListApprovers(ctx, groupID)
}

func (m *memStore) FindLatestByOrigin(ctx context.Context, origin, originRef string) (*repository.ApprovalDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return memReader{m.state}.FindLatestByOrigin(ctx, origin, originRef)
}

// counts returns the number of committed documents, groups and approvers.
func (m *memStore) counts() (int, int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.docs), len(m.state.groups), len(m.state.approvers)
}

// approverByUser returns the committed approver of a user in a group.
func (m *memStore) approverByUser(groupID, userID string) repository.GroupApprover {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.state.approvers {
		if a.GroupID == groupID && a.UserID == userID {
			return a
		}
	}
	return repository.GroupApprover{}
}

type memReader struct {
	st *memState
}

func (r memReader) GetDocument(ctx context.Context, id string) (*repository.ApprovalDocument, error) {
	d, ok := r.st.docs[id]
	if !ok {
		return nil, errors.NotFound("approval document", id)
	}
	return &d, nil
}

func (r memReader) GetGroup(ctx context.Context, id string) (*repository.ApprovalGroup, error) {
	g, ok := r.st.groups[id]
	if !ok {
		return nil, errors.NotFound("approval group", id)
	}
	return &g, nil
}

func (r memReader) ListGroups(ctx context.Context, documentID string) ([]*repository.ApprovalGroup, error) {
	var out []*repository.ApprovalGroup
	for _, g := range r.st.groups {
		if g.ApprovalID == documentID {
			g := g
			out = append(out, &g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.st.order[out[i].ID] < r.st.order[out[j].ID] })
	return out, nil
}

func (r memReader) ListApprovers(ctx context.Context, groupID string) ([]*repository.GroupApprover, error) {
	var out []*repository.GroupApprover
	for _, a := range r.st.approvers {
		if a.GroupID == groupID {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return r.st.order[out[i].ID] < r.st.order[out[j].ID]
	})
	return out, nil
}

func (r memReader) FindLatestByOrigin(ctx context.Context, origin, originRef string) (*repository.ApprovalDocument, error) {
	var latest *repository.ApprovalDocument
	for _, d := range r.st.docs {
		if d.Origin != origin || d.OriginRef != originRef {
			continue
		}
		if latest == nil || r.st.order[d.ID] > r.st.order[latest.ID] {
			d := d
			latest = &d
		}
	}
	if latest == nil {
		return nil, errors.NotFound("approval document", origin+"/"+originRef)
	}
	return latest, nil
}

type memTx struct {
	memReader
	failOn      string
	settledLock bool
}

func (t *memTx) fail(op string) error {
	if t.failOn == op {
		return errors.Wrap(errInjected, errors.ErrCodeInternal, "failed to "+op)
	}
	return nil
}

func (t *memTx) LockPendency(ctx context.Context, documentID, groupID, userID string) (*repository.Pendency, error) {
	d, okD := t.st.docs[documentID]
	g, okG := t.st.groups[groupID]
	if !okD || !okG || g.ApprovalID != documentID {
		return nil, errors.NotFound("approval pendency", documentID+"/"+groupID+"/"+userID)
	}

	var best *repository.GroupApprover
	for _, a := range t.st.approvers {
		if a.GroupID != groupID || a.UserID != userID {
			continue
		}
		a := a
		switch {
		case best == nil:
			best = &a
		case a.Status.IsOpen() != best.Status.IsOpen():
			if a.Status.IsOpen() {
				best = &a
			}
		case a.Level > best.Level:
			best = &a
		}
	}
	if best == nil {
		return nil, errors.NotFound("approval pendency", documentID+"/"+groupID+"/"+userID)
	}
	return &repository.Pendency{Document: &d, Group: &g, Approver: best}, nil
}

func (t *memTx) LockGroupApprovers(ctx context.Context, groupID string) ([]*repository.GroupApprover, error) {
	approvers, err := t.ListApprovers(ctx, groupID)
	if err != nil || !t.settledLock {
		return approvers, err
	}
	for _, a := range approvers {
		if a.Status.IsOpen() {
			a.Status = repository.ApproverApproved
		}
	}
	return approvers, nil
}

func (t *memTx) CreateDocument(ctx context.Context, doc *repository.ApprovalDocument) error {
	if err := t.fail("create document"); err != nil {
		return err
	}
	doc.ID = t.st.nextID()
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = doc.CreatedAt
	t.st.docs[doc.ID] = *doc
	return nil
}

func (t *memTx) CreateGroup(ctx context.Context, group *repository.ApprovalGroup) error {
	if err := t.fail("create group"); err != nil {
		return err
	}
	group.ID = t.st.nextID()
	t.st.groups[group.ID] = *group
	return nil
}

func (t *memTx) CreateApprover(ctx context.Context, approver *repository.GroupApprover) error {
	if err := t.fail("create approver"); err != nil {
		return err
	}
	approver.ID = t.st.nextID()
	t.st.approvers[approver.ID] = *approver
	return nil
}

func (t *memTx) SetApproverStatus(ctx context.Context, ids []string, status repository.ApproverStatus, approvedAt *time.Time) error {
	if err := t.fail("set approver status"); err != nil {
		return err
	}
	for _, id := range ids {
		a, ok := t.st.approvers[id]
		if !ok {
			return errors.NotFound("approver", id)
		}
		a.Status = status
		if approvedAt != nil {
			a.ApprovedAt = approvedAt
		}
		t.st.approvers[id] = a
	}
	return nil
}

func (t *memTx) SetGroupStatus(ctx context.Context, id string, status repository.ApprovalStatus) error {
	if err := t.fail("set group status"); err != nil {
		return err
	}
	g, ok := t.st.groups[id]
	if !ok {
		return errors.NotFound("approval group", id)
	}
	g.Status = status
	t.st.groups[id] = g
	return nil
}

func (t *memTx) SetDocumentStatus(ctx context.Context, id string, status repository.ApprovalStatus) error {
	if err := t.fail("set document status"); err != nil {
		return err
	}
	d, ok := t.st.docs[id]
	if !ok {
		return errors.NotFound("approval document", id)
	}
	d.Status = status
	t.st.docs[id] = d
	return nil
}

// ── directory, resolver, audit and events fakes ──────────────────────────────

type fakeDirectory map[string][]repository.DirectoryApprover

func (f fakeDirectory) LookupApprovers(ctx context.Context, group string, amount decimal.Decimal) ([]repository.DirectoryApprover, error) {
	var out []repository.DirectoryApprover
	for _, a := range f[group] {
		if repository.RuleCoversAmount(a.MinAmount, a.MaxAmount, amount) {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeUsers map[string]*repository.User

func newFakeUsers(logins ...string) fakeUsers {
	f := fakeUsers{}
	for _, login := range logins {
		f[login] = &repository.User{ID: uuid.NewString(), Username: login, Name: strings.ToUpper(login)}
	}
	return f
}

func (f fakeUsers) ResolveUsername(ctx context.Context, username string) (*repository.User, error) {
	u, ok := f[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, errors.NotFound("user", username)
	}
	return u, nil
}

func (f fakeUsers) id(login string) string {
	return f[login].ID
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []*repository.ApprovalAuditEntry
}

func (f *fakeAudit) Append(ctx context.Context, entry *repository.ApprovalAuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry.ID = uuid.NewString()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAudit) ListByDocument(ctx context.Context, documentID string) ([]*repository.ApprovalAuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*repository.ApprovalAuditEntry
	for _, e := range f.entries {
		if e.DocumentID == documentID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []*client.ApprovalEvent
}

func (f *fakeEvents) PublishApprovalEvent(ctx context.Context, event *client.ApprovalEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeEvents) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.EventType)
	}
	return out
}

func level(login string, lvl int) repository.DirectoryApprover {
	return repository.DirectoryApprover{Username: login, Level: lvl, MinAmount: decimal.Zero}
}
