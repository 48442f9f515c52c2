package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Strob0t/TaskForge/internal/domain"
	"github.com/Strob0t/TaskForge/internal/domain/connection"
	"github.com/Strob0t/TaskForge/internal/domain/link"
	"github.com/Strob0t/TaskForge/internal/domain/task"
	"github.com/Strob0t/TaskForge/internal/domain/webhook"
	"github.com/Strob0t/TaskForge/internal/port/database"
)

var _ database.Store = (*mockStore)(nil)

// mockStore is an in-memory database.Store for service tests.
type mockStore struct {
	mu sync.Mutex

	tasks   map[string]*task.Task // key: projectID/taskID
	changes []task.StatusChange
	conns   []*connection.Connection
	commits map[string]webhook.CommitEvent // key: projectID/sha
	prs     map[string]webhook.PullRequestEvent
	links   []link.TaskLink

	// Error hooks — set these to inject failures.
	saveStatusErr   error
	conflictsLeft   int // SaveTaskStatus returns ErrConflict this many times
	createCommitErr error
	findConnErr     error

	// blockCommitLookup makes CommitExistsBySHA wait for its context.
	blockCommitLookup atomic.Bool
}

func newMockStore() *mockStore {
	return &mockStore{
		tasks:   make(map[string]*task.Task),
		commits: make(map[string]webhook.CommitEvent),
		prs:     make(map[string]webhook.PullRequestEvent),
	}
}

func (m *mockStore) addTask(projectID string, t task.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ProjectID = projectID
	m.tasks[projectID+"/"+t.ID] = &t
}

func (m *mockStore) task(projectID, id string) task.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.tasks[projectID+"/"+id]
}

func (m *mockStore) linkCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.links)
}

func (m *mockStore) mutations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.changes) + len(m.commits) + len(m.prs) + len(m.links)
}

func (m *mockStore) FindTaskByID(_ context.Context, projectID, taskID string) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[projectID+"/"+taskID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockStore) SaveTaskStatus(_ context.Context, t *task.Task, change task.StatusChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveStatusErr != nil {
		return m.saveStatusErr
	}
	stored, ok := m.tasks[t.ProjectID+"/"+t.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if m.conflictsLeft > 0 {
		m.conflictsLeft--
		stored.Version++
		return domain.ErrConflict
	}
	if stored.Version != t.Version {
		return domain.ErrConflict
	}
	t.Version++
	cp := *t
	m.tasks[t.ProjectID+"/"+t.ID] = &cp
	m.changes = append(m.changes, change)
	return nil
}

func (m *mockStore) GetConnection(_ context.Context, id string) (*connection.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conns {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) FindConnectionByRepository(_ context.Context, fullName string) (*connection.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findConnErr != nil {
		return nil, m.findConnErr
	}
	for _, c := range m.conns {
		if c.RepositoryFullName == fullName {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) FindConnectionBySecret(_ context.Context, secret string) (*connection.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conns {
		if c.WebhookSecret == secret {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) RecordWebhookSuccess(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conns {
		if c.ID == id {
			c.RecordSuccess(at)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) RecordWebhookError(_ context.Context, id, msg string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conns {
		if c.ID == id {
			c.RecordError(at, msg)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) CommitExistsBySHA(ctx context.Context, projectID, sha string) (bool, error) {
	if m.blockCommitLookup.Load() {
		<-ctx.Done()
		return false, ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.commits[projectID+"/"+sha]
	return ok, nil
}

func (m *mockStore) CreateCommit(_ context.Context, projectID string, c *webhook.CommitEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createCommitErr != nil {
		return m.createCommitErr
	}
	m.commits[projectID+"/"+c.SHA] = *c
	return nil
}

func (m *mockStore) FindPullRequestByNumber(_ context.Context, projectID string, number int) (*webhook.PullRequestEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pr, ok := m.prs[prKey(projectID, number)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &pr, nil
}

func (m *mockStore) UpsertPullRequest(_ context.Context, projectID string, pr *webhook.PullRequestEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prs[prKey(projectID, pr.Number)] = *pr
	return nil
}

func (m *mockStore) UpdatePullRequestReviewComments(_ context.Context, projectID string, number, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pr, ok := m.prs[prKey(projectID, number)]
	if !ok {
		return domain.ErrNotFound
	}
	pr.ReviewComments = count
	m.prs[prKey(projectID, number)] = pr
	return nil
}

func (m *mockStore) RecordTaskLink(_ context.Context, _ string, l link.TaskLink) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.links {
		if existing.SourceID == l.SourceID && existing.TaskID == l.TaskID {
			return false, nil
		}
	}
	m.links = append(m.links, l)
	return true, nil
}

func prKey(projectID string, number int) string {
	return fmt.Sprintf("%s/%d", projectID, number)
}

// mockBroadcaster records broadcast events.
type mockBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (b *mockBroadcaster) BroadcastEvent(_ context.Context, eventType string, _ any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, eventType)
}

func (b *mockBroadcaster) count(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e == eventType {
			n++
		}
	}
	return n
}
