package main

import (
	"context"
	"sync"
	"time"
)

// This file contains mocks definitions needed to perform unit tests.

type MockStorage[E any] struct {
	AddFunc    func(ctx context.Context, id string, doc *E) error
	GetOneFunc func(ctx context.Context, id string) (*E, error)
	GetAllFunc func(ctx context.Context) ([]E, error)
	UpdateFunc func(ctx context.Context, id string, patch *E) (*E, error)
	DeleteFunc func(ctx context.Context, id string) (*E, error)
}

// Add mocks the behavior of document creation by the repository.
func (m *MockStorage[E]) Add(ctx context.Context, id string, doc *E) error {
	return m.AddFunc(ctx, id, doc)
}

// GetOne mocks the behavior of retrieving a document by the repository.
func (m *MockStorage[E]) GetOne(ctx context.Context, id string) (*E, error) {
	return m.GetOneFunc(ctx, id)
}

// GetAll mocks the behavior of retrieving all documents by the repository.
func (m *MockStorage[E]) GetAll(ctx context.Context) ([]E, error) {
	return m.GetAllFunc(ctx)
}

// Update mocks the behavior of updating a document by the repository.
func (m *MockStorage[E]) Update(ctx context.Context, id string, patch *E) (*E, error) {
	return m.UpdateFunc(ctx, id, patch)
}

// Delete mocks the behavior of deleting a document by the repository.
func (m *MockStorage[E]) Delete(ctx context.Context, id string) (*E, error) {
	return m.DeleteFunc(ctx, id)
}

// MockQueuer records pushed events and serves popped ones from PopFunc.
type MockQueuer struct {
	mu       sync.Mutex
	Pushed   map[string][]Event
	PushErr  error
	PopFunc  func(ctx context.Context, qids ...string) (string, Event, error)
	PopCalls int
}

func NewMockQueuer() *MockQueuer {
	return &MockQueuer{Pushed: make(map[string][]Event)}
}

// Push records the event under its queue id.
func (mq *MockQueuer) Push(_ context.Context, qid string, event Event) error {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	if mq.PushErr != nil {
		return mq.PushErr
	}
	mq.Pushed[qid] = append(mq.Pushed[qid], event)
	return nil
}

// Pop delegates to PopFunc.
func (mq *MockQueuer) Pop(ctx context.Context, qids ...string) (string, Event, error) {
	mq.mu.Lock()
	mq.PopCalls++
	mq.mu.Unlock()
	return mq.PopFunc(ctx, qids...)
}

// MockPinger reports the configured error.
type MockPinger struct {
	Err error
}

func (mp *MockPinger) Ping(_ context.Context) error {
	return mp.Err
}

// MockClocker implements a fake Clocker.
type MockClocker struct {
	MockNow time.Time
}

// NewMockClocker returns a mocked instance with fixed time.
func NewMockClocker() *MockClocker {
	return &MockClocker{time.Date(2023, 0o7, 0o2, 0o0, 0o0, 0o0, 0o00000000, time.UTC)}
}

// Now returns an already defined time to be used as mock. This
// equals to `Sun, 02 Jul 2023 00:00:00 UTC` in time.RFC1123 format.
// equals to `2023-07-02 00:00:00 +0000 UTC` in String format.
func (mck *MockClocker) Now() time.Time {
	return mck.MockNow
}

// MockUIDHandler implements a fake UIDHandler.
type MockUIDHandler struct {
	MockedUID string
	Valid     bool
}

// NewMockUIDHandler returns a mocked instance with predictable id.
func NewMockUIDHandler(id string, valid bool) *MockUIDHandler {
	return &MockUIDHandler{MockedUID: id, Valid: valid}
}

// Generate constructs a predictable id to be used as mock.
func (muid *MockUIDHandler) Generate(prefix string) string {
	return prefix + ":" + muid.MockedUID
}

// IsValid mocks IsValid behavior by providing configured status.
func (muid *MockUIDHandler) IsValid(_, _ string) bool {
	return muid.Valid
}
