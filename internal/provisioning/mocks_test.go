package provisioning

import (
	"context"
	"errors"
	"sync"

	"github.com/prohmpiriya/safeguard-membership/internal/domain"
	"github.com/prohmpiriya/safeguard-membership/internal/session"
	"github.com/prohmpiriya/safeguard-membership/pkg/kafka"
)

var ErrMockFailure = errors.New("mock failure")

// MockMemberMirror records upserted members
type MockMemberMirror struct {
	mu           sync.Mutex
	members      map[string]*domain.User
	ShouldFail   bool
	FailureError error
	// OnUpsert runs before every upsert, outside the lock
	OnUpsert func()
}

func NewMockMemberMirror() *MockMemberMirror {
	return &MockMemberMirror{members: make(map[string]*domain.User)}
}

func (m *MockMemberMirror) UpsertMember(ctx context.Context, user *domain.User) error {
	if m.OnUpsert != nil {
		m.OnUpsert()
	}
	if m.ShouldFail {
		if m.FailureError != nil {
			return m.FailureError
		}
		return ErrMockFailure
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u := *user
	m.members[user.ID] = &u
	return nil
}

func (m *MockMemberMirror) Member(id string) *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.members[id]
}

// MockProducer records published messages
type MockProducer struct {
	mu         sync.Mutex
	messages   []*kafka.Message
	ShouldFail bool
}

func (p *MockProducer) Publish(ctx context.Context, msg *kafka.Message) error {
	if p.ShouldFail {
		return ErrMockFailure
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *MockProducer) Close() {}

func (p *MockProducer) Messages() []*kafka.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*kafka.Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// panickingSessionStore blows up on read to exercise the catch-all
type panickingSessionStore struct {
	session.Store
}

func (panickingSessionStore) Get(ctx context.Context, sessionID string) (*session.State, error) {
	panic("session backend exploded")
}
