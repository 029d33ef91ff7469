package notify

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pranavch/cashdesk/internal/domain"
)

// mockSubscriber captures delivered payloads.
type mockSubscriber struct {
	id       string
	holderID string
	messages [][]byte
	limit    int
	mu       sync.Mutex
	closed   bool
}

func newMockSubscriber(id, holderID string) *mockSubscriber {
	return &mockSubscriber{id: id, holderID: holderID, limit: -1}
}

func (m *mockSubscriber) ID() string       { return m.id }
func (m *mockSubscriber) HolderID() string { return m.holderID }

func (m *mockSubscriber) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrSubscriberClosed
	}
	if m.limit >= 0 && len(m.messages) >= m.limit {
		return ErrSubscriberClosed
	}
	m.messages = append(m.messages, data)
	return nil
}

func (m *mockSubscriber) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockSubscriber) received() []domain.NotificationEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.NotificationEvent, 0, len(m.messages))
	for _, raw := range m.messages {
		var e domain.NotificationEvent
		if err := json.Unmarshal(raw, &e); err == nil {
			out = append(out, e)
		}
	}
	return out
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub()

	sub1 := newMockSubscriber("sub-1", "holder-01")
	sub2 := newMockSubscriber("sub-2", "holder-01")
	sub3 := newMockSubscriber("sub-3", "holder-02")

	hub.Register(sub1)
	hub.Register(sub2)
	hub.Register(sub3)

	assert.Equal(t, 2, hub.SubscriberCount("holder-01"))
	assert.Equal(t, 1, hub.SubscriberCount("holder-02"))
	assert.Equal(t, 0, hub.SubscriberCount("holder-99"))

	hub.Unregister(sub1)
	assert.Equal(t, 1, hub.SubscriberCount("holder-01"))

	// Unregistering twice is harmless.
	hub.Unregister(sub1)
	assert.Equal(t, 1, hub.SubscriberCount("holder-01"))
}

func TestHubRoutesByRecipient(t *testing.T) {
	hub := NewHub()
	sub1 := newMockSubscriber("sub-1", "holder-01")
	sub2 := newMockSubscriber("sub-2", "holder-02")
	hub.Register(sub1)
	hub.Register(sub2)

	event := ReturnRequested("holder-01", uuid.New())
	hub.Publish(event)

	got := sub1.received()
	require.Len(t, got, 1)
	assert.Equal(t, event.ID, got[0].ID)
	assert.Equal(t, domain.EventReturnRequested, got[0].Kind)
	assert.Empty(t, sub2.received())
}

func TestHubPreservesPerHolderOrder(t *testing.T) {
	hub := NewHub()
	sub := newMockSubscriber("sub-1", "holder-01")
	hub.Register(sub)

	var published []string
	for i := 0; i < 50; i++ {
		e := BalanceChanged("holder-01", uuid.New())
		published = append(published, e.ID)
		hub.Publish(e)
	}

	got := sub.received()
	require.Len(t, got, len(published))
	for i, e := range got {
		assert.Equal(t, published[i], e.ID)
	}
}

func TestHubPublishWithoutSubscribers(t *testing.T) {
	hub := NewHub()
	// Fire-and-forget: publishing into the void must not panic or block.
	hub.Publish(BalanceChanged("holder-01", uuid.New()))
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	hub := NewHub()
	slow := newMockSubscriber("slow", "holder-01")
	slow.limit = 2
	healthy := newMockSubscriber("healthy", "holder-01")
	hub.Register(slow)
	hub.Register(healthy)

	for i := 0; i < 5; i++ {
		hub.Publish(BalanceChanged("holder-01", uuid.New()))
	}

	// A full subscriber never blocks delivery to the others.
	assert.Len(t, slow.received(), 2)
	assert.Len(t, healthy.received(), 5)
}

func TestEventConstructors(t *testing.T) {
	requestID := uuid.New()
	e := ReturnApproved("holder-01", requestID)

	assert.Equal(t, "holder-01", e.RecipientID)
	assert.Equal(t, domain.EventReturnApproved, e.Kind)
	assert.Equal(t, requestID.String(), e.SubjectID)
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.CreatedAt.IsZero())

	// Event ids are unique so consumers can deduplicate.
	other := ReturnApproved("holder-01", requestID)
	assert.NotEqual(t, e.ID, other.ID)
}

func TestNoOpPublisher(t *testing.T) {
	var pub NoOpPublisher
	pub.Publish(BalanceChanged("holder-01", uuid.New()))
}
