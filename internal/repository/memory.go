package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pr-poehali-dev/client-support-chat-2/internal/domain"
)

// MemoryStore is an in-process implementation of the repositories, used when
// no POSTGRES_DSN is configured and by the scheduler tests. Conditional
// transitions hold the store mutex for the whole read-modify-write so the
// claim semantics match the SQL implementation.
type MemoryStore struct {
	core *memoryCore
}

type memoryCore struct {
	mu        sync.Mutex
	seq       int64
	chats     map[string]*domain.Chat
	chatSeq   map[string]int64
	operators map[string]*domain.Operator
	clients   map[string]*domain.Client
	ipIndex   map[string]string
	messages  map[string][]domain.Message
}

// NewMemoryStore initializes an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{core: &memoryCore{
		chats:     make(map[string]*domain.Chat),
		chatSeq:   make(map[string]int64),
		operators: make(map[string]*domain.Operator),
		clients:   make(map[string]*domain.Client),
		ipIndex:   make(map[string]string),
		messages:  make(map[string][]domain.Message),
	}}
}

// Chats returns the chat repository view.
func (s *MemoryStore) Chats() ChatRepository { return &memoryChats{core: s.core} }

// Operators returns the operator repository view.
func (s *MemoryStore) Operators() OperatorRepository { return &memoryOperators{core: s.core} }

// Clients returns the client repository view.
func (s *MemoryStore) Clients() ClientRepository { return &memoryClients{core: s.core} }

// Messages returns the message repository view.
func (s *MemoryStore) Messages() MessageRepository { return &memoryMessages{core: s.core} }

func (c *memoryCore) countActive(operator string) int {
	count := 0
	for _, chat := range c.chats {
		if chat.Status == domain.ChatStatusActive && chat.AssignedOperator != nil && *chat.AssignedOperator == operator {
			count++
		}
	}
	return count
}

// waitingOrder sorts by original created_at with the insertion sequence as a
// deterministic tie-break.
func (c *memoryCore) waitingOrder(a, b *domain.Chat) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return c.chatSeq[a.ID] < c.chatSeq[b.ID]
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

type memoryChats struct {
	core *memoryCore
}

func (r *memoryChats) Create(_ context.Context, chat *domain.Chat) error {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	chat.ID = uuid.NewString()
	chat.Status = domain.ChatStatusWaiting
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = now
	}
	chat.UpdatedAt = now
	c.seq++
	c.chatSeq[chat.ID] = c.seq
	stored := *chat
	c.chats[chat.ID] = &stored
	return nil
}

func (r *memoryChats) GetByID(_ context.Context, id string) (*domain.Chat, error) {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()

	chat, ok := c.chats[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *chat
	return &copied, nil
}

func (r *memoryChats) FindOpenByClient(_ context.Context, clientID string) (*domain.Chat, error) {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()

	var newest *domain.Chat
	for _, chat := range c.chats {
		if chat.ClientID != clientID {
			continue
		}
		if chat.Status != domain.ChatStatusWaiting && chat.Status != domain.ChatStatusActive {
			continue
		}
		if newest == nil || c.waitingOrder(newest, chat) {
			newest = chat
		}
	}
	if newest == nil {
		return nil, nil
	}
	copied := *newest
	return &copied, nil
}

func (r *memoryChats) OldestWaiting(_ context.Context) (*domain.Chat, error) {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()

	var oldest *domain.Chat
	for _, chat := range c.chats {
		if chat.Status != domain.ChatStatusWaiting {
			continue
		}
		if oldest == nil || c.waitingOrder(chat, oldest) {
			oldest = chat
		}
	}
	if oldest == nil {
		return nil, nil
	}
	copied := *oldest
	return &copied, nil
}

func (r *memoryChats) Claim(_ context.Context, chatID, operator string, assignedAt, deadline time.Time, capacity int) (ClaimResult, error) {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.countActive(operator) >= capacity {
		return ClaimResult{AtCapacity: true}, nil
	}
	chat, ok := c.chats[chatID]
	if !ok || chat.Status != domain.ChatStatusWaiting {
		return ClaimResult{}, nil
	}

	op := operator
	at := assignedAt
	dl := deadline
	chat.Status = domain.ChatStatusActive
	chat.AssignedOperator = &op
	chat.AssignedAt = &at
	chat.Deadline = &dl
	chat.ExtensionRequested = false
	chat.ExtensionDeadline = nil
	chat.UpdatedAt = time.Now()
	return ClaimResult{Claimed: true}, nil
}

func (r *memoryChats) Requeue(_ context.Context, chatID string) (bool, error) {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()

	chat, ok := c.chats[chatID]
	if !ok || chat.Status != domain.ChatStatusActive {
		return false, nil
	}
	clearAssignment(chat, domain.ChatStatusWaiting)
	return true, nil
}

func (r *memoryChats) Finish(_ context.Context, chatID string, status domain.ChatStatus) (bool, error) {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()

	chat, ok := c.chats[chatID]
	if !ok || chat.Status == domain.ChatStatusClosed {
		return false, nil
	}
	clearAssignment(chat, status)
	return true, nil
}

func (r *memoryChats) ExtendDeadline(_ context.Context, chatID string, deadline time.Time) (bool, error) {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()

	chat, ok := c.chats[chatID]
	if !ok || chat.Status != domain.ChatStatusActive {
		return false, nil
	}
	dl := deadline
	chat.Deadline = &dl
	chat.ExtensionRequested = false
	chat.ExtensionDeadline = nil
	chat.UpdatedAt = time.Now()
	return true, nil
}

func (r *memoryChats) GrantGrace(_ context.Context, now, graceUntil time.Time) ([]string, error) {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()

	var ids []string
	for _, chat := range c.chats {
		if chat.Status != domain.ChatStatusActive || chat.ExtensionRequested {
			continue
		}
		if chat.Deadline == nil || !chat.Deadline.Before(now) {
			continue
		}
		until := graceUntil
		chat.ExtensionRequested = true
		chat.ExtensionDeadline = &until
		chat.UpdatedAt = time.Now()
		ids = append(ids, chat.ID)
	}
	return ids, nil
}

func (r *memoryChats) ListGraceExpired(_ context.Context, now time.Time) ([]string, error) {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []*domain.Chat
	for _, chat := range c.chats {
		if chat.Status != domain.ChatStatusActive || !chat.ExtensionRequested {
			continue
		}
		if chat.ExtensionDeadline == nil || !chat.ExtensionDeadline.Before(now) {
			continue
		}
		expired = append(expired, chat)
	}
	sort.Slice(expired, func(i, j int) bool { return c.waitingOrder(expired[i], expired[j]) })

	ids := make([]string, 0, len(expired))
	for _, chat := range expired {
		ids = append(ids, chat.ID)
	}
	return ids, nil
}

func (r *memoryChats) ListAssignedTo(_ context.Context, operator string) ([]domain.Chat, error) {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()

	var assigned []*domain.Chat
	for _, chat := range c.chats {
		if chat.Status == domain.ChatStatusActive && chat.AssignedOperator != nil && *chat.AssignedOperator == operator {
			assigned = append(assigned, chat)
		}
	}
	sort.Slice(assigned, func(i, j int) bool { return c.waitingOrder(assigned[i], assigned[j]) })

	result := make([]domain.Chat, 0, len(assigned))
	for _, chat := range assigned {
		result = append(result, *chat)
	}
	return result, nil
}

func (r *memoryChats) CountActiveByOperator(_ context.Context, operator string) (int, error) {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.countActive(operator), nil
}

func (r *memoryChats) Touch(_ context.Context, chatID string) error {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()

	chat, ok := c.chats[chatID]
	if !ok {
		return pgx.ErrNoRows
	}
	chat.UpdatedAt = time.Now()
	return nil
}

func (r *memoryChats) ListOverview(_ context.Context) ([]domain.ChatOverview, error) {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]domain.ChatOverview, 0, len(c.chats))
	for _, chat := range c.chats {
		item := domain.ChatOverview{
			ID:               chat.ID,
			Status:           chat.Status,
			AssignedOperator: chat.AssignedOperator,
			MessageCount:     len(c.messages[chat.ID]),
			CreatedAt:        chat.CreatedAt,
			UpdatedAt:        chat.UpdatedAt,
		}
		if client, ok := c.clients[chat.ClientID]; ok {
			item.ClientName = client.Name
			item.Email = client.Email
			item.Phone = client.Phone
			item.IPAddress = client.IPAddress
		}
		result = append(result, item)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.After(result[j].UpdatedAt) })
	return result, nil
}

func clearAssignment(chat *domain.Chat, status domain.ChatStatus) {
	chat.Status = status
	chat.AssignedOperator = nil
	chat.AssignedAt = nil
	chat.Deadline = nil
	chat.ExtensionRequested = false
	chat.ExtensionDeadline = nil
	chat.UpdatedAt = time.Now()
}

type memoryOperators struct {
	core *memoryCore
}

func (r *memoryOperators) Upsert(_ context.Context, name string, status domain.OperatorStatus) error {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if op, ok := c.operators[name]; ok {
		op.Status = status
		op.UpdatedAt = now
		return nil
	}
	c.operators[name] = &domain.Operator{
		Name:      name,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return nil
}

func (r *memoryOperators) GetByName(_ context.Context, name string) (*domain.Operator, error) {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()

	op, ok := c.operators[name]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *op
	copied.ActiveChats = c.countActive(name)
	return &copied, nil
}

func (r *memoryOperators) ListEligible(_ context.Context, capacity int) ([]domain.Operator, error) {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()

	var result []domain.Operator
	for _, op := range c.operators {
		if op.Status != domain.OperatorStatusOnline {
			continue
		}
		active := c.countActive(op.Name)
		if active >= capacity {
			continue
		}
		copied := *op
		copied.ActiveChats = active
		result = append(result, copied)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ActiveChats == result[j].ActiveChats {
			return result[i].Name < result[j].Name
		}
		return result[i].ActiveChats < result[j].ActiveChats
	})
	return result, nil
}

func (r *memoryOperators) List(_ context.Context) ([]domain.Operator, error) {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]domain.Operator, 0, len(c.operators))
	for _, op := range c.operators {
		copied := *op
		copied.ActiveChats = c.countActive(op.Name)
		result = append(result, copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

type memoryClients struct {
	core *memoryCore
}

func (r *memoryClients) UpsertByIP(_ context.Context, client *domain.Client) error {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if id, ok := c.ipIndex[client.IPAddress]; ok {
		existing := c.clients[id]
		existing.Name = client.Name
		existing.Email = client.Email
		existing.Phone = client.Phone
		existing.LastSeen = now
		*client = *existing
		return nil
	}
	client.ID = uuid.NewString()
	client.CreatedAt = now
	client.LastSeen = now
	stored := *client
	c.clients[client.ID] = &stored
	c.ipIndex[client.IPAddress] = client.ID
	return nil
}

func (r *memoryClients) GetByID(_ context.Context, id string) (*domain.Client, error) {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()

	client, ok := c.clients[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *client
	return &copied, nil
}

func (r *memoryClients) List(_ context.Context) ([]domain.Client, error) {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]domain.Client, 0, len(c.clients))
	for _, client := range c.clients {
		result = append(result, *client)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].LastSeen.After(result[j].LastSeen) })
	return result, nil
}

type memoryMessages struct {
	core *memoryCore
}

func (r *memoryMessages) Create(_ context.Context, message *domain.Message) error {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()

	message.ID = uuid.NewString()
	message.CreatedAt = time.Now()
	c.messages[message.ChatID] = append(c.messages[message.ChatID], *message)
	return nil
}

func (r *memoryMessages) ListByChat(_ context.Context, chatID string) ([]domain.Message, error) {
	c := r.core
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := c.messages[chatID]
	result := make([]domain.Message, len(msgs))
	copy(result, msgs)
	return result, nil
}
