package repository

import (
	"context"
	"testing"
	"time"

	"github.com/pr-poehali-dev/client-support-chat-2/internal/domain"
)

func TestClaimIsExclusive(t *testing.T) {
	store := NewMemoryStore()
	chats := store.Chats()

	chat := &domain.Chat{ClientID: "client-1"}
	if err := chats.Create(context.Background(), chat); err != nil {
		t.Fatalf("create: %v", err)
	}

	now := time.Now()
	first, err := chats.Claim(context.Background(), chat.ID, "anna", now, now.Add(15*time.Minute), 2)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !first.Claimed {
		t.Fatalf("first claim lost on a waiting chat")
	}

	second, err := chats.Claim(context.Background(), chat.ID, "boris", now, now.Add(15*time.Minute), 2)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if second.Claimed || second.AtCapacity {
		t.Fatalf("second claim = %+v, want plain loss on non-waiting chat", second)
	}
}

func TestClaimEnforcesCapacity(t *testing.T) {
	store := NewMemoryStore()
	chats := store.Chats()

	now := time.Now()
	var ids []string
	for i := 0; i < 2; i++ {
		chat := &domain.Chat{ClientID: "client-1"}
		if err := chats.Create(context.Background(), chat); err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, chat.ID)
	}

	result, err := chats.Claim(context.Background(), ids[0], "anna", now, now.Add(15*time.Minute), 1)
	if err != nil || !result.Claimed {
		t.Fatalf("first claim = %+v, %v", result, err)
	}
	result, err = chats.Claim(context.Background(), ids[1], "anna", now, now.Add(15*time.Minute), 1)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if !result.AtCapacity {
		t.Fatalf("second claim = %+v, want at-capacity", result)
	}

	count, err := chats.CountActiveByOperator(context.Background(), "anna")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestOldestWaitingUsesOriginalCreatedAt(t *testing.T) {
	store := NewMemoryStore()
	chats := store.Chats()

	base := time.Now()
	newer := &domain.Chat{ClientID: "client-1", CreatedAt: base.Add(-time.Minute)}
	older := &domain.Chat{ClientID: "client-2", CreatedAt: base.Add(-2 * time.Minute)}
	for _, chat := range []*domain.Chat{newer, older} {
		if err := chats.Create(context.Background(), chat); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := chats.OldestWaiting(context.Background())
	if err != nil {
		t.Fatalf("oldest waiting: %v", err)
	}
	if got == nil || got.ID != older.ID {
		t.Fatalf("oldest = %v, want %s", got, older.ID)
	}

	// a released chat keeps its place in the queue
	now := time.Now()
	if result, err := chats.Claim(context.Background(), older.ID, "anna", now, now.Add(time.Minute), 2); err != nil || !result.Claimed {
		t.Fatalf("claim = %v, %v", result, err)
	}
	if ok, err := chats.Requeue(context.Background(), older.ID); err != nil || !ok {
		t.Fatalf("requeue = %v, %v", ok, err)
	}
	got, err = chats.OldestWaiting(context.Background())
	if err != nil {
		t.Fatalf("oldest waiting after requeue: %v", err)
	}
	if got.ID != older.ID {
		t.Fatalf("oldest after requeue = %s, want %s", got.ID, older.ID)
	}
}

func TestFindOpenByClient(t *testing.T) {
	store := NewMemoryStore()
	chats := store.Chats()

	open, err := chats.FindOpenByClient(context.Background(), "client-1")
	if err != nil {
		t.Fatalf("find open: %v", err)
	}
	if open != nil {
		t.Fatalf("open = %v, want nil for unknown client", open)
	}

	chat := &domain.Chat{ClientID: "client-1"}
	if err := chats.Create(context.Background(), chat); err != nil {
		t.Fatalf("create: %v", err)
	}
	open, err = chats.FindOpenByClient(context.Background(), "client-1")
	if err != nil {
		t.Fatalf("find open: %v", err)
	}
	if open == nil || open.ID != chat.ID {
		t.Fatalf("open = %v, want %s", open, chat.ID)
	}

	if ok, err := chats.Finish(context.Background(), chat.ID, domain.ChatStatusClosed); err != nil || !ok {
		t.Fatalf("finish = %v, %v", ok, err)
	}
	open, err = chats.FindOpenByClient(context.Background(), "client-1")
	if err != nil {
		t.Fatalf("find open: %v", err)
	}
	if open != nil {
		t.Fatalf("open = %v, want nil after close", open)
	}
}

func TestUpsertByIPKeepsIdentity(t *testing.T) {
	store := NewMemoryStore()
	clients := store.Clients()

	name := "Ivan"
	first := &domain.Client{IPAddress: "10.0.0.1", Name: &name}
	if err := clients.UpsertByIP(context.Background(), first); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	renamed := "Ivan Petrov"
	second := &domain.Client{IPAddress: "10.0.0.1", Name: &renamed}
	if err := clients.UpsertByIP(context.Background(), second); err != nil {
		t.Fatalf("repeat upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("id = %s, want stable %s", second.ID, first.ID)
	}

	stored, err := clients.GetByID(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Name == nil || *stored.Name != renamed {
		t.Fatalf("name = %v, want refreshed %q", stored.Name, renamed)
	}
}
