package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/pr-poehali-dev/client-support-chat-2/internal/domain"
	"github.com/pr-poehali-dev/client-support-chat-2/internal/events"
)

func TestRequeueIsIdempotent(t *testing.T) {
	env := newSchedEnv(2, 15*time.Minute)
	chatID := env.addWaitingChat(t, time.Now())

	// releasing an already waiting chat is a no-op
	if err := env.coordinator.Requeue(context.Background(), chatID, events.ReleaseReasonManual); err != nil {
		t.Fatalf("requeue waiting chat: %v", err)
	}
	if chat := env.mustGetChat(t, chatID); chat.Status != domain.ChatStatusWaiting {
		t.Fatalf("status = %s, want waiting", chat.Status)
	}

	err := env.coordinator.Requeue(context.Background(), "missing", events.ReleaseReasonManual)
	if domainCode(t, err) != "NOT_FOUND" {
		t.Fatalf("unknown chat: got %v", err)
	}
}

func TestRequeueClearsAssignment(t *testing.T) {
	env := newSchedEnv(2, 15*time.Minute)
	env.addOperator(t, "anna", domain.OperatorStatusOnline)
	chatID := env.addWaitingChat(t, time.Now().Add(-time.Minute))
	if err := env.engine.Dispatch(context.Background(), ""); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	// keep the chat from being re-picked immediately
	env.addOperator(t, "anna", domain.OperatorStatusOffline)

	released := 0
	env.dispatcher.Subscribe(events.EventChatReleased, func(_ context.Context, event events.Event) error {
		released++
		return nil
	})

	if err := env.coordinator.Requeue(context.Background(), chatID, events.ReleaseReasonManual); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	chat := env.mustGetChat(t, chatID)
	if chat.Status != domain.ChatStatusWaiting {
		t.Fatalf("status = %s, want waiting", chat.Status)
	}
	if chat.AssignedOperator != nil || chat.AssignedAt != nil || chat.Deadline != nil {
		t.Fatalf("assignment fields not cleared: %+v", chat)
	}
	if got := env.activeCount(t, "anna"); got != 0 {
		t.Fatalf("active count = %d, want 0", got)
	}
	if released != 1 {
		t.Fatalf("released events = %d, want 1", released)
	}

	// second release does not publish or change anything
	if err := env.coordinator.Requeue(context.Background(), chatID, events.ReleaseReasonManual); err != nil {
		t.Fatalf("second requeue: %v", err)
	}
	if released != 1 {
		t.Fatalf("released events = %d after repeat, want 1", released)
	}
}

func TestFinishFreesSlotAndStaysTerminal(t *testing.T) {
	env := newSchedEnv(1, 15*time.Minute)
	env.addOperator(t, "anna", domain.OperatorStatusOnline)
	first := env.addWaitingChat(t, time.Now().Add(-2*time.Minute))
	second := env.addWaitingChat(t, time.Now().Add(-time.Minute))
	if err := env.engine.Dispatch(context.Background(), ""); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if err := env.coordinator.Finish(context.Background(), first, domain.ChatStatusClosed); err != nil {
		t.Fatalf("finish: %v", err)
	}
	chat := env.mustGetChat(t, first)
	if chat.Status != domain.ChatStatusClosed {
		t.Fatalf("status = %s, want closed", chat.Status)
	}
	if chat.AssignedOperator != nil {
		t.Fatalf("assigned operator = %v, want nil", chat.AssignedOperator)
	}

	// freed slot immediately serves the queue
	if got := env.mustGetChat(t, second); got.Status != domain.ChatStatusActive {
		t.Fatalf("second chat status = %s, want active", got.Status)
	}

	// repeating the same terminal status is a no-op
	if err := env.coordinator.Finish(context.Background(), first, domain.ChatStatusClosed); err != nil {
		t.Fatalf("repeat finish: %v", err)
	}
	// closed chats are never resurrected into another status
	err := env.coordinator.Finish(context.Background(), first, domain.ChatStatusPostponed)
	if domainCode(t, err) != "CONFLICT" {
		t.Fatalf("finish closed chat: got %v", err)
	}

	err = env.coordinator.Finish(context.Background(), second, domain.ChatStatusActive)
	if domainCode(t, err) != "VALIDATION_FAILED" {
		t.Fatalf("non-terminal status: got %v", err)
	}
}

func TestReleaseOperatorRequeuesInOrder(t *testing.T) {
	env := newSchedEnv(2, 15*time.Minute)
	env.addOperator(t, "anna", domain.OperatorStatusOnline)

	base := time.Now()
	first := env.addWaitingChat(t, base.Add(-3*time.Minute))
	second := env.addWaitingChat(t, base.Add(-2*time.Minute))
	if err := env.engine.Dispatch(context.Background(), ""); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	// boris has one free slot; only the older chat fits after the release
	env.addOperator(t, "boris", domain.OperatorStatusOnline)
	filler := env.addWaitingChat(t, base)
	if err := env.engine.AssignTo(context.Background(), filler, "boris"); err != nil {
		t.Fatalf("fill boris: %v", err)
	}

	env.addOperator(t, "anna", domain.OperatorStatusOffline)
	if err := env.coordinator.ReleaseOperator(context.Background(), "anna"); err != nil {
		t.Fatalf("release operator: %v", err)
	}

	if got := env.activeCount(t, "anna"); got != 0 {
		t.Fatalf("anna active count = %d, want 0", got)
	}
	firstChat := env.mustGetChat(t, first)
	if firstChat.Status != domain.ChatStatusActive || *firstChat.AssignedOperator != "boris" {
		t.Fatalf("oldest chat = %s/%v, want active on boris", firstChat.Status, firstChat.AssignedOperator)
	}
	if got := env.mustGetChat(t, second); got.Status != domain.ChatStatusWaiting {
		t.Fatalf("newer chat status = %s, want waiting", got.Status)
	}
}
