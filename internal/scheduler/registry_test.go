package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/pr-poehali-dev/client-support-chat-2/internal/domain"
)

func TestSetStatusOnlinePullsWaitingChats(t *testing.T) {
	env := newSchedEnv(2, 15*time.Minute)

	base := time.Now()
	first := env.addWaitingChat(t, base.Add(-3*time.Minute))
	second := env.addWaitingChat(t, base.Add(-2*time.Minute))
	third := env.addWaitingChat(t, base.Add(-time.Minute))

	if err := env.registry.SetStatus(context.Background(), "anna", domain.OperatorStatusOnline); err != nil {
		t.Fatalf("set status: %v", err)
	}

	if got := env.activeCount(t, "anna"); got != 2 {
		t.Fatalf("active count = %d, want capacity 2", got)
	}
	for _, id := range []string{first, second} {
		if chat := env.mustGetChat(t, id); chat.Status != domain.ChatStatusActive {
			t.Fatalf("chat %s status = %s, want active", id, chat.Status)
		}
	}
	if chat := env.mustGetChat(t, third); chat.Status != domain.ChatStatusWaiting {
		t.Fatalf("chat %s status = %s, want waiting", third, chat.Status)
	}
}

func TestSetStatusOfflineHandsChatsOver(t *testing.T) {
	env := newSchedEnv(2, 15*time.Minute)

	base := time.Now()
	first := env.addWaitingChat(t, base.Add(-3*time.Minute))
	second := env.addWaitingChat(t, base.Add(-2*time.Minute))
	if err := env.registry.SetStatus(context.Background(), "anna", domain.OperatorStatusOnline); err != nil {
		t.Fatalf("anna online: %v", err)
	}
	if err := env.registry.SetStatus(context.Background(), "boris", domain.OperatorStatusOnline); err != nil {
		t.Fatalf("boris online: %v", err)
	}

	if err := env.registry.SetStatus(context.Background(), "anna", domain.OperatorStatusOffline); err != nil {
		t.Fatalf("anna offline: %v", err)
	}

	if got := env.activeCount(t, "anna"); got != 0 {
		t.Fatalf("anna active count = %d, want 0", got)
	}
	if got := env.activeCount(t, "boris"); got != 2 {
		t.Fatalf("boris active count = %d, want 2", got)
	}
	for _, id := range []string{first, second} {
		chat := env.mustGetChat(t, id)
		if chat.AssignedOperator == nil || *chat.AssignedOperator != "boris" {
			t.Fatalf("chat %s operator = %v, want boris", id, chat.AssignedOperator)
		}
	}

	operator, err := env.registry.Get(context.Background(), "anna")
	if err != nil {
		t.Fatalf("get anna: %v", err)
	}
	if operator.Status != domain.OperatorStatusOffline || operator.ActiveChats != 0 {
		t.Fatalf("anna = %+v, want offline with zero chats", operator)
	}
}

func TestSetStatusValidation(t *testing.T) {
	env := newSchedEnv(2, 15*time.Minute)

	err := env.registry.SetStatus(context.Background(), "", domain.OperatorStatusOnline)
	if domainCode(t, err) != "VALIDATION_FAILED" {
		t.Fatalf("empty name: got %v", err)
	}
	err = env.registry.SetStatus(context.Background(), "anna", domain.OperatorStatus("busy"))
	if domainCode(t, err) != "VALIDATION_FAILED" {
		t.Fatalf("unknown status: got %v", err)
	}
}

func TestGetUnknownOperator(t *testing.T) {
	env := newSchedEnv(2, 15*time.Minute)

	_, err := env.registry.Get(context.Background(), "ghost")
	if domainCode(t, err) != "NOT_FOUND" {
		t.Fatalf("unknown operator: got %v", err)
	}
}

func TestListEligibleOrdersByLoad(t *testing.T) {
	env := newSchedEnv(2, 15*time.Minute)
	env.addOperator(t, "anna", domain.OperatorStatusOnline)
	env.addOperator(t, "boris", domain.OperatorStatusOnline)
	env.addOperator(t, "dora", domain.OperatorStatusOffline)

	chatID := env.addWaitingChat(t, time.Now())
	if err := env.engine.AssignTo(context.Background(), chatID, "anna"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	eligible, err := env.registry.ListEligible(context.Background())
	if err != nil {
		t.Fatalf("list eligible: %v", err)
	}
	if len(eligible) != 2 {
		t.Fatalf("eligible = %d operators, want 2", len(eligible))
	}
	if eligible[0].Name != "boris" || eligible[1].Name != "anna" {
		t.Fatalf("order = %s, %s; want boris first", eligible[0].Name, eligible[1].Name)
	}
}
