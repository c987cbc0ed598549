package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/pr-poehali-dev/client-support-chat-2/internal/domain"
	"github.com/pr-poehali-dev/client-support-chat-2/internal/events"
)

func TestSweepLeavesFreshChats(t *testing.T) {
	env := newSchedEnv(2, 15*time.Minute)
	monitor := env.newMonitor(15*time.Second, 0)
	env.addOperator(t, "anna", domain.OperatorStatusOnline)
	chatID := env.addWaitingChat(t, time.Now())
	if err := env.engine.Dispatch(context.Background(), ""); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if err := monitor.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	chat := env.mustGetChat(t, chatID)
	if chat.Status != domain.ChatStatusActive || chat.ExtensionRequested {
		t.Fatalf("fresh chat touched by sweep: %+v", chat)
	}
}

func TestSweepGrantsGraceOnce(t *testing.T) {
	env := newSchedEnv(2, 15*time.Minute)
	monitor := env.newMonitor(15*time.Second, 0)
	env.addOperator(t, "anna", domain.OperatorStatusOnline)
	chatID := env.addWaitingChat(t, time.Now().Add(-20*time.Minute))
	env.claimExpired(t, chatID, "anna")

	if err := monitor.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	chat := env.mustGetChat(t, chatID)
	if chat.Status != domain.ChatStatusActive {
		t.Fatalf("status = %s, want still active during grace", chat.Status)
	}
	if !chat.ExtensionRequested || chat.ExtensionDeadline == nil {
		t.Fatalf("grace window not opened: %+v", chat)
	}
	if !chat.ExtensionDeadline.After(time.Now()) {
		t.Fatalf("extension deadline = %v, want in the future", chat.ExtensionDeadline)
	}
	granted := *chat.ExtensionDeadline

	// a repeated sweep must not extend the window again
	if err := monitor.Sweep(context.Background()); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	chat = env.mustGetChat(t, chatID)
	if chat.ExtensionDeadline == nil || !chat.ExtensionDeadline.Equal(granted) {
		t.Fatalf("extension deadline moved: %v -> %v", granted, chat.ExtensionDeadline)
	}
}

func TestSweepReleasesAfterGraceExpiry(t *testing.T) {
	env := newSchedEnv(2, 15*time.Minute)
	monitor := env.newMonitor(10*time.Millisecond, 0)
	env.addOperator(t, "anna", domain.OperatorStatusOnline)
	chatID := env.addWaitingChat(t, time.Now().Add(-20*time.Minute))
	env.claimExpired(t, chatID, "anna")

	var reason string
	env.dispatcher.Subscribe(events.EventChatReleased, func(_ context.Context, event events.Event) error {
		if payload, ok := event.Payload.(events.ChatReleasedPayload); ok {
			reason = payload.Reason
		}
		return nil
	})

	if err := monitor.Sweep(context.Background()); err != nil {
		t.Fatalf("grant sweep: %v", err)
	}
	// keep the chat from being re-picked once released
	env.addOperator(t, "anna", domain.OperatorStatusOffline)
	time.Sleep(30 * time.Millisecond)
	if err := monitor.Sweep(context.Background()); err != nil {
		t.Fatalf("release sweep: %v", err)
	}

	chat := env.mustGetChat(t, chatID)
	if chat.Status != domain.ChatStatusWaiting {
		t.Fatalf("status = %s, want waiting after grace expiry", chat.Status)
	}
	if chat.AssignedOperator != nil || chat.Deadline != nil || chat.ExtensionRequested || chat.ExtensionDeadline != nil {
		t.Fatalf("assignment fields not cleared: %+v", chat)
	}
	if got := env.activeCount(t, "anna"); got != 0 {
		t.Fatalf("active count = %d, want 0", got)
	}
	if reason != events.ReleaseReasonDeadlineExpired {
		t.Fatalf("release reason = %q, want deadline_expired", reason)
	}
}

func TestSweepReassignsReleasedChat(t *testing.T) {
	env := newSchedEnv(2, 15*time.Minute)
	monitor := env.newMonitor(10*time.Millisecond, 0)
	env.addOperator(t, "anna", domain.OperatorStatusOnline)
	chatID := env.addWaitingChat(t, time.Now().Add(-20*time.Minute))
	env.claimExpired(t, chatID, "anna")

	if err := monitor.Sweep(context.Background()); err != nil {
		t.Fatalf("grant sweep: %v", err)
	}
	env.addOperator(t, "anna", domain.OperatorStatusOffline)
	env.addOperator(t, "boris", domain.OperatorStatusOnline)
	time.Sleep(30 * time.Millisecond)
	if err := monitor.Sweep(context.Background()); err != nil {
		t.Fatalf("release sweep: %v", err)
	}

	chat := env.mustGetChat(t, chatID)
	if chat.Status != domain.ChatStatusActive {
		t.Fatalf("status = %s, want reassigned active", chat.Status)
	}
	if chat.AssignedOperator == nil || *chat.AssignedOperator != "boris" {
		t.Fatalf("assigned operator = %v, want boris", chat.AssignedOperator)
	}
	if chat.Deadline == nil || !chat.Deadline.After(time.Now()) {
		t.Fatalf("deadline = %v, want fresh deadline", chat.Deadline)
	}
}

func TestExtendResetsDeadlineAndGrace(t *testing.T) {
	env := newSchedEnv(2, 15*time.Minute)
	monitor := env.newMonitor(15*time.Second, 0)
	env.addOperator(t, "anna", domain.OperatorStatusOnline)
	chatID := env.addWaitingChat(t, time.Now().Add(-20*time.Minute))
	env.claimExpired(t, chatID, "anna")

	if err := monitor.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	chat, err := monitor.Extend(context.Background(), chatID)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if chat.Deadline == nil || !chat.Deadline.After(time.Now().Add(14*time.Minute)) {
		t.Fatalf("deadline = %v, want full fresh window", chat.Deadline)
	}
	if chat.ExtensionRequested || chat.ExtensionDeadline != nil {
		t.Fatalf("extension fields not cleared: %+v", chat)
	}

	// with a fresh deadline the sweep leaves the chat alone again
	if err := monitor.Sweep(context.Background()); err != nil {
		t.Fatalf("post-extend sweep: %v", err)
	}
	chat = env.mustGetChat(t, chatID)
	if chat.ExtensionRequested {
		t.Fatalf("grace re-granted after extend: %+v", chat)
	}
}

func TestExtendErrors(t *testing.T) {
	env := newSchedEnv(2, 15*time.Minute)
	monitor := env.newMonitor(15*time.Second, 0)

	_, err := monitor.Extend(context.Background(), "missing")
	if domainCode(t, err) != "NOT_FOUND" {
		t.Fatalf("unknown chat: got %v", err)
	}

	chatID := env.addWaitingChat(t, time.Now())
	_, err = monitor.Extend(context.Background(), chatID)
	if domainCode(t, err) != "CONFLICT" {
		t.Fatalf("waiting chat: got %v", err)
	}
}

func TestMaybeSweepThrottles(t *testing.T) {
	env := newSchedEnv(2, 15*time.Minute)
	monitor := env.newMonitor(15*time.Second, time.Hour)
	env.addOperator(t, "anna", domain.OperatorStatusOnline)

	first := env.addWaitingChat(t, time.Now().Add(-30*time.Minute))
	env.claimExpired(t, first, "anna")
	if err := monitor.MaybeSweep(context.Background()); err != nil {
		t.Fatalf("first maybe-sweep: %v", err)
	}
	if chat := env.mustGetChat(t, first); !chat.ExtensionRequested {
		t.Fatalf("first sweep did not run")
	}

	second := env.addWaitingChat(t, time.Now().Add(-20*time.Minute))
	env.claimExpired(t, second, "anna")
	if err := monitor.MaybeSweep(context.Background()); err != nil {
		t.Fatalf("second maybe-sweep: %v", err)
	}
	if chat := env.mustGetChat(t, second); chat.ExtensionRequested {
		t.Fatalf("sweep ran inside the throttle interval")
	}

	// zero interval disables the throttle entirely
	eager := env.newMonitor(15*time.Second, 0)
	if err := eager.MaybeSweep(context.Background()); err != nil {
		t.Fatalf("eager maybe-sweep: %v", err)
	}
	if chat := env.mustGetChat(t, second); !chat.ExtensionRequested {
		t.Fatalf("unthrottled sweep did not run")
	}
}
