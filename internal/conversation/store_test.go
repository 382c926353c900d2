package conversation

import (
	"strings"
	"testing"
	"time"

	apperrors "docqa/internal/errors"
	"docqa/internal/models"
)

func TestStartAssignsUniqueIDs(t *testing.T) {
	store := NewMemoryStore(0)

	first := store.Start("", "42")
	second := store.Start("", "42")

	if first.ID == second.ID {
		t.Error("Expected unique conversation ids")
	}
	if !strings.HasPrefix(first.ID, "conv-42-") {
		t.Errorf("Expected id prefixed with owner, got '%s'", first.ID)
	}
	if first.CollectionName != GlobalScope {
		t.Errorf("Expected default scope '%s', got '%s'", GlobalScope, first.CollectionName)
	}
}

func TestAddMessagePreservesOrder(t *testing.T) {
	store := NewMemoryStore(0)
	conv := store.Start("", "42")

	if _, err := store.AddMessage(conv.ID, RoleUser, "first question", nil); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}
	if _, err := store.AddMessage(conv.ID, RoleAssistant, "first answer", nil); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}
	if _, err := store.AddMessage(conv.ID, RoleUser, "second question", nil); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	got, err := store.Get(conv.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	want := []struct{ role, content string }{
		{RoleUser, "first question"},
		{RoleAssistant, "first answer"},
		{RoleUser, "second question"},
	}
	if len(got.Messages) != len(want) {
		t.Fatalf("Expected %d messages, got %d", len(want), len(got.Messages))
	}
	for i, w := range want {
		if got.Messages[i].Role != w.role || got.Messages[i].Content != w.content {
			t.Errorf("Message %d: expected %s/%q, got %s/%q",
				i, w.role, w.content, got.Messages[i].Role, got.Messages[i].Content)
		}
	}
}

func TestAddMessageUnknownConversation(t *testing.T) {
	store := NewMemoryStore(0)

	_, err := store.AddMessage("conv-42-missing", RoleUser, "hello", nil)
	if !apperrors.IsNotFound(err) {
		t.Errorf("Expected not-found error, got %v", err)
	}

	// The failed append must not create the conversation.
	if _, err := store.Get("conv-42-missing"); !apperrors.IsNotFound(err) {
		t.Error("Expected failed append to leave no conversation behind")
	}
}

func TestAddMessageRejectsUnknownRole(t *testing.T) {
	store := NewMemoryStore(0)
	conv := store.Start("", "42")

	_, err := store.AddMessage(conv.ID, "system", "injected", nil)
	if !apperrors.IsInvalidInput(err) {
		t.Errorf("Expected invalid-input error for unknown role, got %v", err)
	}
}

func TestAddMessageKeepsEvidence(t *testing.T) {
	store := NewMemoryStore(0)
	conv := store.Start("", "42")

	evidence := []models.QueryMatch{{Text: "supporting passage", Collection: "docs", Distance: 0.2}}
	if _, err := store.AddMessage(conv.ID, RoleAssistant, "answer", evidence); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	got, err := store.Get(conv.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got.Messages[0].Context) != 1 || got.Messages[0].Context[0].Collection != "docs" {
		t.Errorf("Expected evidence on assistant turn, got %v", got.Messages[0].Context)
	}
}

func TestGetReturnsSnapshot(t *testing.T) {
	store := NewMemoryStore(0)
	conv := store.Start("", "42")
	if _, err := store.AddMessage(conv.ID, RoleUser, "original", nil); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	snap, err := store.Get(conv.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	snap.Messages[0].Content = "mutated"

	again, err := store.Get(conv.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if again.Messages[0].Content != "original" {
		t.Error("Expected stored conversation to be unaffected by snapshot mutation")
	}
}

func TestListByOwner(t *testing.T) {
	store := NewMemoryStore(0)

	older := store.Start("", "42")
	time.Sleep(2 * time.Millisecond)
	newer := store.Start("", "42.0")
	store.Start("", "7")

	convs := store.ListByOwner("42")
	if len(convs) != 2 {
		t.Fatalf("Expected 2 conversations for owner 42 (loose match), got %d", len(convs))
	}
	if convs[0].ID != newer.ID || convs[1].ID != older.ID {
		t.Error("Expected conversations ordered most recently active first")
	}
}

func TestTTLEviction(t *testing.T) {
	store := NewMemoryStore(time.Millisecond)

	stale := store.Start("", "42")
	time.Sleep(5 * time.Millisecond)
	store.Start("", "42")

	if _, err := store.Get(stale.ID); !apperrors.IsNotFound(err) {
		t.Error("Expected idle conversation to be evicted after the TTL")
	}
}
