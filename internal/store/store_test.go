package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/wabiz/internal/status"
	"github.com/matheus3301/wabiz/internal/webhook"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	// Each call advances one second so ordering never depends on wall time.
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	db.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return db
}

func incoming(from, providerID, text string) webhook.Event {
	return webhook.Event{
		Kind:              webhook.KindMessage,
		ProviderMessageID: providerID,
		ConversationID:    from,
		Message:           &webhook.Message{Text: text, Type: "text"},
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2 (init + outbox)", result.Version)
	}
	if result.Dirty {
		t.Error("migration left the schema dirty")
	}
}

func TestRecordIncoming(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	m, err := db.RecordIncoming(ctx, incoming("9198xxxx", "wamid.in1", "hi"), "106540352242922")
	if err != nil {
		t.Fatal(err)
	}
	if m.ID == "" {
		t.Error("ID not assigned")
	}
	if m.Direction != DirectionIncoming || m.Status != status.Delivered {
		t.Errorf("direction/status = %s/%s, want incoming/delivered", m.Direction, m.Status)
	}

	got, err := db.GetMessage(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("GetMessage() = nil")
	}
	if got.ConversationID != "9198xxxx" || got.SenderID != "9198xxxx" || got.ReceiverID != "106540352242922" {
		t.Errorf("got %+v", got)
	}
	if got.Text != "hi" || got.ProviderMessageID != "wamid.in1" {
		t.Errorf("text/provider id = %q/%q", got.Text, got.ProviderMessageID)
	}
	if !got.CreatedAt.Equal(m.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, m.CreatedAt)
	}
}

func TestRecordOutgoingWithoutProviderID(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	m, err := db.RecordOutgoing(ctx, Outgoing{
		ConversationID: "15551234",
		SenderID:       "user-1",
		Text:           "hello",
		Status:         status.Failed,
		ErrorMessage:   "graph: 400",
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := db.GetMessage(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Direction != DirectionOutgoing || got.Status != status.Failed {
		t.Errorf("direction/status = %s/%s, want outgoing/failed", got.Direction, got.Status)
	}
	if got.ProviderMessageID != "" || got.ErrorMessage != "graph: 400" {
		t.Errorf("provider id/error = %q/%q", got.ProviderMessageID, got.ErrorMessage)
	}

	// Two failed sends share an empty provider id; that must not collide.
	if _, err := db.RecordOutgoing(ctx, Outgoing{ConversationID: "15551234", SenderID: "user-1", Status: status.Failed}); err != nil {
		t.Fatalf("second failed send: %v", err)
	}
}

func TestApplyStatusUpdate(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	sent, err := db.RecordOutgoing(ctx, Outgoing{
		ConversationID:    "15551234",
		SenderID:          "user-1",
		Text:              "hello",
		ProviderMessageID: "wamid.1",
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := db.ApplyStatusUpdate(ctx, "wamid.1", status.Read)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("ApplyStatusUpdate() = nil, want updated record")
	}
	if got.ID != sent.ID || got.Status != status.Read {
		t.Errorf("got id=%s status=%s", got.ID, got.Status)
	}
	if got.PreviousStatus != status.Sent {
		t.Errorf("PreviousStatus = %s, want sent", got.PreviousStatus)
	}
	if !got.UpdatedAt.After(sent.UpdatedAt) {
		t.Errorf("UpdatedAt %v not after %v", got.UpdatedAt, sent.UpdatedAt)
	}

	// Regressions are written as received.
	got, err = db.ApplyStatusUpdate(ctx, "wamid.1", status.Sent)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != status.Sent {
		t.Errorf("status after regression = %s, want sent", got.Status)
	}
}

func TestApplyStatusUpdateNoMatch(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	m, err := db.RecordIncoming(ctx, incoming("9198xxxx", "wamid.other", "hi"), "")
	if err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{"wamid.1", ""} {
		got, err := db.ApplyStatusUpdate(ctx, id, status.Read)
		if err != nil {
			t.Fatalf("ApplyStatusUpdate(%q) error = %v", id, err)
		}
		if got != nil {
			t.Errorf("ApplyStatusUpdate(%q) = %+v, want nil", id, got)
		}
	}

	after, err := db.GetMessage(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if after.Status != status.Delivered || !after.UpdatedAt.Equal(m.UpdatedAt) {
		t.Errorf("unrelated record mutated: %+v", after)
	}
}

func TestApplyStatusUpdateDuplicateProviderID(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	// Provider redelivery stores the same message twice.
	first, err := db.RecordIncoming(ctx, incoming("9198xxxx", "wamid.dup", "hi"), "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := db.RecordIncoming(ctx, incoming("9198xxxx", "wamid.dup", "hi"), "")
	if err != nil {
		t.Fatal(err)
	}

	got, err := db.ApplyStatusUpdate(ctx, "wamid.dup", status.Read)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != first.ID {
		t.Errorf("updated %s, want oldest %s", got.ID, first.ID)
	}
	untouched, err := db.GetMessage(ctx, second.ID)
	if err != nil {
		t.Fatal(err)
	}
	if untouched.Status != status.Delivered {
		t.Errorf("second copy status = %s, want delivered", untouched.Status)
	}
}

func TestListMessagesLatestOldestFirst(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for i := range 5 {
		if _, err := db.RecordIncoming(ctx, incoming("a", fmt.Sprintf("wamid.a%d", i), fmt.Sprintf("a%d", i)), ""); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := db.RecordIncoming(ctx, incoming("b", "wamid.b0", "b0"), ""); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages(ctx, "a", 3)
	if err != nil {
		t.Fatal(err)
	}
	var texts []string
	for _, m := range msgs {
		texts = append(texts, m.Text)
	}
	if fmt.Sprint(texts) != "[a2 a3 a4]" {
		t.Errorf("texts = %v, want [a2 a3 a4]", texts)
	}

	all, err := db.ListMessages(ctx, "", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 6 {
		t.Errorf("got %d messages across conversations, want 6", len(all))
	}
	if all[len(all)-1].Text != "b0" {
		t.Errorf("newest = %q, want b0", all[len(all)-1].Text)
	}
}

func TestListConversations(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if _, err := db.RecordIncoming(ctx, incoming("a", "w1", "first"), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := db.RecordIncoming(ctx, incoming("b", "w2", "other"), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := db.RecordOutgoing(ctx, Outgoing{ConversationID: "a", SenderID: "u", Text: "reply"}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertContact(ctx, Contact{WaID: "a", Name: "Alice"}); err != nil {
		t.Fatal(err)
	}

	convs, err := db.ListConversations(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 2 {
		t.Fatalf("got %d conversations, want 2", len(convs))
	}
	a := convs[0]
	if a.ID != "a" || a.Name != "Alice" {
		t.Errorf("most recent = %s (%q), want a (Alice)", a.ID, a.Name)
	}
	if a.MessageCount != 2 || a.LastMessagePreview != "reply" || a.LastDirection != DirectionOutgoing {
		t.Errorf("conversation a = %+v", a)
	}
}

func TestContact(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.UpsertContact(ctx, Contact{WaID: "9198xxxx", Name: "Kerry"}); err != nil {
		t.Fatal(err)
	}
	// An empty name keeps the known one.
	if err := db.UpsertContact(ctx, Contact{WaID: "9198xxxx"}); err != nil {
		t.Fatal(err)
	}
	c, err := db.GetContact(ctx, "9198xxxx")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.Name != "Kerry" {
		t.Errorf("got %v, want Kerry", c)
	}

	c, err = db.GetContact(ctx, "missing")
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Error("expected nil for missing contact")
	}
}

func TestOutbox(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	id, err := db.QueueOutbox(ctx, "user-1", "hello_world", "en_US", []string{"111", "222"})
	if err != nil {
		t.Fatal(err)
	}

	pending, err := db.PendingOutbox(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("got %d pending, want 2", len(pending))
	}
	if pending[0].Recipient != "111" || pending[0].BroadcastID != id {
		t.Errorf("first pending = %+v", pending[0])
	}

	if err := db.MarkOutboxSending(ctx, pending[0].ID); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxSent(ctx, pending[0].ID, "wamid.x", "msg-1"); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkOutboxSending(ctx, pending[1].ID); err != nil {
		t.Fatal(err)
	}

	// A crash mid-send leaves a row in 'sending'.
	n, err := db.RequeueSending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("requeued %d, want 1", n)
	}
	if err := db.MarkOutboxFailed(ctx, pending[1].ID, "bad number", ""); err != nil {
		t.Fatal(err)
	}

	entries, err := db.ListBroadcast(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if entries[0].Status != OutboxSent || entries[0].ProviderMessageID != "wamid.x" {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[1].Status != OutboxFailed || entries[1].ErrorMessage != "bad number" {
		t.Errorf("entry 1 = %+v", entries[1])
	}

	sums, err := db.ListBroadcasts(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(sums) != 1 {
		t.Fatalf("got %d broadcasts, want 1", len(sums))
	}
	if s := sums[0]; s.ID != id || s.Total != 2 || s.Sent != 1 || s.Failed != 1 || s.Pending != 0 || s.Status() != "completed" {
		t.Errorf("summary = %+v (%s)", s, s.Status())
	}

	if _, err := db.QueueOutbox(ctx, "u", "t", "en_US", nil); err == nil {
		t.Error("QueueOutbox() with no recipients should fail")
	}
}

func TestClosedDBIsUnavailable(t *testing.T) {
	db := testDB(t)
	_ = db.Close()

	_, err := db.RecordIncoming(context.Background(), incoming("a", "w", "x"), "")
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("error = %v, want ErrStorageUnavailable", err)
	}
	_, err = db.ApplyStatusUpdate(context.Background(), "w", status.Read)
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("error = %v, want ErrStorageUnavailable", err)
	}
}

func TestInsertRollsBackWhenConversationFails(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, `
		CREATE TRIGGER reject_conversation BEFORE INSERT ON conversations
		BEGIN SELECT RAISE(ABORT, 'rejected'); END`); err != nil {
		t.Fatal(err)
	}

	_, err := db.RecordIncoming(ctx, incoming("15551234", "wamid.in", "hi"), "pn-1")
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("RecordIncoming() error = %v, want ErrStorageUnavailable", err)
	}
	n, err := db.MessageCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("MessageCount = %d, want 0 after failed conversation write", n)
	}
	if m, _ := db.FindByProviderID(ctx, "wamid.in"); m != nil {
		t.Errorf("message %s left behind", m.ID)
	}
}

func TestConcurrentStatusUpdatesAndInserts(t *testing.T) {
	db := testDB(t)
	db.now = time.Now
	ctx := context.Background()

	const n = 200
	for i := range n {
		if _, err := db.RecordOutgoing(ctx, Outgoing{
			ConversationID:    "15551234",
			SenderID:          "user-1",
			Text:              "hello",
			ProviderMessageID: fmt.Sprintf("wamid.out%d", i),
		}); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for i := range n {
		wg.Add(2)
		go func() {
			defer wg.Done()
			m, err := db.ApplyStatusUpdate(ctx, fmt.Sprintf("wamid.out%d", i), status.Read)
			if err == nil && m == nil {
				err = fmt.Errorf("wamid.out%d not matched", i)
			}
			if err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := db.RecordIncoming(ctx, incoming(fmt.Sprintf("1555%04d", i), fmt.Sprintf("wamid.in%d", i), "hi"), "pn-1"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	for i := range n {
		m, err := db.FindByProviderID(ctx, fmt.Sprintf("wamid.out%d", i))
		if err != nil {
			t.Fatal(err)
		}
		if m.Status != status.Read {
			t.Fatalf("wamid.out%d status = %s, want read", i, m.Status)
		}
	}
	count, err := db.MessageCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2*n {
		t.Errorf("MessageCount = %d, want %d", count, 2*n)
	}
}
