package bot

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"planbot/internal/delivery"
	"planbot/internal/planner"
	"planbot/internal/scheduler"
	"planbot/internal/store"
	"planbot/internal/transport"
	"planbot/pkg/logx"
)

type fakeAdapter struct {
	mu    sync.Mutex
	sends []sentMessage
	edits []sentMessage
}

type sentMessage struct {
	chatID int64
	text   string
	kb     [][]transport.Button
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                               { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := sentMessage{chatID: to.ChatID, text: text}
	if opt != nil {
		m.kb = opt.Keyboard
	}
	f.sends = append(f.sends, m)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.sends)}, nil
}

func (f *fakeAdapter) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := sentMessage{chatID: ref.ChatID, text: text}
	if opt != nil {
		m.kb = opt.Keyboard
	}
	f.edits = append(f.edits, m)
	return nil
}

func (f *fakeAdapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	return nil
}

func (f *fakeAdapter) Forward(ctx context.Context, to transport.ChatTarget, from transport.MessageRef) (transport.MessageRef, error) {
	return transport.MessageRef{}, nil
}

func (f *fakeAdapter) lastEdit(t *testing.T) sentMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		t.Fatalf("no edits recorded")
	}
	return f.edits[len(f.edits)-1]
}

func (f *fakeAdapter) sentTo(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sends {
		if m.chatID == chatID {
			out = append(out, m.text)
		}
	}
	return out
}

const adminID = int64(1)

func testBot(t *testing.T) (*Bot, *fakeAdapter, *store.Store, *scheduler.Service) {
	t.Helper()
	ad := &fakeAdapter{}
	st := store.Open(filepath.Join(t.TempDir(), "data.json"), adminID, logx.Nop())
	sched := scheduler.New(time.UTC, logx.Nop())
	exec := delivery.New(ad, nil, time.UTC, delivery.Config{}, logx.Nop())
	plan := planner.New(st, sched, exec, -100500, logx.Nop())
	b := New(ad, st, plan, sched, time.UTC, 10*time.Millisecond, logx.Nop())
	return b, ad, st, sched
}

func forwardFrom(userID int64, groupID string) transport.Update {
	return transport.Update{
		Kind: transport.UpdateForward,
		Forward: &transport.Forward{
			ID:      100,
			ChatID:  userID,
			Date:    time.Now(),
			FromID:  userID,
			Private: true,
			GroupID: groupID,
			Source:  "Канал",
		},
	}
}

func callbackFrom(userID int64, data string) transport.Update {
	return transport.Update{
		Kind: transport.UpdateCallback,
		Callback: &transport.Callback{
			ID:        "cb",
			FromID:    userID,
			ChatID:    userID,
			MessageID: 1,
			Data:      data,
			Private:   true,
		},
	}
}

func messageFrom(userID int64, text string) transport.Update {
	return transport.Update{
		Kind: transport.UpdateMessage,
		Message: &transport.Message{
			ChatID:  userID,
			FromID:  userID,
			Text:    text,
			Private: true,
		},
	}
}

// nextMonth returns a month/year pair safely in the future along with a day
// in it, so tests do not depend on the wall-clock day.
func nextMonth() (month, year int) {
	now := time.Now().UTC()
	m, y := int(now.Month())+1, now.Year()
	if m > 12 {
		m, y = 1, y+1
	}
	return m, y
}

func runSelection(t *testing.T, b *Bot, userID int64) {
	t.Helper()
	ctx := context.Background()
	m, y := nextMonth()

	b.HandleUpdate(ctx, forwardFrom(userID, ""))
	if _, ok := b.sessions.Get(userID); !ok {
		t.Fatalf("session not started after forward")
	}
	b.HandleUpdate(ctx, callbackFrom(userID, fmt.Sprintf("cal:%d:%d", m, y)))
	b.HandleUpdate(ctx, callbackFrom(userID, "date:15"))
	b.HandleUpdate(ctx, callbackFrom(userID, "dates_done"))
	b.HandleUpdate(ctx, callbackFrom(userID, "count:1"))
	b.HandleUpdate(ctx, callbackFrom(userID, "time:09:00"))
}

func TestAdminSelectionSchedulesDirectly(t *testing.T) {
	b, ad, st, sched := testBot(t)

	runSelection(t, b, adminID)

	posts := st.Posts()
	if len(posts) != 1 {
		t.Fatalf("expected 1 scheduled post, got %d", len(posts))
	}
	if posts[0].ChatID != -100500 || posts[0].OwnerID != adminID {
		t.Fatalf("post wrong: %+v", posts[0])
	}
	if sched.PendingCount() != 1 {
		t.Fatalf("timer not armed")
	}
	if len(st.SuggestionsRecentFirst()) != 0 {
		t.Fatalf("admin flow must not create suggestions")
	}
	if !strings.Contains(ad.lastEdit(t).text, "успешно запланирован") {
		t.Fatalf("confirmation missing: %q", ad.lastEdit(t).text)
	}
	if _, ok := b.sessions.Get(adminID); ok {
		t.Fatalf("session not ended after completion")
	}
}

func TestNonAdminSelectionCreatesSuggestion(t *testing.T) {
	b, ad, st, sched := testBot(t)
	userID := int64(99)

	runSelection(t, b, userID)

	if len(st.Posts()) != 0 {
		t.Fatalf("non-admin flow must not schedule directly")
	}
	suggs := st.SuggestionsRecentFirst()
	if len(suggs) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(suggs))
	}
	if suggs[0].UserID != userID {
		t.Fatalf("suggestion wrong: %+v", suggs[0])
	}
	if sched.PendingCount() != 0 {
		t.Fatalf("suggestion must not arm timers")
	}
	notices := ad.sentTo(adminID)
	found := false
	for _, n := range notices {
		if strings.Contains(n, "Новое предложение") {
			found = true
		}
	}
	if !found {
		t.Fatalf("admin not notified: %v", notices)
	}
}

func TestApproveFromCallback(t *testing.T) {
	b, ad, st, sched := testBot(t)
	userID := int64(99)
	runSelection(t, b, userID)
	sg := st.SuggestionsRecentFirst()[0]

	b.HandleUpdate(context.Background(), callbackFrom(adminID, "approve:"+sg.ID))

	if len(st.SuggestionsRecentFirst()) != 0 {
		t.Fatalf("suggestion not removed after approval")
	}
	if len(st.Posts()) != 1 || sched.PendingCount() != 1 {
		t.Fatalf("approval did not schedule")
	}
	userMsgs := ad.sentTo(userID)
	found := false
	for _, m := range userMsgs {
		if strings.Contains(m, "одобрено администратором") {
			found = true
		}
	}
	if !found {
		t.Fatalf("suggester not notified: %v", userMsgs)
	}
}

func TestRejectFromCallback(t *testing.T) {
	b, ad, st, _ := testBot(t)
	userID := int64(99)
	runSelection(t, b, userID)
	sg := st.SuggestionsRecentFirst()[0]

	b.HandleUpdate(context.Background(), callbackFrom(adminID, "reject:"+sg.ID))

	if len(st.SuggestionsRecentFirst()) != 0 {
		t.Fatalf("suggestion not removed after rejection")
	}
	if len(st.Posts()) != 0 {
		t.Fatalf("rejection must not schedule")
	}
	found := false
	for _, m := range ad.sentTo(userID) {
		if strings.Contains(m, "отклонено") {
			found = true
		}
	}
	if !found {
		t.Fatalf("suggester not notified of rejection")
	}
}

func TestNonAdminCannotApprove(t *testing.T) {
	b, _, st, _ := testBot(t)
	userID := int64(99)
	runSelection(t, b, userID)
	sg := st.SuggestionsRecentFirst()[0]

	b.HandleUpdate(context.Background(), callbackFrom(userID, "approve:"+sg.ID))

	if len(st.SuggestionsRecentFirst()) != 1 {
		t.Fatalf("non-admin approval went through")
	}
}

func TestCancelCallbackEndsSession(t *testing.T) {
	b, ad, _, _ := testBot(t)
	ctx := context.Background()

	b.HandleUpdate(ctx, forwardFrom(adminID, ""))
	b.HandleUpdate(ctx, callbackFrom(adminID, "cancel"))

	if _, ok := b.sessions.Get(adminID); ok {
		t.Fatalf("session survived cancel")
	}
	if !strings.Contains(ad.lastEdit(t).text, "отменено") {
		t.Fatalf("cancel confirmation missing")
	}
}

func TestCancelCommandEndsSession(t *testing.T) {
	b, _, _, _ := testBot(t)
	ctx := context.Background()

	b.HandleUpdate(ctx, forwardFrom(adminID, ""))
	b.HandleUpdate(ctx, messageFrom(adminID, "/cancel"))

	if _, ok := b.sessions.Get(adminID); ok {
		t.Fatalf("session survived /cancel")
	}
}

func TestMediaGroupForwardIsAggregated(t *testing.T) {
	b, ad, _, _ := testBot(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		u := forwardFrom(adminID, "grp-1")
		u.Forward.ID = 100 + i
		b.HandleUpdate(ctx, u)
	}
	if _, ok := b.sessions.Get(adminID); ok {
		t.Fatalf("session must not start before debounce settles")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := b.sessions.Get(adminID); ok {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	s, ok := b.sessions.Get(adminID)
	if !ok {
		t.Fatalf("session never started from media group")
	}
	if !s.IsMediaGroup || len(s.Forwarded) != 3 {
		t.Fatalf("aggregated session wrong: media=%v items=%d", s.IsMediaGroup, len(s.Forwarded))
	}
	found := false
	for _, m := range ad.sentTo(adminID) {
		if strings.Contains(m, "Медиа-группа") {
			found = true
		}
	}
	if !found {
		t.Fatalf("date selection prompt missing")
	}
}

func TestGroupChatUpdatesIgnored(t *testing.T) {
	b, ad, _, _ := testBot(t)
	ctx := context.Background()

	u := forwardFrom(adminID, "")
	u.Forward.Private = false
	b.HandleUpdate(ctx, u)
	if _, ok := b.sessions.Get(adminID); ok {
		t.Fatalf("group-chat forward started a session")
	}

	m := messageFrom(adminID, "/start")
	m.Message.Private = false
	b.HandleUpdate(ctx, m)

	ad.mu.Lock()
	sends := len(ad.sends)
	ad.mu.Unlock()
	if sends != 0 {
		t.Fatalf("group-chat message answered")
	}
}

func TestUnauthorizedScheduleCallback(t *testing.T) {
	b, ad, _, _ := testBot(t)
	b.HandleUpdate(context.Background(), callbackFrom(99, "schedule"))
	if !strings.Contains(ad.lastEdit(t).text, "нет прав") {
		t.Fatalf("expected denial, got %q", ad.lastEdit(t).text)
	}
}

func TestDeletePostFromCallback(t *testing.T) {
	b, ad, st, sched := testBot(t)
	runSelection(t, b, adminID)
	id := st.Posts()[0].ID

	b.HandleUpdate(context.Background(), callbackFrom(adminID, "del:"+id))

	if len(st.Posts()) != 0 {
		t.Fatalf("post not deleted")
	}
	if sched.PendingCount() != 0 {
		t.Fatalf("timer not cancelled")
	}
	if !strings.Contains(ad.lastEdit(t).text, "удален") {
		t.Fatalf("deletion confirmation missing")
	}
}

func TestAdminCommands(t *testing.T) {
	b, ad, st, _ := testBot(t)
	ctx := context.Background()

	b.HandleUpdate(ctx, messageFrom(adminID, "/add_admin 555"))
	if !st.IsAdmin(555) {
		t.Fatalf("admin not added")
	}

	b.HandleUpdate(ctx, messageFrom(adminID, fmt.Sprintf("/remove_admin %d", adminID)))
	if !st.IsAdmin(adminID) {
		t.Fatalf("self-removal went through")
	}

	b.HandleUpdate(ctx, messageFrom(adminID, "/remove_admin 555"))
	if st.IsAdmin(555) {
		t.Fatalf("admin not removed")
	}

	b.HandleUpdate(ctx, messageFrom(99, "/add_admin 777"))
	if st.IsAdmin(777) {
		t.Fatalf("non-admin added an admin")
	}

	b.HandleUpdate(ctx, messageFrom(adminID, "/id"))
	found := false
	for _, m := range ad.sentTo(adminID) {
		if strings.Contains(m, "Ваш ID: 1") {
			found = true
		}
	}
	if !found {
		t.Fatalf("/id answer missing")
	}
}
