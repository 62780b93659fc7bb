package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"planbot/pkg/logx"
)

func TestOpenFreshSeedsAdmin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	s := Open(path, 42, logx.Nop())
	if !s.IsAdmin(42) {
		t.Fatalf("seed admin missing")
	}
	if s.IsAdmin(1) {
		t.Fatalf("unexpected admin")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	s := Open(path, 42, logx.Nop())

	s.AddAdmin(7)
	created := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	at := time.Date(2026, 9, 15, 9, 0, 0, 0, time.UTC)
	day := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)

	s.PutSuggestion(Suggestion{
		ID:        "sugg-1",
		UserID:    99,
		UserInfo:  "@tester",
		Dates:     []string{"15.09"},
		Times:     []string{"09:00"},
		PostCount: 1,
		CreatedAt: created,
	})
	s.PutPost(ScheduledPost{
		ID:        "post-1",
		OwnerID:   42,
		Forwarded: []ForwardedMessage{{MessageID: 10, ChatID: 123}},
		Date:      &day,
		Time:      "09:00",
		At:        &at,
		ChatID:    -100500,
		Source:    "Канал",
		CreatedAt: created,
	})

	re := Open(path, 1, logx.Nop())
	if !re.IsAdmin(42) || !re.IsAdmin(7) {
		t.Fatalf("admins lost on reload: %v", re.Admins())
	}
	if re.IsAdmin(1) {
		t.Fatalf("seed admin must not override a loaded set")
	}
	sg, ok := re.Suggestion("sugg-1")
	if !ok || sg.UserID != 99 || sg.Dates[0] != "15.09" {
		t.Fatalf("suggestion lost: %+v ok=%v", sg, ok)
	}
	p, ok := re.Post("post-1")
	if !ok || p.At == nil || !p.At.Equal(at) {
		t.Fatalf("post lost: %+v ok=%v", p, ok)
	}
	if p.Date == nil || p.Date.Day() != 15 {
		t.Fatalf("post date lost: %+v", p.Date)
	}
}

func TestCorruptSnapshotStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s := Open(path, 42, logx.Nop())
	if !s.IsAdmin(42) {
		t.Fatalf("seed admin missing after corrupt load")
	}
	if len(s.Posts()) != 0 {
		t.Fatalf("unexpected posts after corrupt load")
	}
}

func TestMalformedDatetimeDecodesToNil(t *testing.T) {
	raw := `{
		"id": "p1",
		"user_id": 1,
		"forwarded_messages_info": [],
		"date": "not-a-date",
		"time": "09:00",
		"datetime": "definitely broken",
		"chat_id": -1,
		"source": "x",
		"created_at": "2026-09-01T10:00:00Z"
	}`
	var p ScheduledPost
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal should tolerate bad timestamps: %v", err)
	}
	if p.At != nil || p.Date != nil {
		t.Fatalf("bad timestamps should decode to nil: at=%v date=%v", p.At, p.Date)
	}
	if p.ID != "p1" || p.Time != "09:00" {
		t.Fatalf("other fields lost: %+v", p)
	}
}

func TestMalformedCreatedAtDoesNotWipeStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	raw := `{
		"admins": [1, 2, 3],
		"suggestions": {
			"sugg-1": {
				"id": "sugg-1",
				"user_id": 99,
				"forwarded_messages_info": [{"message_id": 10, "chat_id": 500, "date": "yesterday"}],
				"selected_dates": ["15.09"],
				"selected_times": ["09:00"],
				"post_count": 1,
				"created_at": "not-a-timestamp"
			}
		},
		"scheduled_messages": {
			"post-1": {
				"id": "post-1",
				"user_id": 1,
				"forwarded_messages_info": [],
				"date": "2026-09-15",
				"time": "09:00",
				"datetime": "2026-09-15T09:00:00Z",
				"chat_id": -1,
				"created_at": "also broken"
			}
		}
	}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	s := Open(path, 77, logx.Nop())
	for _, id := range []int64{1, 2, 3} {
		if !s.IsAdmin(id) {
			t.Fatalf("admin %d lost: %v", id, s.Admins())
		}
	}
	if s.IsAdmin(77) {
		t.Fatalf("seed admin must not apply to a readable snapshot")
	}
	sg, ok := s.Suggestion("sugg-1")
	if !ok || sg.UserID != 99 {
		t.Fatalf("suggestion lost: %+v ok=%v", sg, ok)
	}
	if !sg.CreatedAt.IsZero() {
		t.Fatalf("bad created_at should decode to zero: %v", sg.CreatedAt)
	}
	if len(sg.Forwarded) != 1 || sg.Forwarded[0].Date != nil {
		t.Fatalf("bad forwarded date should decode to nil: %+v", sg.Forwarded)
	}
	p, ok := s.Post("post-1")
	if !ok || p.At == nil {
		t.Fatalf("post lost: %+v ok=%v", p, ok)
	}
}

func TestUnreadableEntryDroppedOthersKept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	raw := `{
		"admins": [1],
		"suggestions": {
			"good": {"id": "good", "user_id": 5, "post_count": 1, "created_at": "2026-09-01T10:00:00Z"},
			"bad": {"id": "bad", "post_count": "many"}
		},
		"scheduled_messages": {}
	}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	s := Open(path, 77, logx.Nop())
	if !s.IsAdmin(1) {
		t.Fatalf("admins lost: %v", s.Admins())
	}
	if _, ok := s.Suggestion("good"); !ok {
		t.Fatalf("readable suggestion dropped")
	}
	if _, ok := s.Suggestion("bad"); ok {
		t.Fatalf("unreadable suggestion kept")
	}
}

func TestMarshalAlwaysEmitsForwardedList(t *testing.T) {
	b, err := json.Marshal(ScheduledPost{ID: "p1"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"forwarded_messages_info":[]`) {
		t.Fatalf("forwarded list omitted: %s", b)
	}
}

func TestRemoveAdmin(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "data.json"), 42, logx.Nop())
	s.AddAdmin(7)
	if !s.RemoveAdmin(7) {
		t.Fatalf("remove existing admin failed")
	}
	if s.RemoveAdmin(7) {
		t.Fatalf("removing twice must fail")
	}
	if s.RemoveAdmin(12345) {
		t.Fatalf("removing unknown id must fail")
	}
}

func TestSuggestionsRecentFirst(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "data.json"), 42, logx.Nop())
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	s.PutSuggestion(Suggestion{ID: "old", CreatedAt: base})
	s.PutSuggestion(Suggestion{ID: "new", CreatedAt: base.Add(time.Hour)})
	s.PutSuggestion(Suggestion{ID: "mid", CreatedAt: base.Add(30 * time.Minute)})

	got := s.SuggestionsRecentFirst()
	want := []string{"new", "mid", "old"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: got %s, want %s (%v)", i, got[i].ID, id, got)
		}
	}
}

func TestPostsSortedByFireTime(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "data.json"), 42, logx.Nop())
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	later := base.Add(2 * time.Hour)
	sooner := base.Add(time.Hour)
	s.PutPosts([]ScheduledPost{
		{ID: "later", At: &later, CreatedAt: base},
		{ID: "broken", At: nil, CreatedAt: base},
		{ID: "sooner", At: &sooner, CreatedAt: base},
	})

	got := s.Posts()
	want := []string{"sooner", "later", "broken"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: got %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestDeletePostPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	s := Open(path, 42, logx.Nop())
	at := time.Now().Add(time.Hour)
	s.PutPost(ScheduledPost{ID: "p1", At: &at})
	if !s.DeletePost("p1") {
		t.Fatalf("delete failed")
	}
	if s.DeletePost("p1") {
		t.Fatalf("second delete must fail")
	}
	re := Open(path, 42, logx.Nop())
	if _, ok := re.Post("p1"); ok {
		t.Fatalf("deleted post came back after reload")
	}
}
