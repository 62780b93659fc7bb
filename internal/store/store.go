// Package store is the durable state of the bot: admin ids, pending
// suggestions and scheduled posts. Everything lives in one JSON document
// that is reloaded at start and rewritten as a whole after every mutation.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"planbot/pkg/logx"
)

type snapshot struct {
	Admins    []int64                  `json:"admins"`
	Suggested map[string]Suggestion    `json:"suggestions"`
	Scheduled map[string]ScheduledPost `json:"scheduled_messages"`
}

// Store guards all persisted state behind one mutex: interactive handlers
// and fired jobs both mutate it, and every mutation ends in a full-snapshot
// write. A failed write is logged and the in-memory state stays
// authoritative.
type Store struct {
	mu   sync.Mutex
	path string
	log  logx.Logger

	admins      map[int64]struct{}
	suggestions map[string]Suggestion
	posts       map[string]ScheduledPost
}

// Open loads the snapshot at path, seeding the admin set with seedAdmin on
// first run or when the file is unreadable.
func Open(path string, seedAdmin int64, log logx.Logger) *Store {
	s := &Store{
		path:        path,
		log:         log,
		admins:      map[int64]struct{}{},
		suggestions: map[string]Suggestion{},
		posts:       map[string]ScheduledPost{},
	}
	s.load(seedAdmin)
	return s
}

func (s *Store) load(seedAdmin int64) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Error("data file unreadable; starting fresh", logx.Err(err), logx.String("path", s.path))
		}
		s.admins[seedAdmin] = struct{}{}
		return
	}
	// Entries decode one by one so a single damaged record is dropped with
	// a warning instead of discarding the whole file.
	var snap struct {
		Admins    []int64                    `json:"admins"`
		Suggested map[string]json.RawMessage `json:"suggestions"`
		Scheduled map[string]json.RawMessage `json:"scheduled_messages"`
	}
	if err := json.Unmarshal(b, &snap); err != nil {
		s.log.Error("data file corrupt; starting fresh", logx.Err(err), logx.String("path", s.path))
		s.admins[seedAdmin] = struct{}{}
		return
	}
	for _, id := range snap.Admins {
		s.admins[id] = struct{}{}
	}
	if len(s.admins) == 0 {
		s.admins[seedAdmin] = struct{}{}
	}
	for id, raw := range snap.Suggested {
		var sg Suggestion
		if err := json.Unmarshal(raw, &sg); err != nil {
			s.log.Warn("suggestion entry unreadable; dropped", logx.String("suggestion_id", id), logx.Err(err))
			continue
		}
		s.suggestions[id] = sg
	}
	for id, raw := range snap.Scheduled {
		var p ScheduledPost
		if err := json.Unmarshal(raw, &p); err != nil {
			s.log.Warn("scheduled entry unreadable; dropped", logx.String("post_id", id), logx.Err(err))
			continue
		}
		if p.At == nil {
			s.log.Warn("scheduled post has unparseable datetime", logx.String("post_id", id))
		}
		s.posts[id] = p
	}
	s.log.Info("data loaded",
		logx.Int("admins", len(s.admins)),
		logx.Int("suggestions", len(s.suggestions)),
		logx.Int("scheduled", len(s.posts)))
}

// persistLocked writes the full snapshot atomically (tmp file + rename).
// Callers hold s.mu.
func (s *Store) persistLocked() {
	snap := snapshot{
		Admins:    make([]int64, 0, len(s.admins)),
		Suggested: s.suggestions,
		Scheduled: s.posts,
	}
	for id := range s.admins {
		snap.Admins = append(snap.Admins, id)
	}
	sort.Slice(snap.Admins, func(i, j int) bool { return snap.Admins[i] < snap.Admins[j] })

	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		s.log.Error("snapshot marshal failed", logx.Err(err))
		return
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.log.Error("snapshot dir failed", logx.Err(err))
			return
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		s.log.Error("snapshot write failed", logx.Err(err), logx.String("path", tmp))
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.log.Error("snapshot rename failed", logx.Err(err), logx.String("path", s.path))
	}
}

// ---- admins ----

func (s *Store) IsAdmin(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.admins[id]
	return ok
}

func (s *Store) AddAdmin(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins[id] = struct{}{}
	s.persistLocked()
}

// RemoveAdmin deletes id from the admin set. Returns false when id was not
// an admin. Self-removal is rejected at the command layer, not here.
func (s *Store) RemoveAdmin(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.admins[id]; !ok {
		return false
	}
	delete(s.admins, id)
	s.persistLocked()
	return true
}

func (s *Store) Admins() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, 0, len(s.admins))
	for id := range s.admins {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ---- suggestions ----

func (s *Store) PutSuggestion(sg Suggestion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sg.Forwarded == nil {
		sg.Forwarded = []ForwardedMessage{}
	}
	s.suggestions[sg.ID] = sg
	s.persistLocked()
}

func (s *Store) Suggestion(id string) (Suggestion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sg, ok := s.suggestions[id]
	return sg, ok
}

func (s *Store) DeleteSuggestion(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.suggestions[id]; !ok {
		return false
	}
	delete(s.suggestions, id)
	s.persistLocked()
	return true
}

// SuggestionsRecentFirst returns all pending suggestions, newest first.
func (s *Store) SuggestionsRecentFirst() []Suggestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Suggestion, 0, len(s.suggestions))
	for _, sg := range s.suggestions {
		out = append(out, sg)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ---- scheduled posts ----

func (s *Store) PutPost(p ScheduledPost) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Forwarded == nil {
		p.Forwarded = []ForwardedMessage{}
	}
	s.posts[p.ID] = p
	s.persistLocked()
}

// PutPosts stores a batch under one snapshot write.
func (s *Store) PutPosts(posts []ScheduledPost) {
	if len(posts) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range posts {
		if p.Forwarded == nil {
			p.Forwarded = []ForwardedMessage{}
		}
		s.posts[p.ID] = p
	}
	s.persistLocked()
}

func (s *Store) Post(id string) (ScheduledPost, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	return p, ok
}

func (s *Store) DeletePost(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return false
	}
	delete(s.posts, id)
	s.persistLocked()
	return true
}

// Posts returns all scheduled posts ordered by fire time (posts with a
// broken datetime sort last), then by creation time.
func (s *Store) Posts() []ScheduledPost {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduledPost, 0, len(s.posts))
	for _, p := range s.posts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.At != nil && b.At != nil && !a.At.Equal(*b.At):
			return a.At.Before(*b.At)
		case a.At == nil && b.At != nil:
			return false
		case a.At != nil && b.At == nil:
			return true
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}
