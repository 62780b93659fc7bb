// Package session holds per-requester conversation state for the
// date/count/time selection flow. A session belongs to exactly one
// requester and is only mutated by that requester's own updates; the
// manager map itself is the only shared structure.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"planbot/internal/store"
)

type State int

const (
	SelectingDates State = iota
	SelectingCount
	SelectingTimes
	Completed
)

const (
	// Posting slots are fixed hourly boundaries 07:00..22:00.
	firstHour = 7
	lastHour  = 22

	MaxPostCount = 5
)

var (
	ErrNoSession    = errors.New("no active session")
	ErrNoDates      = errors.New("no dates selected")
	ErrNoTimes      = errors.New("no times selected")
	ErrPastDate     = errors.New("date is in the past")
	ErrBadCount     = errors.New("count out of range")
	ErrBadTime      = errors.New("time not offerable")
	ErrWrongState   = errors.New("action not valid in this state")
	ErrNotCompleted = errors.New("selection not completed")
)

// AvailableTimes returns the full offerable slot list ("07:00".."22:00").
func AvailableTimes() []string {
	out := make([]string, 0, lastHour-firstHour+1)
	for h := firstHour; h <= lastHour; h++ {
		out = append(out, fmt.Sprintf("%02d:00", h))
	}
	return out
}

type Session struct {
	UserID   int64
	UserInfo string

	Forwarded    []store.ForwardedMessage
	IsMediaGroup bool
	MessageText  string
	Source       string

	// IsSuggestion snapshots the requester's non-admin status at submission
	// time; later admin-set changes do not re-route this submission.
	IsSuggestion bool

	State State

	// Displayed calendar month; navigation changes these without touching
	// the selected set.
	Month int
	Year  int

	Dates     []string // "DD.MM", toggle semantics, arrival order
	PostCount int
	Times     []string // "HH:00", pick order

	CreatedAt time.Time
}

// ToggleDate flips membership of day (in the displayed month) in the
// selected set. Past days are rejected.
func (s *Session) ToggleDate(day int, today time.Time) error {
	if s.State != SelectingDates {
		return ErrWrongState
	}
	d := time.Date(s.Year, time.Month(s.Month), day, 0, 0, 0, 0, today.Location())
	t0 := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	if d.Before(t0) {
		return ErrPastDate
	}
	ds := fmt.Sprintf("%02d.%02d", day, s.Month)
	for i, existing := range s.Dates {
		if existing == ds {
			s.Dates = append(s.Dates[:i], s.Dates[i+1:]...)
			return nil
		}
	}
	s.Dates = append(s.Dates, ds)
	return nil
}

// ShowMonth changes the displayed calendar month only.
func (s *Session) ShowMonth(month, year int) {
	if month < 1 || month > 12 {
		return
	}
	s.Month, s.Year = month, year
}

// FinishDates moves on to count selection; at least one date is required.
func (s *Session) FinishDates() error {
	if s.State != SelectingDates {
		return ErrWrongState
	}
	if len(s.Dates) == 0 {
		return ErrNoDates
	}
	s.State = SelectingCount
	return nil
}

// SetCount fixes the per-day post count (1..5) and starts time selection.
func (s *Session) SetCount(n int) error {
	if s.State != SelectingCount {
		return ErrWrongState
	}
	if n < 1 || n > MaxPostCount {
		return ErrBadCount
	}
	s.PostCount = n
	s.Times = nil
	s.State = SelectingTimes
	return nil
}

// Offerable returns the slots still available to pick.
func (s *Session) Offerable() []string {
	picked := make(map[string]struct{}, len(s.Times))
	for _, t := range s.Times {
		picked[t] = struct{}{}
	}
	var out []string
	for _, t := range AvailableTimes() {
		if _, ok := picked[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}

// requiredTimes caps the requested count at the number of slots that exist,
// so the flow can never stall waiting for an impossible pick.
func (s *Session) requiredTimes() int {
	if n := len(AvailableTimes()); s.PostCount > n {
		return n
	}
	return s.PostCount
}

// PickTime appends a slot. Done is true once enough slots are picked and
// the machine has moved to Completed.
func (s *Session) PickTime(t string) (done bool, err error) {
	if s.State != SelectingTimes {
		return false, ErrWrongState
	}
	ok := false
	for _, o := range s.Offerable() {
		if o == t {
			ok = true
			break
		}
	}
	if !ok {
		return false, ErrBadTime
	}
	s.Times = append(s.Times, t)
	if len(s.Times) >= s.requiredTimes() {
		s.State = Completed
		return true, nil
	}
	return false, nil
}

// FinishTimes completes the selection early with however many slots are
// picked; at least one is required.
func (s *Session) FinishTimes() error {
	if s.State != SelectingTimes {
		return ErrWrongState
	}
	if len(s.Times) == 0 {
		return ErrNoTimes
	}
	s.State = Completed
	return nil
}

// Manager is the arena of live sessions keyed by requester id.
type Manager struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewManager() *Manager {
	return &Manager{sessions: map[int64]*Session{}}
}

// Begin installs a fresh session for the user, silently replacing any
// abandoned one.
func (m *Manager) Begin(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.UserID] = s
}

func (m *Manager) Get(userID int64) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// End removes the user's session (completion or cancel). Unknown users are
// a no-op.
func (m *Manager) End(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
