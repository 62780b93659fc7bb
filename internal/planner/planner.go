// Package planner turns completed selections into scheduled posts: it
// resolves "DD.MM" + "HH:00" pairs into concrete instants, expands the
// date×time grid, routes admin submissions straight to the timeline and
// non-admin ones into the approval queue, and re-arms timers after restart.
package planner

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"planbot/internal/session"
	"planbot/internal/store"
	"planbot/pkg/logx"
)

const jobPrefix = "post_"

// ResolveTarget combines a "DD.MM" date and an "HH:MM" slot into an instant
// in loc. The year is the current one, rolled to next year when the month is
// strictly earlier than the current month. ok is false for unparseable input
// or an instant not strictly in the future.
func ResolveTarget(dateStr, timeStr string, now time.Time, loc *time.Location) (time.Time, bool) {
	dp := strings.SplitN(strings.TrimSpace(dateStr), ".", 2)
	if len(dp) != 2 {
		return time.Time{}, false
	}
	day, err1 := strconv.Atoi(dp[0])
	month, err2 := strconv.Atoi(dp[1])
	if err1 != nil || err2 != nil || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}

	tp := strings.SplitN(strings.TrimSpace(timeStr), ":", 2)
	if len(tp) != 2 {
		return time.Time{}, false
	}
	hour, err1 := strconv.Atoi(tp[0])
	minute, err2 := strconv.Atoi(tp[1])
	if err1 != nil || err2 != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, false
	}

	now = now.In(loc)
	year := now.Year()
	if month < int(now.Month()) {
		year++
	}
	at := time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc)
	// time.Date normalizes overflow (e.g. 31.02); treat that as bad input.
	if at.Day() != day || at.Month() != time.Month(month) {
		return time.Time{}, false
	}
	if !at.After(now) {
		return at, false
	}
	return at, true
}

// Scheduler is the one-shot timer surface the planner arms jobs on.
type Scheduler interface {
	RunAt(id string, at time.Time, job func())
	Cancel(id string) bool
	Location() *time.Location
}

// Deliverer fires one post to the channel.
type Deliverer interface {
	Deliver(ctx context.Context, post store.ScheduledPost)
}

type Planner struct {
	store   *store.Store
	sched   Scheduler
	exec    Deliverer
	log     logx.Logger
	channel int64
	now     func() time.Time
}

func New(st *store.Store, sched Scheduler, exec Deliverer, channelID int64, log logx.Logger) *Planner {
	return &Planner{
		store:   st,
		sched:   sched,
		exec:    exec,
		log:     log,
		channel: channelID,
		now:     time.Now,
	}
}

// expand builds one post per still-future (date, time) pair of the completed
// selection. Pairs already in the past are silently dropped.
func (p *Planner) expand(s *session.Session, suggesterID int64) []store.ScheduledPost {
	loc := p.sched.Location()
	now := p.now().In(loc)

	var out []store.ScheduledPost
	for _, d := range s.Dates {
		for _, t := range s.Times {
			at, ok := ResolveTarget(d, t, now, loc)
			if !ok {
				continue
			}
			day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, loc)
			out = append(out, store.ScheduledPost{
				ID:           uuid.NewString(),
				OwnerID:      s.UserID,
				SuggesterID:  suggesterID,
				Forwarded:    append([]store.ForwardedMessage(nil), s.Forwarded...),
				IsMediaGroup: s.IsMediaGroup,
				Date:         &day,
				Time:         t,
				At:           &at,
				ChatID:       p.channel,
				Source:       s.Source,
				CreatedAt:    now,
			})
		}
	}
	return out
}

// ScheduleDirect persists and arms every post of a completed admin selection.
// Returns how many posts were scheduled.
func (p *Planner) ScheduleDirect(s *session.Session) (int, error) {
	if s.State != session.Completed {
		return 0, session.ErrNotCompleted
	}
	posts := p.expand(s, 0)
	p.store.PutPosts(posts)
	for _, post := range posts {
		p.arm(post)
	}
	p.log.Info("posts scheduled",
		logx.Int64("user_id", s.UserID),
		logx.Int("count", len(posts)))
	return len(posts), nil
}

// CreateSuggestion parks a completed non-admin selection in the approval
// queue and returns it.
func (p *Planner) CreateSuggestion(s *session.Session) (store.Suggestion, error) {
	if s.State != session.Completed {
		return store.Suggestion{}, session.ErrNotCompleted
	}
	sg := store.Suggestion{
		ID:           uuid.NewString(),
		UserID:       s.UserID,
		UserInfo:     s.UserInfo,
		MessageText:  s.MessageText,
		Forwarded:    append([]store.ForwardedMessage(nil), s.Forwarded...),
		IsMediaGroup: s.IsMediaGroup,
		Dates:        append([]string(nil), s.Dates...),
		Times:        append([]string(nil), s.Times...),
		PostCount:    s.PostCount,
		Source:       s.Source,
		CreatedAt:    p.now(),
	}
	p.store.PutSuggestion(sg)
	p.log.Info("suggestion created",
		logx.String("suggestion_id", sg.ID),
		logx.Int64("user_id", sg.UserID))
	return sg, nil
}

// Approve expands an approved suggestion into scheduled posts owned by the
// approver, with the suggester kept for the publication notice. The
// suggestion is removed; approving an unknown id returns found=false.
func (p *Planner) Approve(id string, approverID int64) (int, bool) {
	sg, ok := p.store.Suggestion(id)
	if !ok {
		return 0, false
	}

	s := &session.Session{
		UserID:       approverID,
		Forwarded:    sg.Forwarded,
		IsMediaGroup: sg.IsMediaGroup,
		Source:       sg.Source,
		Dates:        sg.Dates,
		Times:        sg.Times,
		PostCount:    sg.PostCount,
		State:        session.Completed,
	}
	posts := p.expand(s, sg.UserID)
	p.store.PutPosts(posts)
	p.store.DeleteSuggestion(id)
	for _, post := range posts {
		p.arm(post)
	}
	p.log.Info("suggestion approved",
		logx.String("suggestion_id", id),
		logx.Int64("approver_id", approverID),
		logx.Int("posts", len(posts)))
	return len(posts), true
}

// Reject drops a pending suggestion and returns it for the rejection notice.
func (p *Planner) Reject(id string) (store.Suggestion, bool) {
	sg, ok := p.store.Suggestion(id)
	if !ok {
		return store.Suggestion{}, false
	}
	p.store.DeleteSuggestion(id)
	p.log.Info("suggestion rejected", logx.String("suggestion_id", id))
	return sg, true
}

// DeletePost cancels the pending timer and removes the post. Deleting an
// unknown id is a no-op and returns false.
func (p *Planner) DeletePost(id string) bool {
	p.sched.Cancel(jobPrefix + id)
	if !p.store.DeletePost(id) {
		return false
	}
	p.log.Info("post cancelled", logx.String("post_id", id))
	return true
}

// RestoreAll re-arms timers for every stored post still in the future and
// returns how many were armed. Posts whose window already passed stay in the
// store untouched; they surface in listings as missed history.
func (p *Planner) RestoreAll() int {
	now := p.now().In(p.sched.Location())
	restored := 0
	for _, post := range p.store.Posts() {
		if post.At == nil || !post.At.After(now) {
			continue
		}
		p.arm(post)
		restored++
	}
	p.log.Info("schedule restored", logx.Int("restored", restored))
	return restored
}

// arm registers the one-shot job. The post stays in the store after firing
// and keeps showing up in listings until explicitly deleted; a fire after
// deletion finds nothing to do. Restart never replays a fired post because
// RestoreAll re-arms future instants only.
func (p *Planner) arm(post store.ScheduledPost) {
	if post.At == nil {
		p.log.Warn("post without a resolved datetime not armed", logx.String("post_id", post.ID))
		return
	}
	id := post.ID
	p.sched.RunAt(jobPrefix+id, *post.At, func() {
		current, ok := p.store.Post(id)
		if !ok {
			return
		}
		p.exec.Deliver(context.Background(), current)
	})
}

// JobID is the one-shot timer id armed for a post.
func JobID(postID string) string { return jobPrefix + postID }
