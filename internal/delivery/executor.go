// Package delivery executes a scheduled post when its timer fires: forwards
// every stored item to the destination channel, retries transient network
// failures, and notifies the requester on success.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"planbot/internal/history"
	"planbot/internal/store"
	"planbot/internal/transport"
	"planbot/pkg/logx"
)

// Sender is the outbound slice of the platform adapter the executor needs.
type Sender interface {
	Forward(ctx context.Context, to transport.ChatTarget, from transport.MessageRef) (transport.MessageRef, error)
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
}

type Config struct {
	RetryMax       int
	RetryBase      time.Duration
	AttemptTimeout time.Duration
	ItemsPerSec    int
}

type Executor struct {
	sender  Sender
	hist    history.Store
	log     logx.Logger
	loc     *time.Location
	cfg     Config
	limiter *rate.Limiter
	now     func() time.Time
}

func New(sender Sender, hist history.Store, loc *time.Location, cfg Config, log logx.Logger) *Executor {
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 5 * time.Second
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 30 * time.Second
	}
	if cfg.ItemsPerSec <= 0 {
		cfg.ItemsPerSec = 1
	}
	if loc == nil {
		loc = time.Local
	}
	return &Executor{
		sender:  sender,
		hist:    hist,
		log:     log,
		loc:     loc,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.ItemsPerSec), 1),
		now:     time.Now,
	}
}

// Deliver fires one scheduled post. The post is assumed already removed from
// the store by the caller, so a crash mid-delivery never replays it.
func (e *Executor) Deliver(ctx context.Context, post store.ScheduledPost) {
	log := e.log.With(
		logx.String("post_id", post.ID),
		logx.Int64("chat_id", post.ChatID),
		logx.Int("items", len(post.Forwarded)))

	entry := history.Entry{
		PostID:  post.ID,
		ChatID:  post.ChatID,
		OwnerID: post.OwnerID,
		Items:   len(post.Forwarded),
		FiredAt: e.now(),
	}

	// Day guard: a timer that fires on the wrong calendar day (clock jump,
	// long suspend) must not publish.
	if post.Date != nil {
		today := e.now().In(e.loc)
		if post.Date.Day() != today.Day() || post.Date.Month() != today.Month() || post.Date.Year() != today.Year() {
			log.Warn("post fired on the wrong day; skipping",
				logx.Time("planned", *post.Date),
				logx.Time("today", today))
			entry.Skipped = true
			e.record(entry)
			return
		}
	}

	to := transport.ChatTarget{ChatID: post.ChatID}
	sent := 0
	var lastErr error
	for i, fm := range post.Forwarded {
		if i > 0 {
			if err := e.limiter.Wait(ctx); err != nil {
				lastErr = err
				break
			}
		}
		ref := transport.MessageRef{ChatID: fm.ChatID, MessageID: fm.MessageID}
		if err := e.forwardWithRetry(ctx, to, ref); err != nil {
			lastErr = err
			log.Error("item delivery failed",
				logx.Int("item", i),
				logx.Int("message_id", fm.MessageID),
				logx.Err(err))
			continue
		}
		sent++
	}

	entry.Sent = sent
	if lastErr != nil {
		entry.Error = lastErr.Error()
	}
	e.record(entry)

	log.Info("post delivered", logx.Int("sent", sent), logx.Int("failed", len(post.Forwarded)-sent))

	if sent > 0 {
		e.notifyOwner(ctx, post)
	}
}

// forwardWithRetry retries transient network errors with a linearly growing
// backoff (base, 2*base, ...). Non-network errors abort immediately.
func (e *Executor) forwardWithRetry(ctx context.Context, to transport.ChatTarget, from transport.MessageRef) error {
	var err error
	for attempt := 1; attempt <= e.cfg.RetryMax; attempt++ {
		actx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
		_, err = e.sender.Forward(actx, to, from)
		cancel()
		if err == nil {
			return nil
		}
		if !isNetworkErr(err) || attempt == e.cfg.RetryMax {
			return err
		}
		delay := e.cfg.RetryBase * time.Duration(attempt)
		e.log.Warn("forward attempt failed; retrying",
			logx.Int("attempt", attempt),
			logx.Duration("backoff", delay),
			logx.Err(err))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (e *Executor) notifyOwner(ctx context.Context, post store.ScheduledPost) {
	if post.OwnerID == 0 || post.At == nil {
		return
	}
	at := post.At.In(e.loc)
	text := fmt.Sprintf("✅ Ваш пост, запланированный на %s в %s, был опубликован.",
		at.Format("02.01.2006"), at.Format("15:04"))
	nctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := e.sender.SendText(nctx, transport.ChatTarget{ChatID: post.OwnerID}, text, nil); err != nil {
		// Requester may have blocked the bot; the publication stands.
		e.log.Warn("owner notification failed",
			logx.Int64("owner_id", post.OwnerID),
			logx.Err(err))
	}
}

func (e *Executor) record(entry history.Entry) {
	if e.hist == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.hist.Append(ctx, entry); err != nil {
		e.log.Warn("history append failed", logx.String("post_id", entry.PostID), logx.Err(err))
	}
}

func isNetworkErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	for _, errno := range []syscall.Errno{
		syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EPIPE,
		syscall.ETIMEDOUT, syscall.EHOSTUNREACH, syscall.ENETUNREACH,
	} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}
