package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"planbot/internal/store"
	"planbot/internal/transport"
	"planbot/pkg/logx"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

type fakeSender struct {
	mu       sync.Mutex
	forwards []transport.MessageRef
	texts    []string
	textTo   []int64

	// failures holds per-call errors for Forward; nil means success.
	failures []error
	calls    int
}

func (f *fakeSender) Forward(ctx context.Context, to transport.ChatTarget, from transport.MessageRef) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if f.calls < len(f.failures) {
		err = f.failures[f.calls]
	}
	f.calls++
	if err != nil {
		return transport.MessageRef{}, err
	}
	f.forwards = append(f.forwards, from)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: 1000 + len(f.forwards)}, nil
}

func (f *fakeSender) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	f.textTo = append(f.textTo, to.ChatID)
	return transport.MessageRef{}, nil
}

func testExecutor(sender *fakeSender) *Executor {
	return New(sender, nil, time.UTC, Config{
		RetryMax:       3,
		RetryBase:      time.Millisecond,
		AttemptTimeout: time.Second,
		ItemsPerSec:    1000,
	}, logx.Nop())
}

func testPost(items int) store.ScheduledPost {
	now := time.Now().UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	at := day.Add(9 * time.Hour)
	fwd := make([]store.ForwardedMessage, 0, items)
	for i := 0; i < items; i++ {
		fwd = append(fwd, store.ForwardedMessage{MessageID: 10 + i, ChatID: 500})
	}
	return store.ScheduledPost{
		ID:        "post-1",
		OwnerID:   7,
		Forwarded: fwd,
		Date:      &day,
		Time:      "09:00",
		At:        &at,
		ChatID:    -100500,
	}
}

func TestDeliverForwardsAllItemsAndNotifiesOwner(t *testing.T) {
	sender := &fakeSender{}
	e := testExecutor(sender)

	e.Deliver(context.Background(), testPost(3))

	if len(sender.forwards) != 3 {
		t.Fatalf("expected 3 forwards, got %d", len(sender.forwards))
	}
	for i, ref := range sender.forwards {
		if ref.MessageID != 10+i || ref.ChatID != 500 {
			t.Fatalf("forward %d wrong: %+v", i, ref)
		}
	}
	if len(sender.texts) != 1 || sender.textTo[0] != 7 {
		t.Fatalf("owner notification missing: %v to %v", sender.texts, sender.textTo)
	}
}

func TestDeliverRetriesNetworkErrors(t *testing.T) {
	sender := &fakeSender{failures: []error{timeoutErr{}, timeoutErr{}, nil}}
	e := testExecutor(sender)

	e.Deliver(context.Background(), testPost(1))

	if sender.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", sender.calls)
	}
	if len(sender.forwards) != 1 {
		t.Fatalf("item not delivered after retries")
	}
}

func TestDeliverAbortsOnNonNetworkError(t *testing.T) {
	sender := &fakeSender{failures: []error{errors.New("chat not found")}}
	e := testExecutor(sender)

	e.Deliver(context.Background(), testPost(1))

	if sender.calls != 1 {
		t.Fatalf("non-network error must not retry: %d attempts", sender.calls)
	}
	if len(sender.forwards) != 0 {
		t.Fatalf("unexpected forward")
	}
	if len(sender.texts) != 0 {
		t.Fatalf("nothing sent, owner must not be notified")
	}
}

func TestDeliverGivesUpAfterRetryMax(t *testing.T) {
	sender := &fakeSender{failures: []error{timeoutErr{}, timeoutErr{}, timeoutErr{}, timeoutErr{}}}
	e := testExecutor(sender)

	e.Deliver(context.Background(), testPost(1))

	if sender.calls != 3 {
		t.Fatalf("expected exactly RetryMax attempts, got %d", sender.calls)
	}
	if len(sender.forwards) != 0 {
		t.Fatalf("unexpected forward")
	}
}

func TestDeliverContinuesAfterFailedItem(t *testing.T) {
	// First item fails hard, second succeeds.
	sender := &fakeSender{failures: []error{errors.New("message to forward not found"), nil}}
	e := testExecutor(sender)

	e.Deliver(context.Background(), testPost(2))

	if len(sender.forwards) != 1 {
		t.Fatalf("second item not delivered: %d forwards", len(sender.forwards))
	}
}

func TestDeliverSkipsOnWrongDay(t *testing.T) {
	sender := &fakeSender{}
	e := testExecutor(sender)

	post := testPost(2)
	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	day := time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(), 0, 0, 0, 0, time.UTC)
	post.Date = &day

	e.Deliver(context.Background(), post)

	if sender.calls != 0 {
		t.Fatalf("wrong-day post must not forward anything: %d calls", sender.calls)
	}
	if len(sender.texts) != 0 {
		t.Fatalf("wrong-day post must not notify")
	}
}

func TestIsNetworkErr(t *testing.T) {
	if !isNetworkErr(timeoutErr{}) {
		t.Fatalf("net.Error not recognized")
	}
	if !isNetworkErr(context.DeadlineExceeded) {
		t.Fatalf("deadline not recognized")
	}
	if isNetworkErr(errors.New("bad request")) {
		t.Fatalf("plain error misclassified")
	}
	if isNetworkErr(nil) {
		t.Fatalf("nil misclassified")
	}
}
