// Package bot is the interactive core: it consumes platform-neutral updates,
// drives the date/count/time selection flow, and runs the admin surfaces
// (approval queue, post listing, admin management).
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"planbot/internal/mediagroup"
	"planbot/internal/planner"
	"planbot/internal/session"
	"planbot/internal/store"
	"planbot/internal/transport"
	"planbot/pkg/logx"
)

// timeline is the slice of the scheduler the status view needs.
type timeline interface {
	PendingCount() int
}

type Bot struct {
	adapter  transport.Adapter
	store    *store.Store
	sessions *session.Manager
	groups   *mediagroup.Aggregator
	planner  *planner.Planner
	sched    timeline
	log      logx.Logger
	loc      *time.Location

	now       func() time.Time
	startedAt time.Time
}

func New(adapter transport.Adapter, st *store.Store, plan *planner.Planner, sched timeline, loc *time.Location, debounce time.Duration, log logx.Logger) *Bot {
	b := &Bot{
		adapter:   adapter,
		store:     st,
		sessions:  session.NewManager(),
		planner:   plan,
		sched:     sched,
		log:       log,
		loc:       loc,
		now:       time.Now,
		startedAt: time.Now(),
	}
	b.groups = mediagroup.New(debounce, b.onMediaGroup, log)
	return b
}

// SweepMediaGroups discards abandoned media-group buffers; wired to the
// recurring sweep schedule.
func (b *Bot) SweepMediaGroups(staleAfter time.Duration) {
	if n := b.groups.SweepStale(staleAfter); n > 0 {
		b.log.Info("stale media groups swept", logx.Int("dropped", n))
	}
}

// HandleUpdate dispatches one inbound update. Anything outside a private
// chat is ignored wholesale.
func (b *Bot) HandleUpdate(ctx context.Context, u transport.Update) {
	switch u.Kind {
	case transport.UpdateMessage:
		if u.Message == nil || !u.Message.Private {
			return
		}
		b.handleMessage(ctx, u.Message)
	case transport.UpdateForward:
		if u.Forward == nil || !u.Forward.Private {
			return
		}
		b.handleForward(ctx, u.Forward)
	case transport.UpdateCallback:
		if u.Callback == nil {
			return
		}
		b.handleCallback(ctx, u.Callback)
	}
}

// ---- plain messages and commands ----

func (b *Bot) handleMessage(ctx context.Context, m *transport.Message) {
	text := strings.TrimSpace(m.Text)
	if !strings.HasPrefix(text, "/") {
		b.send(ctx, m.ChatID,
			"Я ожидаю репост сообщения для планирования.\nИспользуйте /start для начала работы.", nil)
		return
	}

	fields := strings.Fields(text)
	cmd := fields[0]
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i]
	}
	args := fields[1:]

	switch cmd {
	case "/start":
		b.sendMarkdown(ctx, m.ChatID, welcomeText(), mainMenuKeyboard(b.store.IsAdmin(m.FromID)))
	case "/cancel":
		b.sessions.End(m.FromID)
		b.send(ctx, m.ChatID, "❌ Действие отменено. Используйте /start для начала работы.", nil)
	case "/id":
		b.send(ctx, m.ChatID, fmt.Sprintf("🆔 Ваш ID: %d\n\nПередайте этот ID администратору, чтобы он добавил вас.", m.FromID), nil)
	case "/add_admin":
		b.cmdAddAdmin(ctx, m, args)
	case "/remove_admin":
		b.cmdRemoveAdmin(ctx, m, args)
	case "/list_admins":
		if !b.store.IsAdmin(m.FromID) {
			b.send(ctx, m.ChatID, "❌ У вас нет прав для этой команды.", nil)
			return
		}
		b.send(ctx, m.ChatID, adminListText(b.store.Admins()), nil)
	case "/status":
		if !b.store.IsAdmin(m.FromID) {
			b.send(ctx, m.ChatID, "❌ У вас нет прав для этой команды.", nil)
			return
		}
		b.send(ctx, m.ChatID, statusText(
			b.sched.PendingCount(),
			len(b.store.SuggestionsRecentFirst()),
			b.sessions.Len(),
			b.groups.Len(),
			b.startedAt.In(b.loc)), nil)
	default:
		b.send(ctx, m.ChatID,
			"Я ожидаю репост сообщения для планирования.\nИспользуйте /start для начала работы.", nil)
	}
}

func (b *Bot) cmdAddAdmin(ctx context.Context, m *transport.Message, args []string) {
	if !b.store.IsAdmin(m.FromID) {
		b.send(ctx, m.ChatID, "❌ У вас нет прав для этой команды.", nil)
		return
	}
	if len(args) == 0 {
		b.send(ctx, m.ChatID,
			"❌ Использование: /add_admin <id_пользователя>\n"+
				"Чтобы узнать ID пользователя, попросите его отправить /id боту", nil)
		return
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		b.send(ctx, m.ChatID, "❌ Неверный формат ID", nil)
		return
	}
	b.store.AddAdmin(id)
	b.log.Info("admin added", logx.Int64("admin_id", id), logx.Int64("by", m.FromID))
	b.send(ctx, m.ChatID, fmt.Sprintf("✅ Пользователь %d добавлен в администраторы", id), nil)
	// Best effort: the new admin may not have started the bot yet.
	b.send(ctx, id, "🎉 Вас назначили администратором бота для планирования публикаций!\nОтправьте /start чтобы начать работу.", nil)
}

func (b *Bot) cmdRemoveAdmin(ctx context.Context, m *transport.Message, args []string) {
	if !b.store.IsAdmin(m.FromID) {
		b.send(ctx, m.ChatID, "❌ У вас нет прав для этой команды.", nil)
		return
	}
	if len(args) == 0 {
		b.send(ctx, m.ChatID, "❌ Использование: /remove_admin <id_пользователя>", nil)
		return
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		b.send(ctx, m.ChatID, "❌ Неверный формат ID", nil)
		return
	}
	if id == m.FromID {
		b.send(ctx, m.ChatID, "❌ Нельзя удалить самого себя!", nil)
		return
	}
	if !b.store.RemoveAdmin(id) {
		b.send(ctx, m.ChatID, "❌ Пользователь не является администратором", nil)
		return
	}
	b.log.Info("admin removed", logx.Int64("admin_id", id), logx.Int64("by", m.FromID))
	b.send(ctx, m.ChatID, fmt.Sprintf("✅ Пользователь %d удален из администраторов", id), nil)
}

// ---- forwarded submissions ----

func (b *Bot) handleForward(ctx context.Context, f *transport.Forward) {
	item := store.ForwardedMessage{
		MessageID: f.ID,
		ChatID:    f.ChatID,
		ChatTitle: f.ChatTitle,
	}
	if !f.Date.IsZero() {
		d := f.Date
		item.Date = &d
	}
	source := f.Source
	if source == "" {
		source = "Неизвестный источник"
	}

	if f.GroupID != "" {
		b.groups.Ingest(f.GroupID, f.FromID, f.FromName, source, item)
		return
	}

	text := f.Text
	if text == "" {
		text = "Медиа-сообщение"
	}
	b.beginSelection(ctx, f.FromID, f.FromName, source, text, []store.ForwardedMessage{item}, false)
}

// onMediaGroup fires on the aggregator's timer goroutine once a burst
// settles.
func (b *Bot) onMediaGroup(g mediagroup.Group) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	text := fmt.Sprintf("Медиа-группа из %d сообщений", len(g.Items))
	b.beginSelection(ctx, g.UserID, g.UserInfo, g.Source, text, g.Items, true)
}

func (b *Bot) beginSelection(ctx context.Context, userID int64, userInfo, source, text string, items []store.ForwardedMessage, isGroup bool) {
	now := b.now().In(b.loc)
	s := &session.Session{
		UserID:       userID,
		UserInfo:     userInfo,
		Forwarded:    items,
		IsMediaGroup: isGroup,
		MessageText:  text,
		Source:       source,
		IsSuggestion: !b.store.IsAdmin(userID),
		State:        session.SelectingDates,
		Month:        int(now.Month()),
		Year:         now.Year(),
		CreatedAt:    now,
	}
	b.sessions.Begin(s)
	b.log.Info("selection started",
		logx.Int64("user_id", userID),
		logx.Bool("suggestion", s.IsSuggestion),
		logx.Int("items", len(items)))
	b.send(ctx, userID, dateSelectionText(s), calendarKeyboard(s, now))
}

// ---- callbacks ----

func (b *Bot) handleCallback(ctx context.Context, cb *transport.Callback) {
	_ = b.adapter.AnswerCallback(ctx, cb.ID, "")
	if !cb.Private {
		return
	}

	act := ParseAction(cb.Data)
	ref := transport.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
	userID := cb.FromID
	isAdmin := b.store.IsAdmin(userID)

	switch act.Kind {
	case ActionNoop, ActionUnknown:
		return

	case ActionMenu:
		b.edit(ctx, ref, "👋 Главное меню. Выберите действие:", mainMenuKeyboard(isAdmin))

	case ActionHelp:
		b.editMarkdown(ctx, ref, helpText(isAdmin), backToMenuKeyboard())

	case ActionSchedule:
		if !isAdmin {
			b.edit(ctx, ref, "❌ У вас нет прав администратора для этой операции.", nil)
			return
		}
		b.edit(ctx, ref, schedulePromptText(), nil)

	case ActionSuggest:
		b.edit(ctx, ref, suggestPromptText(), nil)

	case ActionAdmins:
		if !isAdmin {
			b.edit(ctx, ref, "❌ У вас нет прав для этой операции.", nil)
			return
		}
		b.edit(ctx, ref, "👥 Управление администраторами\n\nВыберите действие:", adminManagementKeyboard())

	case ActionAdminAdd:
		if !isAdmin {
			b.edit(ctx, ref, "❌ У вас нет прав для этой операции.", nil)
			return
		}
		b.edit(ctx, ref,
			"➕ Для добавления администратора:\n"+
				"1. Попросите пользователя отправить команду /id в боте\n"+
				"2. Отправьте команду /add_admin <id_пользователя>\n\n"+
				"Например: /add_admin 123456789", backToAdminsKeyboard())

	case ActionAdminRemoveList:
		if !isAdmin {
			b.edit(ctx, ref, "❌ У вас нет прав для этой операции.", nil)
			return
		}
		text, kb := adminRemoveView(b.store.Admins(), userID)
		b.edit(ctx, ref, text, kb)

	case ActionAdminDelete:
		if !isAdmin {
			return
		}
		if act.AdminID == userID {
			b.edit(ctx, ref, "❌ Нельзя удалить самого себя!", backToAdminsKeyboard())
			return
		}
		if b.store.RemoveAdmin(act.AdminID) {
			b.log.Info("admin removed", logx.Int64("admin_id", act.AdminID), logx.Int64("by", userID))
			b.edit(ctx, ref, fmt.Sprintf("✅ Администратор %d удален", act.AdminID), backToAdminsKeyboard())
		}

	case ActionAdminList:
		if !isAdmin {
			return
		}
		b.edit(ctx, ref, adminListText(b.store.Admins()), backToAdminsKeyboard())

	case ActionSuggestions:
		if !isAdmin {
			return
		}
		text, kb := suggestionsView(b.store.SuggestionsRecentFirst(), act.Page)
		b.edit(ctx, ref, text, kb)

	case ActionApprove:
		if !isAdmin {
			return
		}
		b.approveSuggestion(ctx, ref, userID, act.ID)

	case ActionReject:
		if !isAdmin {
			return
		}
		b.rejectSuggestion(ctx, ref, act.ID)

	case ActionPosts:
		if !isAdmin {
			b.edit(ctx, ref, "❌ У вас нет прав для просмотра этой информации.", nil)
			return
		}
		text, kb := postsView(b.store.Posts(), act.Page)
		b.edit(ctx, ref, text, kb)

	case ActionDeletePost:
		if !isAdmin {
			b.edit(ctx, ref, "❌ Только администраторы могут удалять посты.", nil)
			return
		}
		if b.planner.DeletePost(act.ID) {
			b.edit(ctx, ref, "✅ Пост успешно удален!", backToMenuKeyboard())
		}

	case ActionShowMonth:
		s, ok := b.requireSession(ctx, ref, userID)
		if !ok {
			return
		}
		s.ShowMonth(act.Month, act.Year)
		b.edit(ctx, ref, dateSelectionText(s), calendarKeyboard(s, b.now().In(b.loc)))

	case ActionToggleDate:
		s, ok := b.requireSession(ctx, ref, userID)
		if !ok {
			return
		}
		if err := s.ToggleDate(act.Day, b.now().In(b.loc)); err != nil {
			return
		}
		b.edit(ctx, ref, dateSelectionText(s), calendarKeyboard(s, b.now().In(b.loc)))

	case ActionDatesDone:
		s, ok := b.requireSession(ctx, ref, userID)
		if !ok {
			return
		}
		if err := s.FinishDates(); err != nil {
			if errors.Is(err, session.ErrNoDates) {
				b.edit(ctx, ref, "❌ Выберите хотя бы одну дату!", calendarKeyboard(s, b.now().In(b.loc)))
			}
			return
		}
		b.edit(ctx, ref, countSelectionText(s), countKeyboard())

	case ActionSetCount:
		s, ok := b.requireSession(ctx, ref, userID)
		if !ok {
			return
		}
		if err := s.SetCount(act.Count); err != nil {
			return
		}
		b.edit(ctx, ref, timeSelectionText(s), timesKeyboard(s))

	case ActionPickTime:
		s, ok := b.requireSession(ctx, ref, userID)
		if !ok {
			return
		}
		done, err := s.PickTime(act.Time)
		if err != nil {
			return
		}
		if done {
			b.finishSelection(ctx, ref, s)
			return
		}
		b.edit(ctx, ref, timeSelectionText(s), timesKeyboard(s))

	case ActionTimesDone:
		s, ok := b.requireSession(ctx, ref, userID)
		if !ok {
			return
		}
		if err := s.FinishTimes(); err != nil {
			return
		}
		b.finishSelection(ctx, ref, s)

	case ActionCancel:
		b.sessions.End(userID)
		b.edit(ctx, ref, "❌ Планирование отменено.", nil)
	}
}

func (b *Bot) approveSuggestion(ctx context.Context, ref transport.MessageRef, approverID int64, id string) {
	// Snapshot the suggestion first; Approve deletes it.
	sg, found := b.store.Suggestion(id)
	count, ok := b.planner.Approve(id, approverID)
	if !found || !ok {
		b.edit(ctx, ref, "❌ Предложение не найдено.", backToMenuKeyboard())
		return
	}

	mediaText := ""
	if sg.IsMediaGroup {
		mediaText = " (медиа-группа)"
	}
	b.send(ctx, sg.UserID, fmt.Sprintf(
		"✅ Ваше предложение поста%s одобрено администратором!\n📅 Запланировано публикаций: %d",
		mediaText, count), nil)

	b.edit(ctx, ref, fmt.Sprintf("✅ Предложение одобрено!\n📊 Запланировано публикаций: %d", count),
		[][]transport.Button{{{Text: "🔙 К предложениям", Data: dataSuggestions(1)}}})
}

func (b *Bot) rejectSuggestion(ctx context.Context, ref transport.MessageRef, id string) {
	sg, ok := b.planner.Reject(id)
	if !ok {
		b.edit(ctx, ref, "❌ Предложение не найдено.", backToMenuKeyboard())
		return
	}
	b.send(ctx, sg.UserID, "❌ Ваше предложение поста было отклонено администратором.", nil)
	b.edit(ctx, ref, "✅ Предложение отклонено",
		[][]transport.Button{{{Text: "🔙 К предложениям", Data: dataSuggestions(1)}}})
}

// finishSelection routes a completed selection: admins schedule directly,
// everyone else lands in the approval queue.
func (b *Bot) finishSelection(ctx context.Context, ref transport.MessageRef, s *session.Session) {
	defer b.sessions.End(s.UserID)

	if s.IsSuggestion {
		if _, err := b.planner.CreateSuggestion(s); err != nil {
			b.edit(ctx, ref, "❌ Произошла ошибка. Попробуйте начать заново с /start", nil)
			return
		}
		notice := suggestionNoticeText(s)
		for _, adminID := range b.store.Admins() {
			b.send(ctx, adminID, notice, nil)
		}
		b.edit(ctx, ref, suggestionSentText(s),
			[][]transport.Button{{{Text: "🔙 В главное меню", Data: dataMenu()}}})
		return
	}

	count, err := b.planner.ScheduleDirect(s)
	if err != nil {
		b.edit(ctx, ref, "❌ Произошла ошибка. Попробуйте начать заново с /start", nil)
		return
	}
	if count == 0 {
		b.edit(ctx, ref, "❌ Все выбранные даты уже прошли. Выберите будущие даты.", nil)
		return
	}
	b.edit(ctx, ref, scheduledConfirmationText(s, count),
		[][]transport.Button{{{Text: "🔙 В главное меню", Data: dataMenu()}}})
}

func (b *Bot) requireSession(ctx context.Context, ref transport.MessageRef, userID int64) (*session.Session, bool) {
	s, ok := b.sessions.Get(userID)
	if !ok {
		b.edit(ctx, ref, "❌ Сессия не найдена. Начните заново с /start", nil)
		return nil, false
	}
	return s, true
}

func backToAdminsKeyboard() [][]transport.Button {
	return [][]transport.Button{{{Text: "🔙 Назад", Data: dataAdmins()}}}
}

// ---- outbound helpers ----

func (b *Bot) send(ctx context.Context, chatID int64, text string, kb [][]transport.Button) {
	var opt *transport.SendOptions
	if kb != nil {
		opt = &transport.SendOptions{Keyboard: kb}
	}
	if _, err := b.adapter.SendText(ctx, transport.ChatTarget{ChatID: chatID}, text, opt); err != nil {
		b.log.Warn("send failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}

func (b *Bot) sendMarkdown(ctx context.Context, chatID int64, text string, kb [][]transport.Button) {
	opt := &transport.SendOptions{ParseMode: "Markdown", Keyboard: kb}
	if _, err := b.adapter.SendText(ctx, transport.ChatTarget{ChatID: chatID}, text, opt); err != nil {
		b.log.Warn("send failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}

func (b *Bot) edit(ctx context.Context, ref transport.MessageRef, text string, kb [][]transport.Button) {
	var opt *transport.SendOptions
	if kb != nil {
		opt = &transport.SendOptions{Keyboard: kb}
	}
	if err := b.adapter.EditText(ctx, ref, text, opt); err != nil {
		b.log.Warn("edit failed", logx.Int64("chat_id", ref.ChatID), logx.Err(err))
	}
}

func (b *Bot) editMarkdown(ctx context.Context, ref transport.MessageRef, text string, kb [][]transport.Button) {
	opt := &transport.SendOptions{ParseMode: "Markdown", Keyboard: kb}
	if err := b.adapter.EditText(ctx, ref, text, opt); err != nil {
		b.log.Warn("edit failed", logx.Int64("chat_id", ref.ChatID), logx.Err(err))
	}
}
