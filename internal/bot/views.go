package bot

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"planbot/internal/session"
	"planbot/internal/store"
	"planbot/internal/transport"
)

const (
	suggestionsPerPage = 3
	postsPerPage       = 5
)

func mainMenuKeyboard(isAdmin bool) [][]transport.Button {
	if isAdmin {
		return [][]transport.Button{
			{{Text: "📅 Запланировать пост", Data: dataSchedule()}},
			{{Text: "📋 Все запланированные посты", Data: dataPosts(1)}},
			{{Text: "👥 Управление администраторами", Data: dataAdmins()}},
			{{Text: "📨 Предложения от пользователей", Data: dataSuggestions(1)}},
			{{Text: "❓ Помощь", Data: dataHelp()}},
		}
	}
	return [][]transport.Button{
		{{Text: "📝 Предложить пост", Data: dataSuggest()}},
		{{Text: "❓ Помощь", Data: dataHelp()}},
	}
}

func welcomeText() string {
	return "👋 Привет! Я бот для планирования публикаций.\n\n" +
		"📢 **Для администраторов:**\n" +
		"• Вы можете напрямую планировать посты\n" +
		"• Управлять другими администраторами\n" +
		"• Просматривать и одобрять предложения\n\n" +
		"👤 **Для обычных пользователей:**\n" +
		"• Вы можете предлагать посты для публикации\n" +
		"• После одобрения администратора пост будет запланирован\n\n" +
		"Выберите действие:"
}

func helpText(isAdmin bool) string {
	if isAdmin {
		return "❓ Справка для администраторов:\n\n" +
			"📅 **Запланировать пост** - создать новую публикацию\n" +
			"📋 **Все запланированные посты** - просмотр всех постов\n" +
			"👥 **Управление администраторами** - добавить/удалить админов\n" +
			"📨 **Предложения от пользователей** - просмотр и одобрение предложений\n\n" +
			"Команды:\n" +
			"/start - Главное меню\n" +
			"/cancel - Отмена текущего действия\n" +
			"/add_admin <id> - добавить администратора\n" +
			"/remove_admin <id> - удалить администратора\n" +
			"/list_admins - список администраторов\n" +
			"/id - узнать свой ID"
	}
	return "❓ Справка для пользователей:\n\n" +
		"📝 **Предложить пост** - отправить пост на рассмотрение администраторам\n\n" +
		"После отправки поста вы сможете выбрать даты и время публикации.\n" +
		"Администраторы рассмотрят ваше предложение и, если одобрят, запланируют пост.\n\n" +
		"Команды:\n" +
		"/start - Главное меню\n" +
		"/cancel - Отмена текущего действия\n" +
		"/id - узнать свой ID"
}

func schedulePromptText() string {
	return "📝 Отправьте мне репост сообщения, которое хотите запланировать.\n" +
		"Просто перешлите любое сообщение из канала в этот чат.\n\n" +
		"✅ Поддерживаются медиа-группы (несколько фото/видео)\n" +
		"✅ Сообщение будет опубликовано как репост с сохранением авторства.\n" +
		"❌ Если отправить просто текст, он будет опубликован от имени бота.\n\n" +
		"Для отмены используйте /cancel"
}

func suggestPromptText() string {
	return "📝 Отправьте мне репост сообщения, которое хотите предложить для публикации.\n" +
		"Просто перешлите любое сообщение из канала в этот чат.\n\n" +
		"✅ Поддерживаются медиа-группы (несколько фото/видео)\n" +
		"✅ После выбора дат и времени, ваше предложение будет отправлено администраторам на рассмотрение.\n\n" +
		"Для отмены используйте /cancel"
}

func mediaLabel(isGroup bool) string {
	if isGroup {
		return "📸 Медиа-группа"
	}
	return "📝 Сообщение"
}

func dateSelectionText(s *session.Session) string {
	selectedText := ""
	if len(s.Dates) > 0 {
		selectedText = fmt.Sprintf("\nВыбрано дат: %d", len(s.Dates))
	}
	return fmt.Sprintf("%s получено!\n📅 Выберите даты для публикации:%s\n"+
		"Можно выбрать несколько дат. Нажмите 'Завершить выбор' когда закончите.",
		mediaLabel(s.IsMediaGroup), selectedText)
}

func countSelectionText(s *session.Session) string {
	dates := append([]string(nil), s.Dates...)
	sort.Strings(dates)
	return fmt.Sprintf("📊 Выбрано дат: %d (%s)\n\n"+
		"Теперь выберите количество публикаций в день (максимум %d):",
		len(s.Dates), strings.Join(dates, ", "), session.MaxPostCount)
}

func timeSelectionText(s *session.Session) string {
	picked := "пока нет"
	if len(s.Times) > 0 {
		times := append([]string(nil), s.Times...)
		sort.Strings(times)
		picked = strings.Join(times, ", ")
	}
	return fmt.Sprintf("⏰ Выберите время для публикации %d из %d\n"+
		"Уже выбрано: %s\n"+
		"Доступное время: с 7:00 до 22:00",
		len(s.Times)+1, s.PostCount, picked)
}

func bulletList(items []string) string {
	sorted := append([]string(nil), items...)
	sort.Strings(sorted)
	var b strings.Builder
	for i, it := range sorted {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("• ")
		b.WriteString(it)
	}
	return b.String()
}

func scheduledConfirmationText(s *session.Session, count int) string {
	source := s.Source
	if len(source) > 50 {
		source = source[:50]
	}
	return fmt.Sprintf("✅ Пост успешно запланирован!\n\n"+
		"📝 Тип: %s\n"+
		"📌 Источник: %s\n"+
		"📅 Даты публикации:\n%s\n"+
		"⏰ Время публикаций:\n%s\n"+
		"📊 Всего публикаций: %d\n\n"+
		"🔁 Все публикации будут сделаны как репосты с сохранением авторства.",
		mediaLabel(s.IsMediaGroup), source, bulletList(s.Dates), bulletList(s.Times), count)
}

func suggestionSentText(s *session.Session) string {
	return fmt.Sprintf("✅ Ваше предложение (%s) отправлено администраторам!\n\n"+
		"📌 Источник: %s\n"+
		"📅 Выбранные даты:\n%s\n"+
		"⏰ Выбранное время:\n%s\n"+
		"📊 Постов в день: %d\n\n"+
		"⏳ Ожидайте решения администраторов. Вы получите уведомление, когда ваш пост одобрят или отклонят.",
		mediaLabel(s.IsMediaGroup), s.Source, bulletList(s.Dates), bulletList(s.Times), s.PostCount)
}

func suggestionNoticeText(s *session.Session) string {
	return fmt.Sprintf("📨 Новое предложение (%s) от пользователя %s!\n"+
		"📅 Дат: %d, ⏰ Время: %d вариантов\n"+
		"Используйте /start для просмотра предложений.",
		mediaLabel(s.IsMediaGroup), s.UserInfo, len(s.Dates), len(s.Times))
}

func backToMenuKeyboard() [][]transport.Button {
	return [][]transport.Button{{{Text: "🔙 Назад", Data: dataMenu()}}}
}

func adminManagementKeyboard() [][]transport.Button {
	return [][]transport.Button{
		{{Text: "➕ Добавить администратора", Data: dataAdminAdd()}},
		{{Text: "➖ Удалить администратора", Data: dataAdminRemoveList()}},
		{{Text: "📋 Список администраторов", Data: dataAdminList()}},
		{{Text: "🔙 Назад", Data: dataMenu()}},
	}
}

func adminListText(admins []int64) string {
	var b strings.Builder
	b.WriteString("👥 Список администраторов:\n\n")
	for _, id := range admins {
		fmt.Fprintf(&b, "• %d\n", id)
	}
	fmt.Fprintf(&b, "\nВсего: %d", len(admins))
	return b.String()
}

func adminRemoveView(admins []int64, selfID int64) (string, [][]transport.Button) {
	var b strings.Builder
	var rows [][]transport.Button
	b.WriteString("👥 Выберите администратора для удаления:\n\n")
	for _, id := range admins {
		if id == selfID {
			continue
		}
		fmt.Fprintf(&b, "• ID: %d\n", id)
		rows = append(rows, []transport.Button{
			{Text: fmt.Sprintf("❌ Удалить %d", id), Data: dataAdminDelete(id)},
		})
	}
	text := b.String()
	if len(rows) == 0 {
		text = "👥 Нет других администраторов для удаления."
	}
	rows = append(rows, []transport.Button{{Text: "🔙 Назад", Data: dataAdmins()}})
	return text, rows
}

// clampPage maps any requested page into [1, totalPages].
func clampPage(page, total, perPage int) (clamped, totalPages int) {
	totalPages = (total + perPage - 1) / perPage
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}
	return page, totalPages
}

func navRow(page, totalPages int, pageData func(int) string) []transport.Button {
	var row []transport.Button
	if page > 1 {
		row = append(row, transport.Button{Text: "◀️", Data: pageData(page - 1)})
	}
	row = append(row, transport.Button{Text: fmt.Sprintf("%d/%d", page, totalPages), Data: dataNoop()})
	if page < totalPages {
		row = append(row, transport.Button{Text: "▶️", Data: pageData(page + 1)})
	}
	return row
}

func suggestionsView(suggestions []store.Suggestion, page int) (string, [][]transport.Button) {
	if len(suggestions) == 0 {
		return "📨 Нет новых предложений от пользователей.", backToMenuKeyboard()
	}

	page, totalPages := clampPage(page, len(suggestions), suggestionsPerPage)
	start := (page - 1) * suggestionsPerPage
	end := start + suggestionsPerPage
	if end > len(suggestions) {
		end = len(suggestions)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📨 Предложения от пользователей (страница %d/%d):\n\n", page, totalPages)

	var rows [][]transport.Button
	for i := start; i < end; i++ {
		sg := suggestions[i]
		media := "📝 Одиночное сообщение"
		if sg.IsMediaGroup {
			media = "📸 Медиа-группа"
		}
		fmt.Fprintf(&b, "📝 От: %s\n", sg.UserInfo)
		fmt.Fprintf(&b, "🆔 ID: %s...\n", shortID(sg.ID, 8))
		fmt.Fprintf(&b, "📅 Даты: %s\n", strings.Join(sg.Dates, ", "))
		fmt.Fprintf(&b, "⏰ Время: %s\n", strings.Join(sg.Times, ", "))
		fmt.Fprintf(&b, "📊 Постов в день: %d\n", sg.PostCount)
		fmt.Fprintf(&b, "📌 %s\n", media)
		fmt.Fprintf(&b, "📅 Создано: %s\n\n", sg.CreatedAt.Format("02.01.2006 15:04"))

		rows = append(rows, []transport.Button{
			{Text: fmt.Sprintf("✅ Одобрить %d", i+1), Data: dataApprove(sg.ID)},
			{Text: fmt.Sprintf("❌ Отклонить %d", i+1), Data: dataReject(sg.ID)},
		})
	}
	rows = append(rows, navRow(page, totalPages, dataSuggestions))
	rows = append(rows, []transport.Button{{Text: "🔙 Назад", Data: dataMenu()}})
	return b.String(), rows
}

func postsView(posts []store.ScheduledPost, page int) (string, [][]transport.Button) {
	if len(posts) == 0 {
		return "Нет запланированных постов.", backToMenuKeyboard()
	}

	page, totalPages := clampPage(page, len(posts), postsPerPage)
	start := (page - 1) * postsPerPage
	end := start + postsPerPage
	if end > len(posts) {
		end = len(posts)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📋 Все запланированные посты (страница %d/%d):\n\n", page, totalPages)

	var rows [][]transport.Button
	for i := start; i < end; i++ {
		p := posts[i]
		date := "?"
		if p.Date != nil {
			date = p.Date.Format("02.01.2006")
		}
		suggester := "Админ"
		if p.SuggesterID != 0 {
			suggester = fmt.Sprintf("Предложил: %d", p.SuggesterID)
		}
		media := "📝 Текст"
		if p.IsMediaGroup {
			media = "📸 Медиа-группа"
		}
		source := p.Source
		if len(source) > 30 {
			source = source[:30]
		}
		fmt.Fprintf(&b, "%d. 📅 %s ⏰ %s\n", i+1, date, p.Time)
		fmt.Fprintf(&b, "   📌 %s\n", media)
		fmt.Fprintf(&b, "   📌 %s\n", source)
		fmt.Fprintf(&b, "   👤 %s\n", suggester)
		fmt.Fprintf(&b, "   🆔 %s...\n\n", shortID(p.ID, 6))

		rows = append(rows, []transport.Button{
			{Text: fmt.Sprintf("❌ Удалить пост %d", i+1), Data: dataDeletePost(p.ID)},
		})
	}
	rows = append(rows, navRow(page, totalPages, dataPosts))
	rows = append(rows, []transport.Button{{Text: "🔙 Назад", Data: dataMenu()}})
	return b.String(), rows
}

func statusText(pendingTimers, suggestions, liveSessions, bufferedGroups int, startedAt time.Time) string {
	return fmt.Sprintf("📊 Статус бота:\n\n"+
		"⏰ Ожидающих публикаций: %d\n"+
		"📨 Предложений на рассмотрении: %d\n"+
		"💬 Активных сессий: %d\n"+
		"📸 Собираемых медиа-групп: %d\n"+
		"🕒 Запущен: %s",
		pendingTimers, suggestions, liveSessions, bufferedGroups,
		startedAt.Format("02.01.2006 15:04:05"))
}

func shortID(id string, n int) string {
	if len(id) <= n {
		return id
	}
	return id[:n]
}
