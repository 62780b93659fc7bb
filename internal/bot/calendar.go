package bot

import (
	"fmt"
	"strconv"
	"time"

	"planbot/internal/session"
	"planbot/internal/transport"
)

var monthNames = [...]string{
	"Январь", "Февраль", "Март", "Апрель", "Май", "Июнь",
	"Июль", "Август", "Сентябрь", "Октябрь", "Ноябрь", "Декабрь",
}

var weekDays = [...]string{"Пн", "Вт", "Ср", "Чт", "Пт", "Сб", "Вс"}

// calendarKeyboard renders the displayed month as a Monday-first grid. Past
// days and filler cells are dead buttons; selected days carry a check mark.
func calendarKeyboard(s *session.Session, today time.Time) [][]transport.Button {
	var rows [][]transport.Button

	prevM, prevY := s.Month-1, s.Year
	if prevM < 1 {
		prevM, prevY = 12, s.Year-1
	}
	nextM, nextY := s.Month+1, s.Year
	if nextM > 12 {
		nextM, nextY = 1, s.Year+1
	}
	rows = append(rows, []transport.Button{
		{Text: "◀️", Data: dataShowMonth(prevM, prevY)},
		{Text: fmt.Sprintf("%s %d", monthNames[s.Month-1], s.Year), Data: dataNoop()},
		{Text: "▶️", Data: dataShowMonth(nextM, nextY)},
	})

	header := make([]transport.Button, 0, 7)
	for _, wd := range weekDays {
		header = append(header, transport.Button{Text: wd, Data: dataNoop()})
	}
	rows = append(rows, header)

	selected := make(map[string]struct{}, len(s.Dates))
	for _, d := range s.Dates {
		selected[d] = struct{}{}
	}

	first := time.Date(s.Year, time.Month(s.Month), 1, 0, 0, 0, 0, today.Location())
	daysInMonth := first.AddDate(0, 1, -1).Day()
	// Weekday() is Sunday-based; shift so Monday occupies column 0.
	lead := (int(first.Weekday()) + 6) % 7
	t0 := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())

	row := make([]transport.Button, 0, 7)
	for i := 0; i < lead; i++ {
		row = append(row, transport.Button{Text: " ", Data: dataNoop()})
	}
	for day := 1; day <= daysInMonth; day++ {
		label := strconv.Itoa(day)
		date := time.Date(s.Year, time.Month(s.Month), day, 0, 0, 0, 0, today.Location())
		switch {
		case date.Before(t0):
			row = append(row, transport.Button{Text: label, Data: dataNoop()})
		default:
			if _, ok := selected[fmt.Sprintf("%02d.%02d", day, s.Month)]; ok {
				label = "✅ " + label
			}
			row = append(row, transport.Button{Text: label, Data: dataToggleDate(day)})
		}
		if len(row) == 7 {
			rows = append(rows, row)
			row = make([]transport.Button, 0, 7)
		}
	}
	if len(row) > 0 {
		for len(row) < 7 {
			row = append(row, transport.Button{Text: " ", Data: dataNoop()})
		}
		rows = append(rows, row)
	}

	control := []transport.Button{}
	if len(s.Dates) > 0 {
		control = append(control, transport.Button{Text: "✅ Завершить выбор", Data: dataDatesDone()})
	}
	control = append(control, transport.Button{Text: "❌ Отмена", Data: dataCancel()})
	rows = append(rows, control)
	return rows
}

// countKeyboard offers 1..MaxPostCount posts per day on one row.
func countKeyboard() [][]transport.Button {
	row := make([]transport.Button, 0, session.MaxPostCount)
	for i := 1; i <= session.MaxPostCount; i++ {
		row = append(row, transport.Button{Text: strconv.Itoa(i), Data: dataSetCount(i)})
	}
	return [][]transport.Button{
		row,
		{{Text: "❌ Отмена", Data: dataCancel()}},
	}
}

// timesKeyboard lays the still-offerable slots out three per row, plus an
// early-finish button once at least one slot is picked.
func timesKeyboard(s *session.Session) [][]transport.Button {
	var rows [][]transport.Button
	row := make([]transport.Button, 0, 3)
	for _, slot := range s.Offerable() {
		row = append(row, transport.Button{Text: slot, Data: dataPickTime(slot)})
		if len(row) == 3 {
			rows = append(rows, row)
			row = make([]transport.Button, 0, 3)
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	if len(s.Times) > 0 {
		rows = append(rows, []transport.Button{{Text: "✅ Завершить выбор", Data: dataTimesDone()}})
	}
	rows = append(rows, []transport.Button{{Text: "❌ Отмена", Data: dataCancel()}})
	return rows
}
