package bot

import (
	"fmt"
	"strconv"
	"strings"
)

// ActionKind enumerates every inline-keyboard action the bot emits. Raw
// callback data is decoded into an Action exactly once, at the update
// boundary; handlers never touch the wire strings.
type ActionKind int

const (
	ActionUnknown ActionKind = iota
	ActionNoop
	ActionMenu
	ActionHelp
	ActionSchedule
	ActionSuggest
	ActionAdmins
	ActionAdminAdd
	ActionAdminRemoveList
	ActionAdminDelete
	ActionAdminList
	ActionSuggestions
	ActionApprove
	ActionReject
	ActionPosts
	ActionDeletePost
	ActionShowMonth
	ActionToggleDate
	ActionDatesDone
	ActionSetCount
	ActionPickTime
	ActionTimesDone
	ActionCancel
)

type Action struct {
	Kind ActionKind

	Page    int    // Suggestions, Posts
	ID      string // Approve, Reject, DeletePost
	AdminID int64  // AdminDelete
	Month   int    // ShowMonth
	Year    int    // ShowMonth
	Day     int    // ToggleDate
	Count   int    // SetCount
	Time    string // PickTime, "HH:00"
}

// ---- encoding (keyboard side) ----

func dataNoop() string            { return "noop" }
func dataMenu() string            { return "menu" }
func dataHelp() string            { return "help" }
func dataSchedule() string        { return "schedule" }
func dataSuggest() string         { return "suggest" }
func dataAdmins() string          { return "admins" }
func dataAdminAdd() string        { return "admin_add" }
func dataAdminRemoveList() string { return "admin_rm" }
func dataAdminList() string       { return "admin_list" }
func dataDatesDone() string       { return "dates_done" }
func dataTimesDone() string       { return "times_done" }
func dataCancel() string          { return "cancel" }

func dataAdminDelete(id int64) string   { return fmt.Sprintf("admin_del:%d", id) }
func dataSuggestions(page int) string   { return fmt.Sprintf("sugg:%d", page) }
func dataApprove(id string) string      { return "approve:" + id }
func dataReject(id string) string       { return "reject:" + id }
func dataPosts(page int) string         { return fmt.Sprintf("posts:%d", page) }
func dataDeletePost(id string) string   { return "del:" + id }
func dataShowMonth(m, y int) string     { return fmt.Sprintf("cal:%d:%d", m, y) }
func dataToggleDate(day int) string     { return fmt.Sprintf("date:%d", day) }
func dataSetCount(n int) string         { return fmt.Sprintf("count:%d", n) }
func dataPickTime(slot string) string   { return "time:" + slot }

// ParseAction decodes raw callback data. Unknown or malformed data yields
// ActionUnknown so handlers can ignore it in one place.
func ParseAction(data string) Action {
	data = strings.TrimSpace(data)
	switch data {
	case "noop":
		return Action{Kind: ActionNoop}
	case "menu":
		return Action{Kind: ActionMenu}
	case "help":
		return Action{Kind: ActionHelp}
	case "schedule":
		return Action{Kind: ActionSchedule}
	case "suggest":
		return Action{Kind: ActionSuggest}
	case "admins":
		return Action{Kind: ActionAdmins}
	case "admin_add":
		return Action{Kind: ActionAdminAdd}
	case "admin_rm":
		return Action{Kind: ActionAdminRemoveList}
	case "admin_list":
		return Action{Kind: ActionAdminList}
	case "dates_done":
		return Action{Kind: ActionDatesDone}
	case "times_done":
		return Action{Kind: ActionTimesDone}
	case "cancel":
		return Action{Kind: ActionCancel}
	}

	key, rest, ok := strings.Cut(data, ":")
	if !ok {
		return Action{}
	}
	switch key {
	case "admin_del":
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return Action{}
		}
		return Action{Kind: ActionAdminDelete, AdminID: id}
	case "sugg":
		page, err := strconv.Atoi(rest)
		if err != nil {
			return Action{}
		}
		return Action{Kind: ActionSuggestions, Page: page}
	case "approve":
		return Action{Kind: ActionApprove, ID: rest}
	case "reject":
		return Action{Kind: ActionReject, ID: rest}
	case "posts":
		page, err := strconv.Atoi(rest)
		if err != nil {
			return Action{}
		}
		return Action{Kind: ActionPosts, Page: page}
	case "del":
		return Action{Kind: ActionDeletePost, ID: rest}
	case "cal":
		ms, ys, ok := strings.Cut(rest, ":")
		if !ok {
			return Action{}
		}
		m, err1 := strconv.Atoi(ms)
		y, err2 := strconv.Atoi(ys)
		if err1 != nil || err2 != nil || m < 1 || m > 12 {
			return Action{}
		}
		return Action{Kind: ActionShowMonth, Month: m, Year: y}
	case "date":
		day, err := strconv.Atoi(rest)
		if err != nil || day < 1 || day > 31 {
			return Action{}
		}
		return Action{Kind: ActionToggleDate, Day: day}
	case "count":
		n, err := strconv.Atoi(rest)
		if err != nil {
			return Action{}
		}
		return Action{Kind: ActionSetCount, Count: n}
	case "time":
		return Action{Kind: ActionPickTime, Time: rest}
	}
	return Action{}
}
