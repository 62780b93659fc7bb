package bot

import "testing"

func TestParseAction(t *testing.T) {
	tests := []struct {
		data string
		want Action
	}{
		{"noop", Action{Kind: ActionNoop}},
		{"menu", Action{Kind: ActionMenu}},
		{"help", Action{Kind: ActionHelp}},
		{"schedule", Action{Kind: ActionSchedule}},
		{"suggest", Action{Kind: ActionSuggest}},
		{"admins", Action{Kind: ActionAdmins}},
		{"admin_add", Action{Kind: ActionAdminAdd}},
		{"admin_rm", Action{Kind: ActionAdminRemoveList}},
		{"admin_list", Action{Kind: ActionAdminList}},
		{"admin_del:12345", Action{Kind: ActionAdminDelete, AdminID: 12345}},
		{"sugg:2", Action{Kind: ActionSuggestions, Page: 2}},
		{"approve:abc-def", Action{Kind: ActionApprove, ID: "abc-def"}},
		{"reject:abc-def", Action{Kind: ActionReject, ID: "abc-def"}},
		{"posts:3", Action{Kind: ActionPosts, Page: 3}},
		{"del:abc-def", Action{Kind: ActionDeletePost, ID: "abc-def"}},
		{"cal:5:2026", Action{Kind: ActionShowMonth, Month: 5, Year: 2026}},
		{"date:12", Action{Kind: ActionToggleDate, Day: 12}},
		{"dates_done", Action{Kind: ActionDatesDone}},
		{"count:3", Action{Kind: ActionSetCount, Count: 3}},
		{"time:09:00", Action{Kind: ActionPickTime, Time: "09:00"}},
		{"times_done", Action{Kind: ActionTimesDone}},
		{"cancel", Action{Kind: ActionCancel}},

		// malformed input decodes to ActionUnknown
		{"", Action{}},
		{"bogus", Action{}},
		{"admin_del:notanumber", Action{}},
		{"sugg:x", Action{}},
		{"cal:13:2026", Action{}},
		{"cal:5", Action{}},
		{"date:40", Action{}},
		{"count:x", Action{}},
	}
	for _, tc := range tests {
		got := ParseAction(tc.data)
		if got != tc.want {
			t.Fatalf("ParseAction(%q) = %+v, want %+v", tc.data, got, tc.want)
		}
	}
}

func TestActionRoundTrip(t *testing.T) {
	encoded := []struct {
		data string
		kind ActionKind
	}{
		{dataNoop(), ActionNoop},
		{dataMenu(), ActionMenu},
		{dataHelp(), ActionHelp},
		{dataSchedule(), ActionSchedule},
		{dataSuggest(), ActionSuggest},
		{dataAdmins(), ActionAdmins},
		{dataAdminAdd(), ActionAdminAdd},
		{dataAdminRemoveList(), ActionAdminRemoveList},
		{dataAdminList(), ActionAdminList},
		{dataAdminDelete(9), ActionAdminDelete},
		{dataSuggestions(1), ActionSuggestions},
		{dataApprove("id"), ActionApprove},
		{dataReject("id"), ActionReject},
		{dataPosts(1), ActionPosts},
		{dataDeletePost("id"), ActionDeletePost},
		{dataShowMonth(1, 2027), ActionShowMonth},
		{dataToggleDate(5), ActionToggleDate},
		{dataDatesDone(), ActionDatesDone},
		{dataSetCount(2), ActionSetCount},
		{dataPickTime("07:00"), ActionPickTime},
		{dataTimesDone(), ActionTimesDone},
		{dataCancel(), ActionCancel},
	}
	for _, tc := range encoded {
		if got := ParseAction(tc.data).Kind; got != tc.kind {
			t.Fatalf("round trip %q: got kind %v, want %v", tc.data, got, tc.kind)
		}
	}
}
