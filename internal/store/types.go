package store

import (
	"encoding/json"
	"time"
)

// ForwardedMessage points at the requester's copy of a forwarded message.
// Deliveries re-forward exactly this (chat_id, message_id) pair.
type ForwardedMessage struct {
	MessageID int        `json:"message_id"`
	ChatID    int64      `json:"chat_id"`
	ChatTitle string     `json:"chat_title,omitempty"`
	Date      *time.Time `json:"date"`
}

type fwdJSON struct {
	MessageID int     `json:"message_id"`
	ChatID    int64   `json:"chat_id"`
	ChatTitle string  `json:"chat_title,omitempty"`
	Date      *string `json:"date"`
}

func (f ForwardedMessage) MarshalJSON() ([]byte, error) {
	out := fwdJSON{MessageID: f.MessageID, ChatID: f.ChatID, ChatTitle: f.ChatTitle}
	if f.Date != nil {
		s := f.Date.Format(time.RFC3339)
		out.Date = &s
	}
	return json.Marshal(out)
}

func (f *ForwardedMessage) UnmarshalJSON(b []byte) error {
	var in fwdJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	f.MessageID = in.MessageID
	f.ChatID = in.ChatID
	f.ChatTitle = in.ChatTitle
	f.Date = parseLoose(in.Date, time.RFC3339, "2006-01-02T15:04:05")
	return nil
}

// Suggestion is a non-admin submission awaiting review. Deleted on approve
// or reject; no history is kept.
type Suggestion struct {
	ID           string             `json:"id"`
	UserID       int64              `json:"user_id"`
	UserInfo     string             `json:"user_info"`
	MessageText  string             `json:"message_text"`
	Forwarded    []ForwardedMessage `json:"forwarded_messages_info"`
	IsMediaGroup bool               `json:"is_media_group"`
	Dates        []string           `json:"selected_dates"`
	Times        []string           `json:"selected_times"`
	PostCount    int                `json:"post_count"`
	Source       string             `json:"source"`
	CreatedAt    time.Time          `json:"created_at"`
}

type suggestionJSON struct {
	ID           string             `json:"id"`
	UserID       int64              `json:"user_id"`
	UserInfo     string             `json:"user_info"`
	MessageText  string             `json:"message_text"`
	Forwarded    []ForwardedMessage `json:"forwarded_messages_info"`
	IsMediaGroup bool               `json:"is_media_group"`
	Dates        []string           `json:"selected_dates"`
	Times        []string           `json:"selected_times"`
	PostCount    int                `json:"post_count"`
	Source       string             `json:"source"`
	CreatedAt    *string            `json:"created_at"`
}

func (sg Suggestion) MarshalJSON() ([]byte, error) {
	out := suggestionJSON{
		ID:           sg.ID,
		UserID:       sg.UserID,
		UserInfo:     sg.UserInfo,
		MessageText:  sg.MessageText,
		Forwarded:    sg.Forwarded,
		IsMediaGroup: sg.IsMediaGroup,
		Dates:        sg.Dates,
		Times:        sg.Times,
		PostCount:    sg.PostCount,
		Source:       sg.Source,
	}
	if out.Forwarded == nil {
		out.Forwarded = []ForwardedMessage{}
	}
	s := sg.CreatedAt.Format(time.RFC3339Nano)
	out.CreatedAt = &s
	return json.Marshal(out)
}

// UnmarshalJSON tolerates a malformed created_at: it decodes to the zero
// time instead of failing the whole snapshot load.
func (sg *Suggestion) UnmarshalJSON(b []byte) error {
	var in suggestionJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	sg.ID = in.ID
	sg.UserID = in.UserID
	sg.UserInfo = in.UserInfo
	sg.MessageText = in.MessageText
	sg.Forwarded = in.Forwarded
	sg.IsMediaGroup = in.IsMediaGroup
	sg.Dates = in.Dates
	sg.Times = in.Times
	sg.PostCount = in.PostCount
	sg.Source = in.Source
	sg.CreatedAt = time.Time{}
	if t := parseLoose(in.CreatedAt, time.RFC3339, "2006-01-02T15:04:05"); t != nil {
		sg.CreatedAt = *t
	}
	if sg.Forwarded == nil {
		sg.Forwarded = []ForwardedMessage{}
	}
	return nil
}

// ScheduledPost is one concrete future delivery. At is the resolved instant
// in the destination timezone; Date keeps the calendar day for the fire-time
// day guard. Both may be nil after loading a damaged snapshot.
type ScheduledPost struct {
	ID           string             `json:"id"`
	OwnerID      int64              `json:"user_id"`
	SuggesterID  int64              `json:"original_suggester,omitempty"`
	Forwarded    []ForwardedMessage `json:"forwarded_messages_info"`
	IsMediaGroup bool               `json:"is_media_group"`
	Date         *time.Time         `json:"date"`
	Time         string             `json:"time"`
	At           *time.Time         `json:"datetime"`
	ChatID       int64              `json:"chat_id"`
	Source       string             `json:"source"`
	CreatedAt    time.Time          `json:"created_at"`
}

const dateLayout = "2006-01-02"

type postJSON struct {
	ID           string             `json:"id"`
	OwnerID      int64              `json:"user_id"`
	SuggesterID  int64              `json:"original_suggester,omitempty"`
	Forwarded    []ForwardedMessage `json:"forwarded_messages_info"`
	IsMediaGroup bool               `json:"is_media_group"`
	Date         *string            `json:"date"`
	Time         string             `json:"time"`
	At           *string            `json:"datetime"`
	ChatID       int64              `json:"chat_id"`
	Source       string             `json:"source"`
	CreatedAt    *string            `json:"created_at"`
}

func (p ScheduledPost) MarshalJSON() ([]byte, error) {
	out := postJSON{
		ID:           p.ID,
		OwnerID:      p.OwnerID,
		SuggesterID:  p.SuggesterID,
		Forwarded:    p.Forwarded,
		IsMediaGroup: p.IsMediaGroup,
		Time:         p.Time,
		ChatID:       p.ChatID,
		Source:       p.Source,
	}
	created := p.CreatedAt.Format(time.RFC3339Nano)
	out.CreatedAt = &created
	if out.Forwarded == nil {
		out.Forwarded = []ForwardedMessage{}
	}
	if p.Date != nil {
		s := p.Date.Format(dateLayout)
		out.Date = &s
	}
	if p.At != nil {
		s := p.At.Format(time.RFC3339)
		out.At = &s
	}
	return json.Marshal(out)
}

// UnmarshalJSON tolerates malformed timestamp fields: they decode to nil
// instead of failing the whole snapshot load.
func (p *ScheduledPost) UnmarshalJSON(b []byte) error {
	var in postJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	p.ID = in.ID
	p.OwnerID = in.OwnerID
	p.SuggesterID = in.SuggesterID
	p.Forwarded = in.Forwarded
	p.IsMediaGroup = in.IsMediaGroup
	p.Time = in.Time
	p.ChatID = in.ChatID
	p.Source = in.Source
	p.CreatedAt = time.Time{}
	if t := parseLoose(in.CreatedAt, time.RFC3339, "2006-01-02T15:04:05"); t != nil {
		p.CreatedAt = *t
	}
	if p.Forwarded == nil {
		p.Forwarded = []ForwardedMessage{}
	}
	p.Date = parseLoose(in.Date, dateLayout, "2006-01-02T15:04:05")
	p.At = parseLoose(in.At, time.RFC3339, "2006-01-02T15:04:05")
	return nil
}

func parseLoose(s *string, layouts ...string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, *s); err == nil {
			return &t
		}
	}
	return nil
}
