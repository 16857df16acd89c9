package post

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the publication state of a post.
type Status string

const (
	StatusDraft   Status = "draft"
	StatusPending Status = "pending"
	StatusPosted  Status = "posted"
	StatusFailed  Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusPosted, StatusFailed:
		return true
	default:
		return false
	}
}

// Post is a schedulable content item.
//
// Title, Content and CafeName are payload for the publish gateway and are never
// interpreted by the scheduler. ScheduledTime holds the raw schedule encoding
// (see ParseSchedule). CreatedAt is kept exactly as stored.
//
// A post decoded from JSON remembers the stored object. Encoding it again
// yields those bytes unchanged unless Status or LastPublishedAt moved, and
// then only those two keys are rewritten.
type Post struct {
	ID            string
	Title         string
	Content       string
	CafeName      string
	ScheduledTime string
	Status        Status
	CreatedAt     string

	// LastPublishedAt is set when a recurring post fires and stays pending.
	LastPublishedAt *time.Time

	raw        json.RawMessage
	baseStatus Status
	baseLast   *time.Time
}

// known JSON keys; everything else is reported by Extra.
var knownKeys = map[string]struct{}{
	"id":              {},
	"title":           {},
	"content":         {},
	"cafeName":        {},
	"scheduledTime":   {},
	"status":          {},
	"createdAt":       {},
	"lastPublishedAt": {},
}

type wirePost struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Content         string     `json:"content"`
	CafeName        string     `json:"cafeName"`
	ScheduledTime   string     `json:"scheduledTime"`
	Status          Status     `json:"status"`
	CreatedAt       string     `json:"createdAt"`
	LastPublishedAt *time.Time `json:"lastPublishedAt,omitempty"`
}

// Unreadable wraps a stored record that is not a JSON object. It is never
// pending and encodes back to b.
func Unreadable(b []byte) Post {
	return Post{raw: append(json.RawMessage(nil), b...)}
}

// UnmarshalJSON only fails when b is not a JSON object. A known key holding
// the wrong type decodes as the zero value and stays untouched in storage.
func (p *Post) UnmarshalJSON(b []byte) error {
	fields, err := objectFields(b)
	if err != nil {
		return err
	}
	var out Post
	for _, f := range fields {
		switch f.key {
		case "id":
			out.ID = scalarText(f.val)
		case "title":
			out.Title = stringValue(f.val)
		case "content":
			out.Content = stringValue(f.val)
		case "cafeName":
			out.CafeName = stringValue(f.val)
		case "scheduledTime":
			out.ScheduledTime = stringValue(f.val)
		case "status":
			out.Status = Status(stringValue(f.val))
		case "createdAt":
			out.CreatedAt = stringValue(f.val)
		case "lastPublishedAt":
			out.LastPublishedAt = stampValue(f.val)
		}
	}
	out.raw = append(json.RawMessage(nil), b...)
	out.baseStatus = out.Status
	out.baseLast = out.LastPublishedAt
	*p = out
	return nil
}

func (p Post) MarshalJSON() ([]byte, error) {
	if p.raw == nil {
		return encodeValue(wirePost{
			ID:              p.ID,
			Title:           p.Title,
			Content:         p.Content,
			CafeName:        p.CafeName,
			ScheduledTime:   p.ScheduledTime,
			Status:          p.Status,
			CreatedAt:       p.CreatedAt,
			LastPublishedAt: p.LastPublishedAt,
		})
	}

	statusMoved := p.Status != p.baseStatus
	lastMoved := !sameStamp(p.LastPublishedAt, p.baseLast)
	if !statusMoved && !lastMoved {
		return p.raw, nil
	}

	fields, err := objectFields(p.raw)
	if err != nil {
		return nil, err
	}
	if statusMoved {
		v, err := encodeValue(p.Status)
		if err != nil {
			return nil, err
		}
		fields = setField(fields, "status", v)
	}
	if lastMoved {
		if p.LastPublishedAt == nil {
			fields = dropField(fields, "lastPublishedAt")
		} else {
			v, err := encodeValue(p.LastPublishedAt.Format(time.RFC3339Nano))
			if err != nil {
				return nil, err
			}
			fields = setField(fields, "lastPublishedAt", v)
		}
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := encodeValue(f.key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(f.val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Extra returns a copy of the unmodelled JSON keys carried by the post.
func (p Post) Extra() map[string]json.RawMessage {
	fields, err := objectFields(p.raw)
	if err != nil {
		return nil
	}
	var out map[string]json.RawMessage
	for _, f := range fields {
		if _, ok := knownKeys[f.key]; ok {
			continue
		}
		if out == nil {
			out = make(map[string]json.RawMessage)
		}
		out[f.key] = append(json.RawMessage(nil), f.val...)
	}
	return out
}

// IsPending reports whether the scheduler should evaluate the post.
func (p Post) IsPending() bool { return p.Status == StatusPending }

type field struct {
	key string
	val json.RawMessage
}

// objectFields splits a JSON object into its members, in document order.
func objectFields(b []byte) ([]field, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("post record is not an object: %s", truncate(b, 32))
	}
	var out []field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return nil, err
		}
		out = append(out, field{key: key, val: val})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}

func setField(fields []field, key string, val json.RawMessage) []field {
	for i := range fields {
		if fields[i].key == key {
			fields[i].val = val
			return fields
		}
	}
	return append(fields, field{key: key, val: val})
}

func dropField(fields []field, key string) []field {
	out := fields[:0]
	for _, f := range fields {
		if f.key != key {
			out = append(out, f)
		}
	}
	return out
}

// encodeValue marshals v without HTML escaping, matching what other writers
// of the store produce.
func encodeValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func stringValue(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return s
}

// scalarText accepts ids written as strings or numbers.
func scalarText(v json.RawMessage) string {
	if s := stringValue(v); s != "" {
		return s
	}
	t := strings.TrimSpace(string(v))
	if t == "" || t == "null" || t[0] == '"' || t[0] == '{' || t[0] == '[' {
		return ""
	}
	return t
}

func stampValue(v json.RawMessage) *time.Time {
	t, err := time.Parse(time.RFC3339Nano, stringValue(v))
	if err != nil {
		return nil
	}
	return &t
}

func sameStamp(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
