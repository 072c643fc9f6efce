package model

// Event categories after name adaptation. Exact event names on the wire
// differ per job kind but every event resolves to one of these.
type EventCategory string

const (
	EventProgress EventCategory = "progress"
	EventComplete EventCategory = "complete"
	EventFailure  EventCategory = "failure"
)

// ChannelEvent is one inbound push-channel event after decoding
type ChannelEvent struct {
	Name     string                 `json:"event"`
	Category EventCategory          `json:"-"`
	Fields   map[string]interface{} `json:"data"`
}

// IdentifierFields lists every payload key the backend is known to carry a
// correlation identifier under. Naming is inconsistent across job kinds and
// across intermediate vs terminal events, so all of them are scanned.
var IdentifierFields = []string{
	"job_id", "jobId",
	"task_id", "taskId",
	"id",
	"conversion_id", "conversionId",
	"external_id", "externalId",
}

// StringField returns the named field as a non-empty string, if present
func (e *ChannelEvent) StringField(key string) (string, bool) {
	v, ok := e.Fields[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// IntField returns the named field as an int, tolerating JSON float decoding
func (e *ChannelEvent) IntField(key string) (int, bool) {
	switch v := e.Fields[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

// Identifiers returns every identifier value present on the event
func (e *ChannelEvent) Identifiers() []string {
	var ids []string
	for _, key := range IdentifierFields {
		if s, ok := e.StringField(key); ok {
			ids = append(ids, s)
		}
	}
	return ids
}
