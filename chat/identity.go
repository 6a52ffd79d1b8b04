package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/onnwee/neurobot/classify"
)

// Identity is the resolved sender of an event.
type Identity struct {
	Name   string
	UserID string
	MsgID  string
	// Synthetic is set when MsgID was made up locally; such ids are not
	// stable across redelivery.
	Synthetic bool
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// ResolveIdentity picks the display name, user id and message id from the
// event's candidate fields, synthesizing what is missing.
func ResolveIdentity(ev Event, now time.Time) Identity {
	id := Identity{
		Name:   firstNonEmpty(ev.DisplayName, ev.Login, classify.UnknownSender),
		UserID: firstNonEmpty(ev.UserID, ev.Login, ev.DisplayName, classify.UnknownSender),
		MsgID:  strings.TrimSpace(ev.MsgID),
	}
	if id.MsgID == "" {
		id.MsgID = fmt.Sprintf("%d-%s", now.UnixMilli(), id.Name)
		id.Synthetic = true
	}
	return id
}
