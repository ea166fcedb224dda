package torn

import (
	"strconv"
	"strings"
	"time"
)

// TargetRecord is the last-known state of one tracked user.
//
// ID is the only mandatory field. Every other field is best-effort: a missing
// value means "unknown", never an invalid record. A record with Error set may
// still carry a previous successful snapshot of the other fields when it was
// merged with cached data.
type TargetRecord struct {
	ID                 int64  `json:"user_id"`
	Name               string `json:"name,omitempty"`
	Level              int    `json:"level,omitempty"`
	StatusState        string `json:"status_state,omitempty"`
	StatusDescription  string `json:"status_desc,omitempty"`
	StatusUntil        int64  `json:"status_until,omitempty"`
	LastActionStatus   string `json:"last_action_status,omitempty"`
	LastActionRelative string `json:"last_action_relative,omitempty"`
	Faction            string `json:"faction,omitempty"`
	OK                 bool   `json:"ok"`
	Error              string `json:"error,omitempty"`
}

// StatusChip returns a short display label for the user's status.
func (r TargetRecord) StatusChip() string {
	s := strings.ToLower(strings.TrimSpace(r.StatusState))
	switch {
	case strings.Contains(s, "okay"):
		return "Okay"
	case strings.Contains(s, "hospital"):
		return "Hospital"
	case strings.Contains(s, "federal") && strings.Contains(s, "jail"):
		return "Federal Jail"
	case strings.Contains(s, "jail"):
		return "Jail"
	case strings.Contains(s, "travel"):
		return "Traveling"
	case strings.Contains(s, "offline"):
		return "Offline"
	}
	if r.StatusState == "" {
		return "Unknown"
	}
	return r.StatusState
}

// UntilHuman formats StatusUntil as a local "2006-01-02 15:04" timestamp,
// or "" when no until time is known.
func (r TargetRecord) UntilHuman() string {
	if r.StatusUntil <= 0 {
		return ""
	}
	return time.Unix(r.StatusUntil, 0).Local().Format("2006-01-02 15:04")
}

// ProfileURL returns the user's profile page URL.
func (r TargetRecord) ProfileURL() string {
	return "https://www.torn.com/profiles.php?XID=" + strconv.FormatInt(r.ID, 10)
}

// Matches reports whether the record matches a free-text filter against the
// user id or name. An empty filter matches everything.
func (r TargetRecord) Matches(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return true
	}
	return strings.Contains(strconv.FormatInt(r.ID, 10), t) ||
		strings.Contains(strings.ToLower(r.Name), t)
}
