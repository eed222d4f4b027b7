package domain

import (
	"fmt"
	"strings"
)

// ItemMessage is the queue payload describing one item to migrate
type ItemMessage struct {
	UserID        string   `json:"userId"`
	RequestID     string   `json:"requestId"`
	Source        Source   `json:"source"`
	ItemRef       string   `json:"itemRef"`
	BaseURL       string   `json:"baseUrl,omitempty"`
	CategoryHints []string `json:"categoryHints,omitempty"`
	TagHints      []string `json:"tagHints,omitempty"`
}

// ItemKey is the ledger key of the item within its request. URLs keep the
// case of their path and query; handles are case-insensitive.
func (m ItemMessage) ItemKey() string {
	ref := strings.TrimSpace(m.ItemRef)
	i := strings.Index(ref, "://")
	if i <= 0 {
		return strings.ToLower(ref)
	}
	authority := i + len("://")
	end := strings.IndexAny(ref[authority:], "/?#")
	if end < 0 {
		return strings.ToLower(ref)
	}
	return strings.ToLower(ref[:authority+end]) + ref[authority+end:]
}

// Validate checks the fields every message must carry
func (m ItemMessage) Validate() error {
	var missing []string
	if m.UserID == "" {
		missing = append(missing, "userId")
	}
	if m.RequestID == "" {
		missing = append(missing, "requestId")
	}
	if m.ItemKey() == "" {
		missing = append(missing, "itemRef")
	}
	if !m.Source.Valid() {
		missing = append(missing, "source")
	}
	if len(missing) > 0 {
		return NewProcessError(ReasonMissingFields, fmt.Errorf("message missing %s", strings.Join(missing, ", ")))
	}
	return nil
}
