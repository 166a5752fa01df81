package domain

import (
	"time"
)

// Link is a short code mapped to the URL it redirects to
type Link struct {
	ID          int64      `json:"-" db:"id"`
	OriginalURL string     `json:"originalUrl" db:"original_url"`
	ShortCode   string     `json:"shortId" db:"short_code"`
	Clicks      int64      `json:"clicks" db:"clicks"`
	LastClicked *time.Time `json:"lastClicked" db:"last_clicked"`
	CreatedAt   time.Time  `json:"-" db:"created_at"`
}

// CreateLinkRequest is the body of POST /api/links
type CreateLinkRequest struct {
	OriginalURL string `json:"originalUrl"`
	CustomCode  string `json:"customCode,omitempty"`
}

// LinkView is a link as returned to API clients. ShortURL is rebuilt from
// the serving host on every response and never stored.
type LinkView struct {
	OriginalURL string     `json:"originalUrl"`
	ShortURL    string     `json:"shortUrl"`
	Clicks      int64      `json:"clicks"`
	LastClicked *time.Time `json:"lastClicked"`
	ShortID     string     `json:"shortId"`
}

// NewLinkView builds the client view of link for a server reachable at
// baseURL (scheme and host, no trailing slash).
func NewLinkView(link Link, baseURL string) LinkView {
	return LinkView{
		OriginalURL: link.OriginalURL,
		ShortURL:    baseURL + "/" + link.ShortCode,
		Clicks:      link.Clicks,
		LastClicked: link.LastClicked,
		ShortID:     link.ShortCode,
	}
}

// Health is the body of GET /healthz
type Health struct {
	OK      bool   `json:"ok"`
	Version string `json:"version"`
	Error   string `json:"error,omitempty"`
}

// EventType names a change to a link
type EventType string

const (
	EventLinkCreated EventType = "link.created"
	EventLinkDeleted EventType = "link.deleted"
	EventLinkClicked EventType = "link.clicked"
)

// LinkEvent is pushed to dashboards when a link changes
type LinkEvent struct {
	Type      EventType `json:"type"`
	ShortCode string    `json:"shortId"`
	Link      *Link     `json:"link,omitempty"`
	At        time.Time `json:"at"`
}
