package mcpserver

import (
	"sort"
	"strings"

	"github.com/alexjbarnes/chat-sync/internal/models"
	"github.com/alexjbarnes/chat-sync/internal/store"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const (
	defaultMaxResults = 20
	snippetRunes      = 160
)

// SearchMatch is a single search result.
type SearchMatch struct {
	CID       string `json:"cid"`
	MessageID string `json:"message_id,omitempty"`
	MatchType string `json:"match_type"`
	Snippet   string `json:"snippet"`
	UserID    string `json:"user_id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// SearchResult is the response for chat_search.
type SearchResult struct {
	Query        string        `json:"query"`
	TotalMatches int           `json:"total_matches"`
	Results      []SearchMatch `json:"results"`
}

// folder normalizes text for caseless comparison. Composed and
// decomposed forms of the same text compare equal.
type folder struct {
	c cases.Caser
}

func newFolder() *folder {
	return &folder{c: cases.Fold()}
}

func (f *folder) fold(s string) string {
	return f.c.String(norm.NFC.String(s))
}

func snippet(s string) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= snippetRunes {
		return string(r)
	}

	return string(r[:snippetRunes]) + "…"
}

// search matches channel names first, then message text, newest
// messages first. An empty cid searches every channel.
func search(st *store.Store, query, cid string, maxResults int) (*SearchResult, error) {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	f := newFolder()
	q := f.fold(query)

	var (
		channels []models.Channel
		messages []models.Message
	)

	err := st.View(func(tx *store.Tx) error {
		err := tx.ForEach(store.BucketChannels, func(_ string, raw []byte) error {
			ch, err := store.Decode[models.Channel](raw)
			if err != nil {
				return err
			}

			if cid == "" || ch.CID == cid {
				channels = append(channels, ch)
			}

			return nil
		})
		if err != nil {
			return err
		}

		return tx.ForEach(store.BucketMessages, func(_ string, raw []byte) error {
			m, err := store.Decode[models.Message](raw)
			if err != nil {
				return err
			}

			if (cid == "" || m.CID == cid) && !m.Deleted() {
				messages = append(messages, m)
			}

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(channels, func(i, j int) bool { return channels[i].CID < channels[j].CID })
	sort.Slice(messages, func(i, j int) bool { return messages[i].CreatedAt.After(messages[j].CreatedAt) })

	matches := []SearchMatch{}

	// Phase 1: channel names.
	for _, ch := range channels {
		if len(matches) >= maxResults {
			break
		}

		if strings.Contains(f.fold(ch.Name), q) || strings.Contains(f.fold(ch.CID), q) {
			matches = append(matches, SearchMatch{
				CID:       ch.CID,
				MatchType: "channel",
				Snippet:   snippet(ch.Name),
			})
		}
	}

	// Phase 2: message text.
	for _, m := range messages {
		if len(matches) >= maxResults {
			break
		}

		if strings.Contains(f.fold(m.Text), q) {
			matches = append(matches, SearchMatch{
				CID:       m.CID,
				MessageID: m.ID,
				MatchType: "message",
				Snippet:   snippet(m.Text),
				UserID:    m.UserID,
				CreatedAt: m.CreatedAt.UTC().Format(timeLayout),
			})
		}
	}

	return &SearchResult{
		Query:        query,
		TotalMatches: len(matches),
		Results:      matches,
	}, nil
}
