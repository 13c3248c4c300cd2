package continuation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Comment is one entry of a PR conversation thread.
type Comment struct {
	ID        int64
	Author    string
	Body      string
	CreatedAt time.Time
}

// Source records where a recovered value came from.
type Source string

const (
	SourceInline Source = "inline"  // token or context carried in the decision message
	SourceToken  Source = "token"   // annotated token in a thread comment
	SourceLabel  Source = "label"   // ticket label only, token missing or unreadable
	SourceTitle  Source = "title"   // nothing recovered, PR title used as request
)

// Recovery is the outcome of scanning a thread.
type Recovery struct {
	Record    Record
	Source    Source
	CommentID int64 // analysis comment the record came from, 0 if none
	// Settled is the newest terminal outcome comment posted after the
	// analysis comment, if any. A repeated decision should not act again.
	Settled *Comment
	// Skipped counts analysis comments whose token failed to decode.
	Skipped int
}

// Options narrows which comments are trusted.
type Options struct {
	// Author, when set, restricts the scan to comments by this login.
	Author string
}

func (o Options) trusts(c Comment) bool {
	return o.Author == "" || strings.EqualFold(o.Author, c.Author)
}

// Scan walks comments newest-first. The first analysis comment with a
// decodable token wins. Analysis comments whose token is missing or corrupt
// are skipped, but the first ticket label seen is remembered so a degraded
// recovery still knows the ticket. It returns ErrNoRecord, with whatever
// label was found, when no token decodes.
func Scan(comments []Comment, opts Options) (Recovery, error) {
	ordered := make([]Comment, len(comments))
	copy(ordered, comments)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
		}
		return ordered[i].ID > ordered[j].ID
	})

	var (
		rec      Recovery
		settled  *Comment
		label    string
		labelID  int64
		analyses int
	)
	for i := range ordered {
		c := ordered[i]
		if !opts.trusts(c) {
			continue
		}
		if !IsAnalysis(c.Body) {
			if analyses == 0 && settled == nil && IsTerminal(c.Body) {
				settled = &ordered[i]
			}
			continue
		}
		analyses++

		if label == "" {
			if id, ok := ExtractTicket(c.Body); ok {
				label, labelID = id, c.ID
			}
		}

		token, ok := ExtractToken(c.Body)
		if !ok {
			rec.Skipped++
			continue
		}
		r, err := Decode(token)
		if err != nil {
			rec.Skipped++
			continue
		}
		if r.TicketID == "" {
			r.TicketID = label
		}
		rec.Record = r
		rec.Source = SourceToken
		rec.CommentID = c.ID
		rec.Settled = settled
		return rec, nil
	}

	rec.Settled = settled
	if label != "" {
		rec.Record.TicketID = label
		rec.Source = SourceLabel
		rec.CommentID = labelID
	}
	return rec, ErrNoRecord
}

// Resolve builds the context for resuming a decision on a PR. Precedence:
// a token carried inline in message, then the thread scan, then the PR
// title. A "Context:" clause in message overrides the request text. The
// result always has a request and a ticket id; a miss degrades to the
// title and UnknownTicket rather than failing.
func Resolve(message string, comments []Comment, title string, opts Options) Recovery {
	rec, err := Scan(comments, opts)

	if token, ok := InlineToken(message); ok {
		if r, derr := Decode(token); derr == nil {
			if r.TicketID == "" {
				r.TicketID = rec.Record.TicketID
			}
			rec.Record = r
			rec.Source = SourceInline
			err = nil
		}
	}

	if err != nil && rec.Source != SourceLabel {
		rec.Source = SourceTitle
	}
	if ctx, ok := InlineContext(message); ok {
		rec.Record.Request = ctx
		rec.Record.Kind = KindFor(ctx)
	} else if rec.Record.Request == "" {
		rec.Record.Request = title
		rec.Record.Kind = KindFor(title)
	}
	if rec.Record.TicketID == "" {
		rec.Record.TicketID = UnknownTicket
	}
	if rec.Record.Version == 0 {
		rec.Record.Version = SchemaVersion
	}
	return rec
}

// Thread lists the comments of an issue or pull request.
type Thread interface {
	ListComments(ctx context.Context, repo string, number int) ([]Comment, error)
}

// Store loads continuation records. ThreadStore is the only implementation;
// a keyed durable store can replace it without touching the workflow.
type Store interface {
	Load(ctx context.Context, repo string, number int, message, title string) (Recovery, error)
}

// ThreadStore recovers records from the PR conversation.
type ThreadStore struct {
	thread Thread
	opts   Options
}

// NewThreadStore creates a store backed by a comment thread.
func NewThreadStore(thread Thread, opts Options) *ThreadStore {
	return &ThreadStore{thread: thread, opts: opts}
}

// Load fetches the thread and resolves the context. A failed fetch still
// yields a degraded Recovery together with the error.
func (s *ThreadStore) Load(ctx context.Context, repo string, number int, message, title string) (Recovery, error) {
	comments, err := s.thread.ListComments(ctx, repo, number)
	rec := Resolve(message, comments, title, s.opts)
	if err != nil {
		return rec, fmt.Errorf("list comments for %s#%d: %w", repo, number, err)
	}
	return rec, nil
}
