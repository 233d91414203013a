package query

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/reviewkit/redline/internal/editor"
	"github.com/reviewkit/redline/internal/faults"
	"github.com/reviewkit/redline/internal/track"
)

// ExportVersion is the schema version written into JSON exports.
const ExportVersion = 1

// Errors returned by import.
var (
	ErrMalformedExport = errors.New("export data is not valid JSON")
	ErrSchemaMismatch  = errors.New("export data does not match the expected schema")
)

type changeRecord struct {
	ID        string        `json:"id"`
	Type      string        `json:"type"`
	From      int64         `json:"from"`
	To        int64         `json:"to"`
	NewText   string        `json:"newText"`
	OldText   string        `json:"oldText,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	Author    string        `json:"author,omitempty"`
	Priority  int           `json:"priority,omitempty"`
	Context   track.Context `json:"context"`
	Status    string        `json:"status"`
}

type counterRecord struct {
	Changes       int   `json:"changes"`
	CharsInserted int64 `json:"charsInserted"`
	CharsRemoved  int64 `json:"charsRemoved"`
	WordsInserted int64 `json:"wordsInserted"`
	WordsRemoved  int64 `json:"wordsRemoved"`
}

type sessionRecord struct {
	ID        string         `json:"id"`
	StartedAt time.Time      `json:"startedAt"`
	EndedAt   time.Time      `json:"endedAt"`
	Changes   []changeRecord `json:"changes"`
	Counters  counterRecord  `json:"counters"`
}

type exportDoc struct {
	Sessions []sessionRecord `json:"sessions"`
}

func toRecord(c track.Change) changeRecord {
	return changeRecord{
		ID:        c.ID,
		Type:      c.Type.String(),
		From:      int64(c.Range.Start),
		To:        int64(c.Range.End),
		NewText:   c.NewText,
		OldText:   c.OldText,
		CreatedAt: c.CreatedAt,
		Author:    c.AuthorID,
		Priority:  c.Priority,
		Context:   c.Context,
		Status:    c.Status.String(),
	}
}

func fromRecord(r changeRecord) (track.Change, error) {
	ct, err := parseChangeType(r.Type)
	if err != nil {
		return track.Change{}, err
	}
	st, err := parseStatus(r.Status)
	if err != nil {
		return track.Change{}, err
	}
	return track.Change{
		ID:        r.ID,
		Type:      ct,
		Range:     editor.NewRange(editor.ByteOffset(r.From), editor.ByteOffset(r.To)),
		NewText:   r.NewText,
		OldText:   r.OldText,
		CreatedAt: r.CreatedAt,
		AuthorID:  r.Author,
		Priority:  r.Priority,
		Context:   r.Context,
		Status:    st,
	}, nil
}

func parseChangeType(s string) (track.ChangeType, error) {
	switch s {
	case "insert":
		return track.ChangeInsert, nil
	case "delete":
		return track.ChangeDelete, nil
	case "replace":
		return track.ChangeReplace, nil
	default:
		return 0, fmt.Errorf("unknown change type %q", s)
	}
}

func parseStatus(s string) (track.Status, error) {
	switch s {
	case "pending":
		return track.StatusPending, nil
	case "accepted":
		return track.StatusAccepted, nil
	case "rejected":
		return track.StatusRejected, nil
	default:
		return 0, fmt.Errorf("unknown status %q", s)
	}
}

func sessionToRecord(s *track.Session) sessionRecord {
	counters := s.Counters()
	rec := sessionRecord{
		ID:        s.ID,
		StartedAt: s.StartedAt,
		EndedAt:   s.EndedAt,
		Counters: counterRecord{
			Changes:       counters.Changes,
			CharsInserted: counters.CharsInserted,
			CharsRemoved:  counters.CharsRemoved,
			WordsInserted: counters.WordsInserted,
			WordsRemoved:  counters.WordsRemoved,
		},
	}
	for _, c := range s.Changes() {
		rec.Changes = append(rec.Changes, toRecord(c))
	}
	return rec
}

// ExportJSON writes a full-fidelity JSON export of all indexed sessions.
// The output round-trips through ImportJSON.
func (ix *Index) ExportJSON(w io.Writer) error {
	doc := exportDoc{}
	for _, s := range ix.Sessions() {
		doc.Sessions = append(doc.Sessions, sessionToRecord(s))
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	payload, err = sjson.SetBytes(payload, "meta.version", ExportVersion)
	if err != nil {
		return err
	}
	payload, err = sjson.SetBytes(payload, "meta.exportedAt", time.Now().Format(time.RFC3339))
	if err != nil {
		return err
	}

	_, err = w.Write(payload)
	return err
}

// ImportJSON parses an export and returns the restored sessions. The
// payload is validated before unmarshalling so malformed data is
// rejected with a validation fault instead of a partial import.
func ImportJSON(data []byte) ([]*track.Session, error) {
	if !gjson.ValidBytes(data) {
		return nil, faults.New(faults.KindValidation, "import", ErrMalformedExport)
	}
	root := gjson.ParseBytes(data)
	sessions := root.Get("sessions")
	if !sessions.Exists() || !sessions.IsArray() {
		return nil, faults.New(faults.KindValidation, "import", ErrSchemaMismatch)
	}
	if v := root.Get("meta.version"); v.Exists() && v.Int() > ExportVersion {
		return nil, faults.Newf(faults.KindValidation, "import",
			"unsupported export version %d", v.Int())
	}

	var doc exportDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, faults.New(faults.KindValidation, "import", err)
	}

	out := make([]*track.Session, 0, len(doc.Sessions))
	for _, sr := range doc.Sessions {
		changes := make([]track.Change, 0, len(sr.Changes))
		for _, cr := range sr.Changes {
			c, err := fromRecord(cr)
			if err != nil {
				return nil, faults.New(faults.KindValidation, "import", err)
			}
			changes = append(changes, c)
		}
		out = append(out, track.RestoreSession(sr.ID, sr.StartedAt, sr.EndedAt, changes))
	}
	return out, nil
}

// ExportCSV writes one flattened row per change across all sessions.
func (ix *Index) ExportCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := []string{
		"session_id", "change_id", "type", "status", "from", "to",
		"new_text", "old_text", "author", "priority", "created_at",
		"mode", "provider", "model",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, s := range ix.Sessions() {
		for _, c := range s.Changes() {
			row := []string{
				s.ID,
				c.ID,
				c.Type.String(),
				c.Status.String(),
				strconv.FormatInt(int64(c.Range.Start), 10),
				strconv.FormatInt(int64(c.Range.End), 10),
				c.NewText,
				c.OldText,
				c.AuthorID,
				strconv.Itoa(c.Priority),
				c.CreatedAt.Format(time.RFC3339Nano),
				c.Context.Mode,
				c.Context.Provider,
				c.Context.Model,
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportMarkdown writes a human-readable summary with aggregate
// statistics and a per-session change table.
func (ix *Index) ExportMarkdown(w io.Writer) error {
	sessions := ix.Sessions()

	var total track.Counters
	for _, s := range sessions {
		c := s.Counters()
		total.Changes += c.Changes
		total.CharsInserted += c.CharsInserted
		total.CharsRemoved += c.CharsRemoved
		total.WordsInserted += c.WordsInserted
		total.WordsRemoved += c.WordsRemoved
	}

	fmt.Fprintf(w, "# Change Report\n\n")
	fmt.Fprintf(w, "Sessions: %d | Changes: %d | Inserted: %d chars (%d words) | Removed: %d chars (%d words)\n\n",
		len(sessions), total.Changes,
		total.CharsInserted, total.WordsInserted,
		total.CharsRemoved, total.WordsRemoved)

	for _, s := range sessions {
		fmt.Fprintf(w, "## Session %s\n\n", s.ID)
		fmt.Fprintf(w, "Started %s, duration %s, %d changes\n\n",
			s.StartedAt.Format(time.RFC3339), s.Duration().Round(time.Second), s.Len())
		fmt.Fprintf(w, "| ID | Type | Range | Status | Author | Text |\n")
		fmt.Fprintf(w, "|----|------|-------|--------|--------|------|\n")
		for _, c := range s.Changes() {
			text := c.NewText
			if c.Type == track.ChangeDelete {
				text = c.OldText
			}
			fmt.Fprintf(w, "| %s | %s | %s | %s | %s | %s |\n",
				shortID(c.ID), c.Type, c.Range, c.Status, c.AuthorID, mdEscape(text))
		}
		fmt.Fprintln(w)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func mdEscape(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case '|':
			out = append(out, '\\', '|')
		case '\n':
			out = append(out, ' ')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
