// Package submit is the producer-facing boundary of the engine. It
// validates incoming batches, resolves their session, pushes the changes
// through consolidation inside a transaction, and always answers with a
// structured response: failures populate Errors, degradations populate
// Warnings, and nothing ever panics past Submit.
package submit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/reviewkit/redline/internal/consolidate"
	"github.com/reviewkit/redline/internal/editor"
	"github.com/reviewkit/redline/internal/event"
	"github.com/reviewkit/redline/internal/faults"
	"github.com/reviewkit/redline/internal/track"
	"github.com/reviewkit/redline/internal/txn"
)

// maxExtensionDepth bounds nesting in strict extension validation.
const maxExtensionDepth = 3

// EditChange is the wire shape of one change in a submission.
type EditChange struct {
	Type    string `json:"type"`
	From    int64  `json:"from"`
	To      int64  `json:"to"`
	NewText string `json:"newText"`
	OldText string `json:"oldText,omitempty"`
}

// RequestOptions tunes how a submission is processed.
type RequestOptions struct {
	CreateSession    bool            `json:"createSession,omitempty"`
	SessionID        track.SessionID `json:"sessionId,omitempty"`
	StrictValidation bool            `json:"strictValidation,omitempty"`
	GroupChanges     bool            `json:"groupChanges,omitempty"`
	MaxRetries       int             `json:"maxRetries,omitempty"`
}

// Request is one producer batch.
type Request struct {
	ProducerID   string                   `json:"producerId"`
	Priority     int                      `json:"priority,omitempty"`
	Strategy     consolidate.Strategy     `json:"strategy,omitempty"`
	Capabilities consolidate.Capabilities `json:"capabilities,omitempty"`
	Context      track.Context            `json:"context,omitempty"`
	Changes      []EditChange             `json:"changes"`
	Options      RequestOptions           `json:"options,omitempty"`
}

// Response reports the outcome of a submission. Success with a non-empty
// Warnings slice means partial degradation, e.g. skipped or deferred
// changes.
type Response struct {
	Success       bool               `json:"success"`
	SessionID     track.SessionID    `json:"sessionId,omitempty"`
	ChangeIDs     []track.ChangeID   `json:"changeIds,omitempty"`
	ChangeGroupID string             `json:"changeGroupId,omitempty"`
	Errors        []string           `json:"errors,omitempty"`
	Warnings      []string           `json:"warnings,omitempty"`
	Status        consolidate.Status `json:"-"`
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithBus sets the event bus for boundary notifications.
func WithBus(b *event.Bus) Option {
	return func(s *Service) { s.bus = b }
}

// Service accepts producer submissions.
type Service struct {
	tracker *track.Tracker
	engine  *consolidate.Engine
	txns    *txn.Manager
	bus     *event.Bus
	log     *zap.Logger
}

// NewService wires the boundary over the engine's core components.
func NewService(tr *track.Tracker, eng *consolidate.Engine, txns *txn.Manager, opts ...Option) *Service {
	s := &Service{
		tracker: tr,
		engine:  eng,
		txns:    txns,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit processes one producer batch. It never returns an error and
// never panics: every failure mode lands in Response.Errors.
func (s *Service) Submit(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in submission", zap.Any("panic", r))
			resp = Response{Success: false, Errors: []string{fmt.Sprintf("internal error: %v", r)}}
		}
	}()

	if errs := s.validate(req); len(errs) > 0 {
		return Response{Success: false, Errors: errs}
	}

	sessionID, created, err := s.resolveSession(req.Options)
	if err != nil {
		return Response{Success: false, Errors: []string{err.Error()}}
	}

	changes, convErrs := s.convert(req)
	if len(convErrs) > 0 {
		return Response{Success: false, SessionID: sessionID, Errors: convErrs}
	}

	requestID := uuid.NewString()
	op := &consolidate.Operation{
		ID:           requestID,
		ProducerID:   req.ProducerID,
		Priority:     req.Priority,
		Strategy:     req.Strategy,
		Capabilities: req.Capabilities,
		Changes:      changes,
	}

	resp = Response{SessionID: sessionID}
	if req.Options.GroupChanges {
		resp.ChangeGroupID = uuid.NewString()
	}

	var result *consolidate.Result
	run := func(ctx context.Context) error {
		r, err := s.engine.Submit(ctx, sessionID, op)
		if err != nil {
			return err
		}
		result = r
		return nil
	}

	if req.Options.MaxRetries > 0 {
		err = s.txns.RunWithRetries(ctx, sessionID, uint64(req.Options.MaxRetries), run)
	} else {
		err = s.txns.Run(ctx, sessionID, run)
	}
	if err != nil {
		if created {
			// Session was created for this request only; do not leak it.
			if _, endErr := s.tracker.EndSession(sessionID); endErr != nil {
				s.log.Warn("ending session after failure", zap.Error(endErr))
			}
		}
		resp.Success = false
		resp.Errors = append(resp.Errors, err.Error())
		if faults.IsConflict(err) {
			resp.Warnings = append(resp.Warnings,
				"conflict is recoverable: resubmit with a different strategy")
		}
		return resp
	}

	resp.Success = true
	resp.ChangeIDs = result.Recorded
	resp.Warnings = append(resp.Warnings, result.Warnings...)
	resp.Status = result.Status
	if result.Deferred {
		resp.Warnings = append(resp.Warnings,
			"operation deferred to background processing; results follow via events")
	}

	s.log.Info("submission processed",
		zap.String("producer", req.ProducerID),
		zap.String("session", sessionID),
		zap.Int("recorded", len(resp.ChangeIDs)),
		zap.Int("warnings", len(resp.Warnings)))
	return resp
}

func (s *Service) validate(req Request) []string {
	var errs []string
	if req.ProducerID == "" {
		errs = append(errs, "producerId is required")
	}
	if len(req.Changes) == 0 {
		errs = append(errs, "changes must not be empty")
	}
	for i, c := range req.Changes {
		switch c.Type {
		case "insert":
			if c.NewText == "" {
				errs = append(errs, fmt.Sprintf("changes[%d]: insert requires newText", i))
			}
		case "delete":
		case "replace":
			if c.NewText == "" {
				errs = append(errs, fmt.Sprintf("changes[%d]: replace requires newText", i))
			}
		default:
			errs = append(errs, fmt.Sprintf("changes[%d]: unknown type %q", i, c.Type))
		}
		if c.From < 0 || c.To < c.From {
			errs = append(errs, fmt.Sprintf("changes[%d]: invalid range [%d,%d)", i, c.From, c.To))
		}
	}
	if req.Options.StrictValidation {
		errs = append(errs, validateExtension(req.Context.Extension)...)
	}
	return errs
}

// validateExtension enforces the extension contract in strict mode: the
// map must serialize to valid JSON, keys must be non-empty, and nesting
// is bounded.
func validateExtension(ext map[string]any) []string {
	if len(ext) == 0 {
		return nil
	}
	var errs []string
	for k := range ext {
		if k == "" {
			errs = append(errs, "context.extension: empty key")
		}
	}
	data, err := json.Marshal(ext)
	if err != nil {
		return append(errs, fmt.Sprintf("context.extension: not serializable: %v", err))
	}
	if !gjson.ValidBytes(data) {
		return append(errs, "context.extension: does not serialize to valid JSON")
	}
	if depth := jsonDepth(gjson.ParseBytes(data), 1); depth > maxExtensionDepth {
		errs = append(errs, fmt.Sprintf("context.extension: nesting depth %d exceeds %d", depth, maxExtensionDepth))
	}
	return errs
}

func jsonDepth(v gjson.Result, depth int) int {
	deepest := depth
	if v.IsObject() || v.IsArray() {
		v.ForEach(func(_, child gjson.Result) bool {
			if d := jsonDepth(child, depth+1); d > deepest {
				deepest = d
			}
			return true
		})
	}
	return deepest
}

func (s *Service) resolveSession(opts RequestOptions) (track.SessionID, bool, error) {
	if opts.SessionID != "" {
		if _, ok := s.tracker.Session(opts.SessionID); !ok {
			return "", false, fmt.Errorf("session %s not found", opts.SessionID)
		}
		return opts.SessionID, false, nil
	}
	if !opts.CreateSession {
		return "", false, fmt.Errorf("sessionId is required unless createSession is set")
	}
	sess, err := s.tracker.StartSession("")
	if err != nil {
		return "", false, err
	}
	s.publish(event.TopicSessionStarted, event.SessionStarted{SessionID: sess.ID}, sess.ID)
	return sess.ID, true, nil
}

func (s *Service) convert(req Request) ([]track.Change, []string) {
	var errs []string
	out := make([]track.Change, 0, len(req.Changes))
	for i, c := range req.Changes {
		ct, err := parseType(c.Type)
		if err != nil {
			errs = append(errs, fmt.Sprintf("changes[%d]: %v", i, err))
			continue
		}
		out = append(out, track.Change{
			Type:     ct,
			Range:    editor.NewRange(editor.ByteOffset(c.From), editor.ByteOffset(c.To)),
			NewText:  c.NewText,
			OldText:  c.OldText,
			AuthorID: req.ProducerID,
			Priority: req.Priority,
			Context:  req.Context,
		})
	}
	return out, errs
}

func parseType(s string) (track.ChangeType, error) {
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

func (s *Service) publish(topic event.Topic, payload any, correlation string) {
	if s.bus == nil {
		return
	}
	_ = s.bus.Publish(event.New(topic, payload, "submit", correlation))
}
