// Package cluster groups pending changes into reviewable units.
//
// Clusters are projections: they are recomputed from the live pending set
// on demand and never stored, so they can never go stale against the
// tracker. A cluster's identity is derived from its member change IDs,
// which keeps it stable across recomputations as long as the membership
// does not change.
package cluster

import (
	"fmt"
	"hash/fnv"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/reviewkit/redline/internal/editor"
	"github.com/reviewkit/redline/internal/track"
)

// Defaults for cluster grouping.
const (
	DefaultWindow = 2 * time.Second
	DefaultGap    = editor.ByteOffset(80)
)

// Cluster is a derived grouping of pending changes.
type Cluster struct {
	ID        string
	SessionID track.SessionID
	Members   []track.ChangeID // creation order
	Range     editor.Range     // union of member live ranges
	From      time.Time        // earliest member CreatedAt
	To        time.Time        // latest member CreatedAt
}

// Len returns the number of member changes.
func (c Cluster) Len() int {
	return len(c.Members)
}

// Option configures a Manager.
type Option func(*Manager)

// WithWindow sets the sliding time window. Changes created within the
// window of the previous change stay in the same cluster.
func WithWindow(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.window = d
		}
	}
}

// WithGap sets the positional gap threshold. A cluster is split where the
// byte distance between consecutive member ranges exceeds the gap.
// Zero disables positional splitting.
func WithGap(gap editor.ByteOffset) Option {
	return func(m *Manager) {
		m.gap = gap
	}
}

// WithLogger sets the manager's logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// Manager computes clusters over a tracker's pending set and resolves
// them through the tracker.
type Manager struct {
	tracker *track.Tracker
	log     *zap.Logger
	window  time.Duration
	gap     editor.ByteOffset
}

// NewManager creates a cluster manager over the given tracker.
func NewManager(tr *track.Tracker, opts ...Option) *Manager {
	m := &Manager{
		tracker: tr,
		log:     zap.NewNop(),
		window:  DefaultWindow,
		gap:     DefaultGap,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Clusters computes the current clusters for a session's pending changes.
//
// Changes are first grouped by creation time: a change within the window
// of the previous change joins its cluster. Each time group is then split
// where the positional distance between consecutive ranges exceeds the
// gap threshold. Within a cluster, members keep creation order.
func (m *Manager) Clusters(sessionID track.SessionID) ([]Cluster, error) {
	pending, err := m.tracker.PendingInSession(sessionID)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}

	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	var groups [][]track.Change
	group := []track.Change{pending[0]}
	for _, c := range pending[1:] {
		prev := group[len(group)-1]
		if c.CreatedAt.Sub(prev.CreatedAt) > m.window {
			groups = append(groups, group)
			group = []track.Change{c}
			continue
		}
		group = append(group, c)
	}
	groups = append(groups, group)

	if m.gap > 0 {
		groups = m.splitByPosition(groups)
	}

	out := make([]Cluster, 0, len(groups))
	for _, g := range groups {
		out = append(out, m.build(sessionID, g))
	}
	return out, nil
}

// splitByPosition splits each group where consecutive ranges, ordered by
// position, are farther apart than the gap threshold.
func (m *Manager) splitByPosition(groups [][]track.Change) [][]track.Change {
	var out [][]track.Change
	for _, g := range groups {
		byPos := make([]track.Change, len(g))
		copy(byPos, g)
		sort.SliceStable(byPos, func(i, j int) bool {
			return byPos[i].Range.Start < byPos[j].Range.Start
		})

		part := []track.Change{byPos[0]}
		for _, c := range byPos[1:] {
			prev := part[len(part)-1]
			if c.Range.Start-prev.Range.End > m.gap {
				out = append(out, restoreOrder(g, part))
				part = []track.Change{c}
				continue
			}
			part = append(part, c)
		}
		out = append(out, restoreOrder(g, part))
	}
	return out
}

// restoreOrder reorders a positional part back into the creation order of
// the original group.
func restoreOrder(group, part []track.Change) []track.Change {
	member := make(map[track.ChangeID]bool, len(part))
	for _, c := range part {
		member[c.ID] = true
	}
	out := make([]track.Change, 0, len(part))
	for _, c := range group {
		if member[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

func (m *Manager) build(sessionID track.SessionID, members []track.Change) Cluster {
	c := Cluster{
		SessionID: sessionID,
		Members:   make([]track.ChangeID, len(members)),
		Range:     members[0].Range,
		From:      members[0].CreatedAt,
		To:        members[0].CreatedAt,
	}
	for i, ch := range members {
		c.Members[i] = ch.ID
		c.Range = c.Range.Union(ch.Range)
		if ch.CreatedAt.Before(c.From) {
			c.From = ch.CreatedAt
		}
		if ch.CreatedAt.After(c.To) {
			c.To = ch.CreatedAt
		}
	}
	c.ID = deriveID(c.Members)
	return c
}

// deriveID hashes the sorted member IDs so the cluster ID is stable for a
// given membership regardless of ordering.
func deriveID(members []track.ChangeID) string {
	sorted := make([]string, len(members))
	copy(sorted, members)
	sort.Strings(sorted)

	h := fnv.New64a()
	for _, id := range sorted {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("cl-%016x", h.Sum64())
}

// Accept resolves every member change of a cluster as kept.
func (m *Manager) Accept(c Cluster) {
	m.tracker.Accept(c.Members...)
	m.log.Debug("cluster accepted",
		zap.String("cluster", c.ID),
		zap.Int("members", c.Len()))
}

// Reject reverts every member change of a cluster, returning the document
// to its pre-cluster text. Reject ordering and mismatch handling follow
// the tracker's policy.
func (m *Manager) Reject(c Cluster) error {
	if _, err := m.tracker.Reject(c.Members...); err != nil {
		return err
	}
	m.log.Debug("cluster rejected",
		zap.String("cluster", c.ID),
		zap.Int("members", c.Len()))
	return nil
}
