package domain

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
)

// ReactionKind is one of the reactions a user can leave on a post.
type ReactionKind string

const (
	ReactionLike  ReactionKind = "like"
	ReactionHeart ReactionKind = "heart"
)

// ReactionKinds lists every known kind in display order.
var ReactionKinds = []ReactionKind{ReactionLike, ReactionHeart}

// Valid reports whether k is a known reaction kind.
func (k ReactionKind) Valid() bool {
	switch k {
	case ReactionLike, ReactionHeart:
		return true
	}
	return false
}

// Reaction is one user's reaction on a post. A user has at most one reaction
// per post, so the user id identifies it within the post.
type Reaction struct {
	PostID    string       `json:"post_id"`
	User      User         `json:"user"`
	Type      ReactionKind `json:"reaction_type"`
	Timestamp string       `json:"timestamp"`
}

func (r Reaction) ItemID() string        { return r.User.ID }
func (r Reaction) ItemTimestamp() string { return r.Timestamp }

// ReactionToggle is the optimistic single-selection reaction state of one
// post. Base counts exclude the caller's own reaction; the displayed count of
// the selected kind is base plus one. Backend failures are returned but the
// optimistic state is kept.
type ReactionToggle struct {
	postID string
	gw     ReactionGateway
	creds  CredentialProvider
	logger *slog.Logger

	// opMu orders state changes with their backend calls, so the last
	// request the backend sees matches selected
	opMu sync.Mutex

	mu       sync.Mutex
	base     map[ReactionKind]int
	selected ReactionKind
	loaded   bool
}

// NewReactionToggle creates a toggle from server counts that do not include
// the caller's reaction. Use Load to reconcile with the caller's reaction on
// the server.
func NewReactionToggle(postID string, counts map[ReactionKind]int, gw ReactionGateway, creds CredentialProvider, logger *slog.Logger) *ReactionToggle {
	if logger == nil {
		logger = slog.Default()
	}
	base := make(map[ReactionKind]int, len(ReactionKinds))
	maps.Copy(base, counts)
	return &ReactionToggle{
		postID: postID,
		gw:     gw,
		creds:  creds,
		logger: logger.With("post_id", postID),
		base:   base,
	}
}

// Load fetches the caller's reaction and treats counts as server counts that
// already include it.
func (t *ReactionToggle) Load(ctx context.Context, counts map[ReactionKind]int) error {
	token, ok := t.creds.Token()
	if !ok {
		return ErrNoCredential
	}

	t.opMu.Lock()
	defer t.opMu.Unlock()

	own, err := t.gw.Reaction(ctx, token, t.postID)
	if err != nil {
		return fmt.Errorf("fetch own reaction: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.loaded = true
	t.base = make(map[ReactionKind]int, len(ReactionKinds))
	maps.Copy(t.base, counts)
	t.selected = ""
	if own != nil && own.Type.Valid() {
		t.selected = own.Type
		if t.base[own.Type] > 0 {
			t.base[own.Type]--
		}
	}
	return nil
}

// Loaded reports whether Load has succeeded, so the caller's own reaction is
// known.
func (t *ReactionToggle) Loaded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loaded
}

// Select toggles kind. Choosing the selected kind deselects it with one
// delete call; choosing any other kind replaces the selection with one put
// call. Concurrent calls reach the backend in the order they change the
// selection.
func (t *ReactionToggle) Select(ctx context.Context, kind ReactionKind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidReaction, kind)
	}

	t.opMu.Lock()
	defer t.opMu.Unlock()
	return t.toggle(ctx, kind)
}

// toggle must be called with t.opMu held.
func (t *ReactionToggle) toggle(ctx context.Context, kind ReactionKind) error {
	token, ok := t.creds.Token()
	if !ok {
		return ErrNoCredential
	}

	t.mu.Lock()
	deselect := t.selected == kind
	if deselect {
		t.selected = ""
	} else {
		t.selected = kind
	}
	t.mu.Unlock()

	if deselect {
		if err := t.gw.DeleteReaction(ctx, token, t.postID); err != nil {
			t.logger.Warn("delete reaction failed", "kind", kind, "error", err)
			return fmt.Errorf("delete reaction: %w", err)
		}
		return nil
	}

	if err := t.gw.PutReaction(ctx, token, t.postID, kind); err != nil {
		t.logger.Warn("put reaction failed", "kind", kind, "error", err)
		return fmt.Errorf("put reaction: %w", err)
	}
	return nil
}

// Deselect clears the selection, if any.
func (t *ReactionToggle) Deselect(ctx context.Context) error {
	t.opMu.Lock()
	defer t.opMu.Unlock()

	t.mu.Lock()
	current := t.selected
	t.mu.Unlock()
	if current == "" {
		return nil
	}
	return t.toggle(ctx, current)
}

// Selected returns the selected kind, empty if none.
func (t *ReactionToggle) Selected() ReactionKind {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.selected
}

// Displayed returns the count to show for kind.
func (t *ReactionToggle) Displayed(kind ReactionKind) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.displayed(kind)
}

func (t *ReactionToggle) displayed(kind ReactionKind) int {
	n := t.base[kind]
	if t.selected == kind {
		n++
	}
	return n
}

// Counts returns the displayed count of every known kind.
func (t *ReactionToggle) Counts() map[ReactionKind]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[ReactionKind]int, len(ReactionKinds))
	for _, k := range ReactionKinds {
		out[k] = t.displayed(k)
	}
	return out
}
