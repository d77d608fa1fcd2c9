package domain

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Page sizes per feed kind. Exhaustion is detected purely by a page shorter
// than the requested size.
const (
	NotificationPageSize = 3
	CommentPageSize      = 5
	PostPageSize         = 10
	ReactionPageSize     = 20
)

// DefaultRemovalDelay is how long a removed item stays in the list marked
// pending, so a presentation layer can animate it out.
const DefaultRemovalDelay = 500 * time.Millisecond

// FeedOption configures a Feed.
type FeedOption func(*feedOptions)

type feedOptions struct {
	pageSize      int
	ready         <-chan struct{}
	removalDelay  time.Duration
	onDeleteError func(id string, err error)
	logger        *slog.Logger
}

// WithPageSize overrides the number of items requested per pull.
func WithPageSize(n int) FeedOption {
	return func(o *feedOptions) { o.pageSize = n }
}

// WithReady gates pulls on ready being closed. Notification feeds pass the
// push channel's connected signal so no push event can arrive ahead of the
// initial page request.
func WithReady(ready <-chan struct{}) FeedOption {
	return func(o *feedOptions) { o.ready = ready }
}

// WithRemovalDelay overrides DefaultRemovalDelay.
func WithRemovalDelay(d time.Duration) FeedOption {
	return func(o *feedOptions) { o.removalDelay = d }
}

// WithDeleteErrorHook registers fn to be told about failed background deletes.
// The removal itself is never reverted.
func WithDeleteErrorHook(fn func(id string, err error)) FeedOption {
	return func(o *feedOptions) { o.onDeleteError = fn }
}

// WithLogger sets the feed's logger.
func WithLogger(l *slog.Logger) FeedOption {
	return func(o *feedOptions) { o.logger = l }
}

// FeedState is a consistent snapshot of a Feed.
type FeedState[T Item] struct {
	Items     []T
	Pending   []string
	Cursor    string
	Loading   bool
	Exhausted bool
}

// Feed is an in-memory newest-first list of items fed by two channels:
// paginated pulls through a Source and live push events. It never holds two
// items with the same id, nor two Matchable items with the same MatchKey when
// one of them lacks a server id.
type Feed[T Item, P any] struct {
	name   string
	source Source[T, P]
	creds  CredentialProvider
	opts   feedOptions
	logger *slog.Logger

	mu        sync.Mutex
	items     []T
	ids       map[string]struct{}
	keys      map[string]string // MatchKey -> id
	pending   map[string]*time.Timer
	cursor    string
	loading   bool
	exhausted bool
	closed    bool
}

// NewFeed creates an empty feed. name only labels log lines and errors.
func NewFeed[T Item, P any](name string, source Source[T, P], creds CredentialProvider, opts ...FeedOption) *Feed[T, P] {
	o := feedOptions{
		pageSize:     PostPageSize,
		removalDelay: DefaultRemovalDelay,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	return &Feed[T, P]{
		name:    name,
		source:  source,
		creds:   creds,
		opts:    o,
		logger:  o.logger.With("feed", name),
		ids:     make(map[string]struct{}),
		keys:    make(map[string]string),
		pending: make(map[string]*time.Timer),
	}
}

// LoadMore pulls the page after the cursor and appends it. It is a no-op once
// the feed is exhausted. On failure the cursor and the list are unchanged and
// the caller may retry.
func (f *Feed[T, P]) LoadMore(ctx context.Context) error {
	token, ok := f.creds.Token()
	if !ok {
		return ErrNoCredential
	}

	f.mu.Lock()
	switch {
	case f.closed:
		f.mu.Unlock()
		return ErrFeedClosed
	case f.loading:
		f.mu.Unlock()
		return ErrLoadInProgress
	case f.exhausted:
		f.mu.Unlock()
		return nil
	}
	f.loading = true
	cursor := f.cursor
	f.mu.Unlock()

	if f.opts.ready != nil {
		select {
		case <-f.opts.ready:
		case <-ctx.Done():
			f.mu.Lock()
			f.loading = false
			f.mu.Unlock()
			return fmt.Errorf("%s: wait for push channel: %w", f.name, ctx.Err())
		}
	}

	page, err := f.source.Fetch(ctx, token, cursor, f.opts.pageSize)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.loading = false

	if f.closed {
		return ErrFeedClosed
	}
	if err != nil {
		f.logger.Warn("load failed", "cursor", cursor, "error", err)
		return fmt.Errorf("%s: fetch page: %w", f.name, err)
	}

	appended := f.appendPage(page)
	if len(page) < f.opts.pageSize {
		f.exhausted = true
	}

	f.logger.Debug("page loaded",
		"requested", f.opts.pageSize,
		"received", len(page),
		"appended", appended,
		"cursor", f.cursor,
		"exhausted", f.exhausted,
	)
	return nil
}

// appendPage must be called with f.mu held.
func (f *Feed[T, P]) appendPage(page []T) int {
	if len(page) == 0 {
		return 0
	}

	oldest := page[0].ItemTimestamp()
	appended := 0
	for _, item := range page {
		ts := item.ItemTimestamp()
		if ts < oldest {
			oldest = ts
		}
		if f.cursor != "" && ts >= f.cursor {
			f.logger.Debug("dropping item not older than cursor", "id", item.ItemID(), "timestamp", ts)
			continue
		}
		id := item.ItemID()
		if _, dup := f.ids[id]; dup {
			continue
		}
		if key, serverID, ok := matchKeyOf(item); ok {
			if known, seen := f.keys[key]; seen && f.adopt(key, known, item, serverID) {
				continue
			}
			f.keys[key] = id
		}
		f.items = append(f.items, item)
		f.ids[id] = struct{}{}
		appended++
	}
	f.cursor = oldest
	return appended
}

// adopt folds a pulled item into the listed copy known that has the same
// MatchKey. It reports false when both carry server ids, as they are then
// distinct backend items. A provisional copy takes the pulled item's place
// unless it is being removed. Must be called with f.mu held.
func (f *Feed[T, P]) adopt(key, known string, item T, serverID bool) bool {
	idx := slices.IndexFunc(f.items, func(it T) bool { return it.ItemID() == known })
	if idx < 0 {
		return false
	}
	if _, knownServerID, _ := matchKeyOf(f.items[idx]); knownServerID {
		return !serverID
	}
	if _, removing := f.pending[known]; removing || !serverID {
		return true
	}

	delete(f.ids, known)
	f.items[idx] = item
	f.ids[item.ItemID()] = struct{}{}
	f.keys[key] = item.ItemID()
	f.logger.Debug("matched pushed item with stored copy", "provisional_id", known, "id", item.ItemID())
	return true
}

func matchKeyOf[T Item](item T) (key string, serverID, ok bool) {
	m, ok := any(item).(Matchable)
	if !ok {
		return "", true, false
	}
	return m.MatchKey(), m.HasServerID(), true
}

// OnPushEvent prepends an item delivered by the push channel. The item ends up
// at index 0; an older copy with the same id is dropped. An item that is being
// removed is left alone.
func (f *Feed[T, P]) OnPushEvent(item T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.prepend(item)
}

// prepend must be called with f.mu held.
func (f *Feed[T, P]) prepend(item T) {
	if _, removing := f.pending[item.ItemID()]; removing {
		return
	}

	if key, serverID, ok := matchKeyOf(item); ok {
		if known, seen := f.keys[key]; seen && known != item.ItemID() {
			idx := slices.IndexFunc(f.items, func(it T) bool { return it.ItemID() == known })
			if idx >= 0 {
				existing := f.items[idx]
				_, knownServerID, _ := matchKeyOf(existing)
				if !knownServerID || !serverID {
					if _, removing := f.pending[known]; removing {
						return
					}
					// the same item: keep whichever copy the backend can identify
					if knownServerID {
						item = existing
					}
					f.items = slices.Delete(f.items, idx, idx+1)
					delete(f.ids, known)
				}
			}
		}
		f.keys[key] = item.ItemID()
	}

	id := item.ItemID()
	if _, dup := f.ids[id]; dup {
		f.items = slices.DeleteFunc(f.items, func(it T) bool { return it.ItemID() == id })
	}
	f.items = slices.Insert(f.items, 0, item)
	f.ids[id] = struct{}{}
}

// Create asks the backend to create an item and prepends the canonical item it
// returns. On failure the list is unchanged.
func (f *Feed[T, P]) Create(ctx context.Context, payload P) (T, error) {
	var zero T

	token, ok := f.creds.Token()
	if !ok {
		return zero, ErrNoCredential
	}
	if f.isClosed() {
		return zero, ErrFeedClosed
	}

	item, err := f.source.Create(ctx, token, payload)
	if err != nil {
		return zero, fmt.Errorf("%s: create: %w", f.name, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return item, ErrFeedClosed
	}
	f.prepend(item)
	return item, nil
}

// Remove marks the item pending, deletes it on the backend in the background,
// and drops it from the list after the removal delay whatever the delete
// outcome.
func (f *Feed[T, P]) Remove(ctx context.Context, id string) error {
	token, ok := f.creds.Token()
	if !ok {
		return ErrNoCredential
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrFeedClosed
	}
	idx := slices.IndexFunc(f.items, func(it T) bool { return it.ItemID() == id })
	if idx < 0 {
		return fmt.Errorf("%s: remove %s: %w", f.name, id, ErrNotFound)
	}
	if _, already := f.pending[id]; already {
		return nil
	}

	item := f.items[idx]
	f.pending[id] = time.AfterFunc(f.opts.removalDelay, func() { f.drop(id) })

	if _, serverID, _ := matchKeyOf(item); !serverID {
		f.logger.Debug("item has no server id, removing locally only", "id", id)
		return nil
	}
	go f.deleteRemote(context.WithoutCancel(ctx), token, item)
	return nil
}

func (f *Feed[T, P]) deleteRemote(ctx context.Context, token string, item T) {
	if err := f.source.Delete(ctx, token, item); err != nil {
		f.logger.Warn("background delete failed", "id", item.ItemID(), "error", err)
		if f.opts.onDeleteError != nil {
			f.opts.onDeleteError(item.ItemID(), err)
		}
	}
}

func (f *Feed[T, P]) drop(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	delete(f.pending, id)
	delete(f.ids, id)
	if idx := slices.IndexFunc(f.items, func(it T) bool { return it.ItemID() == id }); idx >= 0 {
		if key, _, ok := matchKeyOf(f.items[idx]); ok && f.keys[key] == id {
			delete(f.keys, key)
		}
	}
	f.items = slices.DeleteFunc(f.items, func(it T) bool { return it.ItemID() == id })
}

// Close stops all state changes. Responses that arrive afterwards are
// discarded.
func (f *Feed[T, P]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for _, t := range f.pending {
		t.Stop()
	}
}

func (f *Feed[T, P]) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Items returns a copy of the list, newest first.
func (f *Feed[T, P]) Items() []T {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.items)
}

// Exhausted reports whether a short page has been seen.
func (f *Feed[T, P]) Exhausted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exhausted
}

// Loading reports whether a pull is in flight.
func (f *Feed[T, P]) Loading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loading
}

// State returns a consistent snapshot of the feed.
func (f *Feed[T, P]) State() FeedState[T] {
	f.mu.Lock()
	defer f.mu.Unlock()

	pending := make([]string, 0, len(f.pending))
	for _, it := range f.items {
		if _, ok := f.pending[it.ItemID()]; ok {
			pending = append(pending, it.ItemID())
		}
	}
	return FeedState[T]{
		Items:     slices.Clone(f.items),
		Pending:   pending,
		Cursor:    f.cursor,
		Loading:   f.loading,
		Exhausted: f.exhausted,
	}
}
