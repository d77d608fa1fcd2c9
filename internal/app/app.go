// Package app wires the session, the controller client, the push channel and
// the feed registry into one object built at start and reset on every
// credential change.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Mazart23/pet-book/internal/config"
	"github.com/Mazart23/pet-book/internal/domain"
	"github.com/Mazart23/pet-book/internal/gateway"
	"github.com/Mazart23/pet-book/internal/push"
)

const defaultExpiryCheckInterval = time.Minute

type (
	PostFeed         = domain.Feed[domain.Post, domain.NewPost]
	CommentFeed      = domain.Feed[domain.Comment, domain.NewComment]
	NotificationFeed = domain.Feed[domain.Notification, struct{}]
	ReactionFeed     = domain.Feed[domain.Reaction, struct{}]
)

// Option configures an App.
type Option func(*App)

// WithDeleteErrorHook is called when a background delete fails in any feed.
// The item has already been removed from the feed by then.
func WithDeleteErrorHook(fn func(feed, id string, err error)) Option {
	return func(a *App) { a.onDeleteError = fn }
}

// WithRemovalDelay overrides how long removed items stay visible as pending.
func WithRemovalDelay(d time.Duration) Option {
	return func(a *App) { a.removalDelay = d }
}

// WithExpiryCheckInterval sets how often Run checks the credential expiry and
// re-reads the credential store.
func WithExpiryCheckInterval(d time.Duration) Option {
	return func(a *App) { a.expiryCheck = d }
}

// App is the client's application context.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	client  *gateway.Client
	session *domain.Session

	onDeleteError func(feed, id string, err error)
	removalDelay  time.Duration
	expiryCheck   time.Duration

	mu       sync.Mutex
	runCtx   context.Context
	token    string
	sub      *push.Subscriber
	stopPush context.CancelFunc
	ready    *gate

	notifications *NotificationFeed
	timeline      *PostFeed
	userPosts     map[string]*PostFeed
	comments      map[string]*CommentFeed
	reactors      map[string]*ReactionFeed
	reactions     map[string]*domain.ReactionToggle
}

// New builds the application context. repo holds the credential between runs.
func New(cfg *config.Config, repo domain.CredentialRepository, logger *slog.Logger, opts ...Option) *App {
	if logger == nil {
		logger = slog.Default()
	}
	client := gateway.NewClient(cfg.ControllerURL,
		gateway.WithLogger(logger),
		gateway.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
	)

	a := &App{
		cfg:          cfg,
		logger:       logger,
		client:       client,
		session:      domain.NewSession(repo, client, logger),
		removalDelay: domain.DefaultRemovalDelay,
		expiryCheck:  defaultExpiryCheckInterval,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.resetLocked()
	return a
}

// Client returns the controller client.
func (a *App) Client() *gateway.Client { return a.client }

// Session returns the session store.
func (a *App) Session() *domain.Session { return a.session }

// Run keeps the push channel in step with the session until ctx is cancelled.
// Each credential change drops the feeds of the previous credential and opens
// a fresh push connection when a credential is present.
func (a *App) Run(ctx context.Context) error {
	updates, cancel := a.session.Subscribe()
	defer cancel()

	a.mu.Lock()
	a.runCtx = ctx
	a.mu.Unlock()
	a.apply(a.session.Credential())

	ticker := time.NewTicker(a.expiryCheck)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.mu.Lock()
			a.stopPushLocked()
			a.runCtx = nil
			a.mu.Unlock()
			return ctx.Err()
		case cred := <-updates:
			a.apply(cred)
		case <-ticker.C:
			a.checkExpiry(ctx)
			if err := a.session.Sync(ctx); err != nil {
				a.logger.Warn("failed to re-read credential store", "error", err)
			}
		}
	}
}

// Login authenticates and switches the application to the new credential.
func (a *App) Login(ctx context.Context, username, password string) error {
	if err := a.session.Login(ctx, username, password); err != nil {
		return err
	}
	a.apply(a.session.Credential())
	return nil
}

// Logout closes every feed, stops the push channel and destroys the
// credential.
func (a *App) Logout(ctx context.Context) error {
	a.mu.Lock()
	a.stopPushLocked()
	a.resetLocked()
	a.token = ""
	a.mu.Unlock()

	if err := a.session.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

func (a *App) apply(cred domain.Credential) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cred.Token == a.token && (a.sub != nil || a.runCtx == nil) {
		return
	}
	if cred.Token != a.token {
		a.resetLocked()
		a.token = cred.Token
	}

	a.stopPushLocked()
	if cred.IsZero() || a.runCtx == nil {
		return
	}
	a.startPushLocked(cred.Token)
}

func (a *App) startPushLocked(token string) {
	ctx, cancel := context.WithCancel(a.runCtx)
	sub := push.NewSubscriber(a.cfg.NotifierURL, token, a.logger)
	sub.On(func(_ context.Context, event string, n domain.Notification) {
		a.handlePush(token, event, n)
	})
	a.sub = sub
	a.stopPush = cancel

	ready := a.ready
	go func() {
		select {
		case <-sub.Ready():
			ready.open()
		case <-ctx.Done():
		}
	}()
	go func() {
		if err := sub.Start(ctx); err != nil && ctx.Err() == nil {
			a.logger.Error("push subscriber exited with error", "error", err)
		}
	}()
}

func (a *App) stopPushLocked() {
	if a.stopPush != nil {
		a.stopPush()
	}
	a.sub = nil
	a.stopPush = nil
}

// resetLocked closes every feed of the previous credential and starts an
// empty registry.
func (a *App) resetLocked() {
	if a.notifications != nil {
		a.notifications.Close()
	}
	if a.timeline != nil {
		a.timeline.Close()
	}
	for _, f := range a.userPosts {
		f.Close()
	}
	for _, f := range a.comments {
		f.Close()
	}
	for _, f := range a.reactors {
		f.Close()
	}

	a.notifications = nil
	a.timeline = nil
	a.userPosts = make(map[string]*PostFeed)
	a.comments = make(map[string]*CommentFeed)
	a.reactors = make(map[string]*ReactionFeed)
	a.reactions = make(map[string]*domain.ReactionToggle)
	a.ready = newGate()
}

func (a *App) handlePush(token, event string, n domain.Notification) {
	a.mu.Lock()
	if token != a.token {
		a.mu.Unlock()
		a.logger.Debug("dropping push event for previous session", "event", event)
		return
	}
	notifications := a.notificationsLocked()
	var (
		comments *CommentFeed
		comment  domain.Comment
	)
	if c, ok := n.AsComment(); ok {
		comment = c
		comments = a.comments[c.PostID]
	}
	a.mu.Unlock()

	notifications.OnPushEvent(n)
	if comments != nil {
		comments.OnPushEvent(comment)
	}
}

func (a *App) checkExpiry(ctx context.Context) {
	cred := a.session.Credential()
	if cred.IsZero() || !cred.Expired(time.Now()) {
		return
	}
	a.logger.Info("credential expired, logging out", "subject", cred.Subject, "expired_at", cred.ExpiresAt)
	if err := a.Logout(ctx); err != nil {
		a.logger.Error("failed to log out expired session", "error", err)
	}
}

func (a *App) feedOptions(name string, pageSize int) []domain.FeedOption {
	opts := []domain.FeedOption{
		domain.WithPageSize(pageSize),
		domain.WithRemovalDelay(a.removalDelay),
		domain.WithLogger(a.logger),
	}
	if a.onDeleteError != nil {
		hook := a.onDeleteError
		opts = append(opts, domain.WithDeleteErrorHook(func(id string, err error) {
			hook(name, id, err)
		}))
	}
	return opts
}

// Notifications returns the caller's notification feed. Its first pull waits
// until the push channel has connected, so no event can fall between the pull
// and the subscription.
func (a *App) Notifications() *NotificationFeed {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.notificationsLocked()
}

func (a *App) notificationsLocked() *NotificationFeed {
	if a.notifications == nil {
		opts := append(a.feedOptions("notifications", domain.NotificationPageSize), domain.WithReady(a.ready.ch))
		a.notifications = domain.NewFeed[domain.Notification, struct{}]("notifications", gateway.NotificationSource{Client: a.client}, a.session, opts...)
	}
	return a.notifications
}

// Timeline returns the global post feed.
func (a *App) Timeline() *PostFeed {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timeline == nil {
		a.timeline = domain.NewFeed[domain.Post, domain.NewPost]("timeline", gateway.PostSource{Client: a.client}, a.session, a.feedOptions("timeline", domain.PostPageSize)...)
	}
	return a.timeline
}

// UserPosts returns the post feed of one author.
func (a *App) UserPosts(userID string) *PostFeed {
	a.mu.Lock()
	defer a.mu.Unlock()
	if f, ok := a.userPosts[userID]; ok {
		return f
	}
	name := "posts:" + userID
	f := domain.NewFeed[domain.Post, domain.NewPost](name, gateway.PostSource{Client: a.client, UserID: userID}, a.session, a.feedOptions(name, domain.PostPageSize)...)
	a.userPosts[userID] = f
	return f
}

// Comments returns the comment feed of a post. Comment notifications about
// the post are prepended to it as they arrive.
func (a *App) Comments(postID string) *CommentFeed {
	a.mu.Lock()
	defer a.mu.Unlock()
	if f, ok := a.comments[postID]; ok {
		return f
	}
	name := "comments:" + postID
	f := domain.NewFeed[domain.Comment, domain.NewComment](name, gateway.CommentSource{Client: a.client, PostID: postID}, a.session, a.feedOptions(name, domain.CommentPageSize)...)
	a.comments[postID] = f
	return f
}

// Reactors returns the feed of users who reacted to a post.
func (a *App) Reactors(postID string) *ReactionFeed {
	a.mu.Lock()
	defer a.mu.Unlock()
	if f, ok := a.reactors[postID]; ok {
		return f
	}
	name := "reactions:" + postID
	f := domain.NewFeed[domain.Reaction, struct{}](name, gateway.ReactionSource{Client: a.client, PostID: postID}, a.session, a.feedOptions(name, domain.ReactionPageSize)...)
	a.reactors[postID] = f
	return f
}

// Reactions returns the caller's reaction toggle for a post. Call Load on it
// with the post's counts before showing it.
func (a *App) Reactions(postID string) *domain.ReactionToggle {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t, ok := a.reactions[postID]; ok {
		return t
	}
	t := domain.NewReactionToggle(postID, nil, a.client, a.session, a.logger)
	a.reactions[postID] = t
	return t
}

// gate is a channel closed at most once.
type gate struct {
	once sync.Once
	ch   chan struct{}
}

func newGate() *gate {
	return &gate{ch: make(chan struct{})}
}

func (g *gate) open() {
	g.once.Do(func() { close(g.ch) })
}
