package domain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Session owns the current credential. It keeps the credential in memory,
// mirrors it to a CredentialRepository, and notifies subscribers on every
// change so the push channel can reconnect.
type Session struct {
	repo   CredentialRepository
	auth   Authenticator
	logger *slog.Logger
	now    func() time.Time

	// storeMu pairs each repository round-trip with the in-memory update
	storeMu sync.Mutex

	mu     sync.RWMutex
	cred   Credential
	subs   map[int]chan Credential
	nextID int
}

// NewSession creates a Session with no credential. Call Restore to load a
// persisted one.
func NewSession(repo CredentialRepository, auth Authenticator, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		repo:   repo,
		auth:   auth,
		logger: logger,
		now:    time.Now,
		subs:   make(map[int]chan Credential),
	}
}

// Restore loads the persisted credential. Expired credentials are cleared
// from the repository instead of being restored.
func (s *Session) Restore(ctx context.Context) error {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	cred, err := s.repo.LoadCredential(ctx)
	if err != nil {
		return fmt.Errorf("load credential: %w", err)
	}
	if cred.IsZero() {
		return nil
	}

	if cred.Expired(s.now()) {
		s.logger.Info("persisted credential expired, discarding",
			"subject", cred.Subject,
			"expired_at", cred.ExpiresAt,
		)
		if err := s.repo.ClearCredential(ctx); err != nil {
			return fmt.Errorf("clear expired credential: %w", err)
		}
		return nil
	}

	s.set(cred)
	s.logger.Info("session restored", "subject", cred.Subject)
	return nil
}

// Login authenticates against the backend and stores the issued credential.
func (s *Session) Login(ctx context.Context, username, password string) error {
	token, err := s.auth.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return s.Set(ctx, token)
}

// Set stores token as the current credential.
func (s *Session) Set(ctx context.Context, token string) error {
	cred := ParseCredential(token)
	if cred.IsZero() {
		return fmt.Errorf("empty credential: %w", ErrUnauthorized)
	}
	cred.SavedAt = s.now().UTC()

	s.storeMu.Lock()
	defer s.storeMu.Unlock()
	if err := s.repo.SaveCredential(ctx, cred); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	s.set(cred)
	s.logger.Info("logged in", "subject", cred.Subject)
	return nil
}

// Logout destroys the credential in memory and in the repository. The
// in-memory credential is dropped even if the repository fails.
func (s *Session) Logout(ctx context.Context) error {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	s.set(Credential{})
	if err := s.repo.ClearCredential(ctx); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	s.logger.Info("logged out")
	return nil
}

// Sync re-reads the repository so that a login or logout made by another
// process sharing it takes effect here. Subscribers are notified only when
// the token changes. An expired stored credential counts as absent.
func (s *Session) Sync(ctx context.Context) error {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	cred, err := s.repo.LoadCredential(ctx)
	if err != nil {
		return fmt.Errorf("load credential: %w", err)
	}
	if cred.Expired(s.now()) {
		cred = Credential{}
	}
	if cred.Token == s.Credential().Token {
		return nil
	}

	s.set(cred)
	if cred.IsZero() {
		s.logger.Info("credential removed from store, logged out")
	} else {
		s.logger.Info("credential changed in store", "subject", cred.Subject)
	}
	return nil
}

// Token implements CredentialProvider. An expired credential counts as absent.
func (s *Session) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred.IsZero() || s.cred.Expired(s.now()) {
		return "", false
	}
	return s.cred.Token, true
}

// Credential returns the current credential, zero if logged out.
func (s *Session) Credential() Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred
}

// Subscribe returns a channel that receives the credential after every change
// (a zero Credential on logout). Only the latest value is kept if the
// receiver falls behind. Call cancel to stop receiving.
func (s *Session) Subscribe() (updates <-chan Credential, cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Credential, 1)
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Session) set(cred Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cred = cred
	for _, ch := range s.subs {
		select {
		case ch <- cred:
		default:
			// drop the stale value so the latest one fits
			select {
			case <-ch:
			default:
			}
			ch <- cred
		}
	}
}
