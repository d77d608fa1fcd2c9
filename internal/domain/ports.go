package domain

import "context"

// CredentialRepository defines persistence for the session credential.
type CredentialRepository interface {
	// LoadCredential returns the persisted credential. Returns a zero
	// Credential and nil error if none has been saved.
	LoadCredential(ctx context.Context) (Credential, error)

	// SaveCredential replaces the persisted credential.
	SaveCredential(ctx context.Context, cred Credential) error

	// ClearCredential removes the persisted credential.
	ClearCredential(ctx context.Context) error
}

// CredentialProvider exposes the current bearer token to components that make
// authenticated calls.
type CredentialProvider interface {
	// Token returns the current credential and whether one is present.
	Token() (string, bool)
}

// Authenticator exchanges user credentials for a bearer token.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, error)
}

// Source is the remote side of a Feed: paginated history plus create and
// delete. Fetch returns items strictly older than before (all newest items when
// before is empty), newest-first, at most limit of them.
type Source[T Item, P any] interface {
	Fetch(ctx context.Context, token, before string, limit int) ([]T, error)
	Create(ctx context.Context, token string, payload P) (T, error)
	Delete(ctx context.Context, token string, item T) error
}

// ReactionGateway is the remote side of a ReactionToggle.
type ReactionGateway interface {
	// Reaction returns the caller's reaction on a post, or nil if none.
	Reaction(ctx context.Context, token, postID string) (*Reaction, error)

	// PutReaction creates or replaces the caller's reaction on a post.
	PutReaction(ctx context.Context, token, postID string, kind ReactionKind) error

	// DeleteReaction removes the caller's reaction on a post.
	DeleteReaction(ctx context.Context, token, postID string) error
}
