package gateway

import (
	"context"

	"github.com/Mazart23/pet-book/internal/domain"
)

var (
	_ domain.Source[domain.Post, domain.NewPost]       = PostSource{}
	_ domain.Source[domain.Comment, domain.NewComment] = CommentSource{}
	_ domain.Source[domain.Notification, struct{}]     = NotificationSource{}
	_ domain.Source[domain.Reaction, struct{}]         = ReactionSource{}
	_ domain.ReactionGateway                           = (*Client)(nil)
	_ domain.Authenticator                             = (*Client)(nil)
)

// PostSource backs a post feed: the global timeline, or one author's posts
// when UserID is set.
type PostSource struct {
	Client *Client
	UserID string
}

func (s PostSource) Fetch(ctx context.Context, token, before string, limit int) ([]domain.Post, error) {
	return s.Client.Posts(ctx, token, PostQuery{UserID: s.UserID, Limit: limit, LastTimestamp: before})
}

func (s PostSource) Create(ctx context.Context, token string, p domain.NewPost) (domain.Post, error) {
	post, err := s.Client.CreatePost(ctx, token, p)
	if err != nil {
		return domain.Post{}, err
	}
	return *post, nil
}

func (s PostSource) Delete(ctx context.Context, token string, p domain.Post) error {
	return s.Client.DeletePost(ctx, token, p.ID)
}

// CommentSource backs the comment feed of one post.
type CommentSource struct {
	Client *Client
	PostID string
}

func (s CommentSource) Fetch(ctx context.Context, token, before string, limit int) ([]domain.Comment, error) {
	return s.Client.Comments(ctx, token, s.PostID, before, limit)
}

func (s CommentSource) Create(ctx context.Context, token string, c domain.NewComment) (domain.Comment, error) {
	comment, err := s.Client.CreateComment(ctx, token, s.PostID, c.Content)
	if err != nil {
		return domain.Comment{}, err
	}
	return *comment, nil
}

func (s CommentSource) Delete(ctx context.Context, token string, c domain.Comment) error {
	return s.Client.DeleteComment(ctx, token, c.ID)
}

// NotificationSource backs the caller's notification feed. Notifications are
// created by the backend only.
type NotificationSource struct {
	Client *Client
}

func (s NotificationSource) Fetch(ctx context.Context, token, before string, limit int) ([]domain.Notification, error) {
	return s.Client.Notifications(ctx, token, before, limit)
}

func (NotificationSource) Create(context.Context, string, struct{}) (domain.Notification, error) {
	return domain.Notification{}, domain.ErrUnsupported
}

func (s NotificationSource) Delete(ctx context.Context, token string, n domain.Notification) error {
	return s.Client.DeleteNotification(ctx, token, n)
}

// ReactionSource lists who reacted to a post. It is read-only; the caller's
// own reaction goes through a ReactionToggle.
type ReactionSource struct {
	Client *Client
	PostID string
}

func (s ReactionSource) Fetch(ctx context.Context, token, before string, limit int) ([]domain.Reaction, error) {
	return s.Client.Reactions(ctx, token, s.PostID, before, limit)
}

func (ReactionSource) Create(context.Context, string, struct{}) (domain.Reaction, error) {
	return domain.Reaction{}, domain.ErrUnsupported
}

func (ReactionSource) Delete(context.Context, string, domain.Reaction) error {
	return domain.ErrUnsupported
}
