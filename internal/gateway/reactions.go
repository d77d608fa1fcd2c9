package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Mazart23/pet-book/internal/domain"
)

type putReactionRequest struct {
	PostID       string              `json:"post_id"`
	ReactionType domain.ReactionKind `json:"reaction_type"`
}

// Reaction returns the caller's reaction on a post, nil when there is none.
// It implements domain.ReactionGateway.
func (c *Client) Reaction(ctx context.Context, token, postID string) (*domain.Reaction, error) {
	var reaction *domain.Reaction
	q := url.Values{"post_id": {postID}}
	err := c.do(ctx, http.MethodGet, "/reaction/", token, q, nil, &reaction)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reaction: %w", err)
	}
	if reaction != nil && reaction.Type == "" {
		return nil, nil
	}
	return reaction, nil
}

// Reactions returns a newest-first page of reactions on a post.
func (c *Client) Reactions(ctx context.Context, token, postID, lastTimestamp string, quantity int) ([]domain.Reaction, error) {
	q := pageQuery("quantity", quantity, lastTimestamp)
	q.Set("post_id", postID)

	var reactions []domain.Reaction
	if err := c.do(ctx, http.MethodGet, "/reaction/many", token, q, nil, &reactions); err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}
	return reactions, nil
}

// PutReaction creates or replaces the caller's reaction on a post.
func (c *Client) PutReaction(ctx context.Context, token, postID string, kind domain.ReactionKind) error {
	body := putReactionRequest{PostID: postID, ReactionType: kind}
	if err := c.do(ctx, http.MethodPut, "/reaction/", token, nil, body, nil); err != nil {
		return fmt.Errorf("put reaction: %w", err)
	}
	return nil
}

// DeleteReaction removes the caller's reaction on a post.
func (c *Client) DeleteReaction(ctx context.Context, token, postID string) error {
	if err := c.do(ctx, http.MethodDelete, "/reaction/", token, nil, postIDRequest{PostID: postID}, nil); err != nil {
		return fmt.Errorf("delete reaction: %w", err)
	}
	return nil
}
