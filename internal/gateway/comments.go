package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Mazart23/pet-book/internal/domain"
)

type newCommentRequest struct {
	PostID  string `json:"post_id"`
	Content string `json:"content"`
}

type commentIDRequest struct {
	CommentID string `json:"comment_id"`
}

// Comments returns a newest-first page of a post's comments older than
// lastTimestamp.
func (c *Client) Comments(ctx context.Context, token, postID, lastTimestamp string, quantity int) ([]domain.Comment, error) {
	q := pageQuery("quantity", quantity, lastTimestamp)
	q.Set("post_id", postID)

	var comments []domain.Comment
	if err := c.do(ctx, http.MethodGet, "/comment/", token, q, nil, &comments); err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

// CreateComment adds a comment and returns it as stored by the backend.
func (c *Client) CreateComment(ctx context.Context, token, postID, content string) (*domain.Comment, error) {
	var comment domain.Comment
	body := newCommentRequest{PostID: postID, Content: content}
	if err := c.do(ctx, http.MethodPut, "/comment/", token, nil, body, &comment); err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}
	if comment.PostID == "" {
		comment.PostID = postID
	}
	return &comment, nil
}

// DeleteComment removes one of the caller's comments.
func (c *Client) DeleteComment(ctx context.Context, token, commentID string) error {
	if err := c.do(ctx, http.MethodDelete, "/comment/", token, nil, commentIDRequest{CommentID: commentID}, nil); err != nil {
		return fmt.Errorf("delete comment %s: %w", commentID, err)
	}
	return nil
}
