package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Mazart23/pet-book/internal/domain"
)

// PostQuery selects a page of posts. Empty fields are not sent.
type PostQuery struct {
	// UserID restricts the page to one author.
	UserID string
	// Content is a full-text search term.
	Content       string
	Limit         int
	LastTimestamp string
}

// postList accepts both a bare array and the {"posts": [...]} envelope the
// controller uses for GET /post.
type postList []domain.Post

func (l *postList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		return json.Unmarshal(b, (*[]domain.Post)(l))
	}
	var env struct {
		Posts []domain.Post `json:"posts"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	*l = env.Posts
	return nil
}

type postIDRequest struct {
	PostID string `json:"post_id"`
}

// Posts returns a newest-first page of posts.
func (c *Client) Posts(ctx context.Context, token string, q PostQuery) ([]domain.Post, error) {
	params := pageQuery("limit", q.Limit, q.LastTimestamp)
	if q.UserID != "" {
		params.Set("user_id", q.UserID)
	}
	if q.Content != "" {
		params.Set("content", q.Content)
	}

	var posts postList
	if err := c.do(ctx, http.MethodGet, "/post", token, params, nil, &posts); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// Post returns a single post.
func (c *Client) Post(ctx context.Context, token, postID string) (*domain.Post, error) {
	var post domain.Post
	q := url.Values{"post_id": {postID}}
	if err := c.do(ctx, http.MethodGet, "/post/single", token, q, nil, &post); err != nil {
		return nil, fmt.Errorf("get post %s: %w", postID, err)
	}
	return &post, nil
}

// CreatePost publishes a post and returns it as stored by the backend.
func (c *Client) CreatePost(ctx context.Context, token string, p domain.NewPost) (*domain.Post, error) {
	var post domain.Post
	if err := c.do(ctx, http.MethodPut, "/post/", token, nil, p, &post); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return &post, nil
}

// DeletePost removes one of the caller's posts.
func (c *Client) DeletePost(ctx context.Context, token, postID string) error {
	if err := c.do(ctx, http.MethodDelete, "/post/posts", token, nil, postIDRequest{PostID: postID}, nil); err != nil {
		return fmt.Errorf("delete post %s: %w", postID, err)
	}
	return nil
}

// SearchPosts returns posts whose content matches term.
func (c *Client) SearchPosts(ctx context.Context, token, term string, limit int) ([]domain.Post, error) {
	return c.Posts(ctx, token, PostQuery{Content: term, Limit: limit})
}
