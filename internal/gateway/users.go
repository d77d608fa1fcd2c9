package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/Mazart23/pet-book/internal/domain"
)

// SignupRequest is the body of POST /user/signup.
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone,omitempty"`
}

// ProfileUpdate is the body of PUT /user/self. Empty fields are left
// unchanged.
type ProfileUpdate struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Bio      string `json:"bio,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Password string `json:"password,omitempty"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
}

type pictureResponse struct {
	ProfilePictureURL string `json:"profile_picture_url"`
}

// Login exchanges a username and password for a bearer token. It implements
// domain.Authenticator.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var resp loginResponse
	if err := c.do(ctx, http.MethodPost, "/user/login", "", nil, loginRequest{Username: username, Password: password}, &resp); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("login: empty access token: %w", domain.ErrServer)
	}
	return resp.AccessToken, nil
}

// Signup registers a new account.
func (c *Client) Signup(ctx context.Context, req SignupRequest) error {
	if err := c.do(ctx, http.MethodPost, "/user/signup", "", nil, req, nil); err != nil {
		return fmt.Errorf("signup: %w", err)
	}
	return nil
}

// Self returns the authenticated user's profile.
func (c *Client) Self(ctx context.Context, token string) (*domain.User, error) {
	var user domain.User
	if err := c.do(ctx, http.MethodGet, "/user/self", token, nil, nil, &user); err != nil {
		return nil, fmt.Errorf("get self: %w", err)
	}
	return &user, nil
}

// UpdateSelf edits the authenticated user's profile.
func (c *Client) UpdateSelf(ctx context.Context, token string, update ProfileUpdate) error {
	if err := c.do(ctx, http.MethodPut, "/user/self", token, nil, update, nil); err != nil {
		return fmt.Errorf("update self: %w", err)
	}
	return nil
}

// UserByUsername returns a public profile. It doubles as the username search.
func (c *Client) UserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	q := url.Values{"username": {username}}
	if err := c.do(ctx, http.MethodGet, "/user", "", q, nil, &user); err != nil {
		return nil, fmt.Errorf("get user %q: %w", username, err)
	}
	return &user, nil
}

// ProfilePicture returns the picture URL of a user, empty if none is set.
// Results are cached per user id; uploads and deletes through this client
// invalidate the caller's entry.
func (c *Client) ProfilePicture(ctx context.Context, userID string) (string, error) {
	if u, ok := c.pictures.Get(userID); ok {
		return u, nil
	}

	var resp pictureResponse
	q := url.Values{"user_id": {userID}}
	if err := c.do(ctx, http.MethodGet, "/user/user-picture", "", q, nil, &resp); err != nil {
		return "", fmt.Errorf("get profile picture: %w", err)
	}
	c.pictures.Add(userID, resp.ProfilePictureURL)
	return resp.ProfilePictureURL, nil
}

// UploadProfilePicture replaces the caller's picture with the image read from
// r and returns its new URL.
func (c *Client) UploadProfilePicture(ctx context.Context, token, userID, filename string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("picture", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("copy picture: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	var resp pictureResponse
	if err := c.send(ctx, http.MethodPut, "/user/user-picture", token, nil, &buf, mw.FormDataContentType(), &resp); err != nil {
		return "", fmt.Errorf("upload profile picture: %w", err)
	}
	if userID != "" {
		c.pictures.Add(userID, resp.ProfilePictureURL)
	}
	return resp.ProfilePictureURL, nil
}

// DeleteProfilePicture removes the caller's picture.
func (c *Client) DeleteProfilePicture(ctx context.Context, token, userID string) error {
	if err := c.do(ctx, http.MethodDelete, "/user/user-picture", token, nil, nil, nil); err != nil {
		return fmt.Errorf("delete profile picture: %w", err)
	}
	if userID != "" {
		c.pictures.Remove(userID)
	}
	return nil
}
