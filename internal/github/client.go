// Package github links wishlists to a wishlist.json file in a GitHub
// repository and keeps the two in sync.
package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"wishlistbuilder/internal/apperr"
	"wishlistbuilder/internal/metrics"
)

// WishlistPath is the file every linked repository carries.
const WishlistPath = "wishlist.json"

var repoPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// ValidRepo reports whether repo looks like "owner/name".
func ValidRepo(repo string) bool {
	return repoPattern.MatchString(repo)
}

// RemoteFile is a decoded file and the blob SHA GitHub reported for it.
type RemoteFile struct {
	Content []byte
	SHA     string
}

type Client struct {
	client *resty.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Accept", "application/vnd.github.v3+json"),
	}
}

type contentsResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	SHA      string `json:"sha"`
}

type apiError struct {
	Message string `json:"message"`
}

func (c *Client) request(ctx context.Context, token string) *resty.Request {
	req := c.client.R().SetContext(ctx)
	if token != "" {
		req.SetAuthToken(token)
	}
	return req
}

func statusError(what string, resp *resty.Response, apiErr *apiError) error {
	metrics.UpstreamRequests.WithLabelValues("github", metrics.StatusClass(resp.StatusCode())).Inc()
	switch resp.StatusCode() {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", what, apperr.ErrNotFound)
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s: remote file changed (%s)", apperr.ErrConflict, what, apiErr.Message)
	default:
		return fmt.Errorf("%w: %s: status %d %s", apperr.ErrUpstream, what, resp.StatusCode(), apiErr.Message)
	}
}

// FetchWishlist checks that the repository exists and downloads its
// wishlist file.
func (c *Client) FetchWishlist(ctx context.Context, repo, token string) (*RemoteFile, error) {
	if !ValidRepo(repo) {
		return nil, fmt.Errorf("%w: repository must be owner/name, got %q", apperr.ErrInvalidInput, repo)
	}

	var apiErr apiError
	resp, err := c.request(ctx, token).
		SetError(&apiErr).
		SetRawPathParam("repo", repo).
		Get("/repos/{repo}")
	if err != nil {
		return nil, fmt.Errorf("%w: repository request: %v", apperr.ErrUpstream, err)
	}
	if err := statusError("repository "+repo, resp, &apiErr); err != nil {
		return nil, err
	}

	var file contentsResponse
	resp, err = c.request(ctx, token).
		SetResult(&file).
		SetError(&apiErr).
		SetRawPathParams(map[string]string{"repo": repo, "path": WishlistPath}).
		Get("/repos/{repo}/contents/{path}")
	if err != nil {
		return nil, fmt.Errorf("%w: contents request: %v", apperr.ErrUpstream, err)
	}
	if err := statusError(repo+"/"+WishlistPath, resp, &apiErr); err != nil {
		return nil, err
	}

	// GitHub wraps the base64 payload at 60 columns.
	raw := strings.ReplaceAll(file.Content, "\n", "")
	content, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not valid base64: %v", apperr.ErrUpstream, WishlistPath, err)
	}
	return &RemoteFile{Content: content, SHA: file.SHA}, nil
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
}

type putResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
}

// PutWishlist overwrites the wishlist file. sha must be the blob the caller
// last saw; GitHub rejects the write when the file has moved on.
func (c *Client) PutWishlist(ctx context.Context, repo, token, message string, content []byte, sha string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: missing github token", apperr.ErrInvalidInput)
	}

	var result putResponse
	var apiErr apiError
	resp, err := c.request(ctx, token).
		SetBody(putRequest{
			Message: message,
			Content: base64.StdEncoding.EncodeToString(content),
			SHA:     sha,
		}).
		SetResult(&result).
		SetError(&apiErr).
		SetRawPathParams(map[string]string{"repo": repo, "path": WishlistPath}).
		Put("/repos/{repo}/contents/{path}")
	if err != nil {
		return "", fmt.Errorf("%w: update request: %v", apperr.ErrUpstream, err)
	}
	if err := statusError(repo+"/"+WishlistPath, resp, &apiErr); err != nil {
		return "", err
	}
	return result.Content.SHA, nil
}
