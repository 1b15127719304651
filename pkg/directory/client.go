// Package directory resolves usernames to contact details over HTTP
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-hclog"

	"github.com/anggasct/exflow"
	"github.com/anggasct/exflow/pkg/config"
	"github.com/anggasct/exflow/pkg/httpclient"
)

// Client looks users up at GET {base_url}/users/{username}
type Client struct {
	BaseURL string
	Logger  hclog.Logger

	resty *resty.Client
}

var _ exflow.Directory = (*Client)(nil)

// user is the directory's wire representation
type user struct {
	Username   string `json:"username"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Department string `json:"department"`
	Title      string `json:"title"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
}

// errorBody is returned by the directory on failures
type errorBody struct {
	Message string `json:"message"`
}

// New creates a directory client
func New(logger hclog.Logger, cfg config.Directory) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, exflow.NewConfigurationError("directory", "base_url is required")
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	client := httpclient.New(logger, cfg.HTTPClient)
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	return &Client{
		BaseURL: strings.TrimRight(cfg.BaseURL, "/"),
		Logger:  logger,
		resty:   client,
	}, nil
}

// LookupUser returns the contact for username. An unknown user is a NotFoundError.
func (c *Client) LookupUser(ctx context.Context, username string) (exflow.Contact, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return exflow.Contact{}, exflow.NewValidationError("username", "username required")
	}

	resp, err := c.resty.R().
		SetContext(ctx).
		Get(c.BaseURL + "/users/" + url.PathEscape(username))
	if err != nil {
		return exflow.Contact{}, fmt.Errorf("directory lookup of %q failed: %w", username, err)
	}

	if resp.StatusCode() == http.StatusNotFound {
		return exflow.Contact{}, exflow.NewUserNotFoundError(username)
	}
	if resp.IsError() {
		var body errorBody
		if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Message != "" {
			return exflow.Contact{}, fmt.Errorf("directory lookup of %q failed with status code %d: %s", username, resp.StatusCode(), body.Message)
		}
		return exflow.Contact{}, fmt.Errorf("directory lookup of %q failed with status code %d", username, resp.StatusCode())
	}

	var u user
	if err := json.Unmarshal(resp.Body(), &u); err != nil {
		return exflow.Contact{}, fmt.Errorf("failed to unmarshal directory response: %w", err)
	}
	c.Logger.Debug("directory lookup", "username", username, "department", u.Department)

	return exflow.Contact{
		Username:   config.SetThen(u.Username, username),
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Department: u.Department,
		JobTitle:   u.Title,
		Email:      u.Email,
		Phone:      u.Phone,
	}, nil
}
