// Package apiclient is a small JSON client for the chess service REST
// surface, built on fasthttp.
package apiclient

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/kr1s01/cfuv-chess/pkg/chessdto"
)

// APIError carries the HTTP status and server-reported message of a
// failed call.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d message=%q", e.Status, e.Message)
}

type Client struct {
	baseURL string
	http    *fasthttp.Client
	timeout time.Duration
	token   string
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &fasthttp.Client{
			MaxConnsPerHost:     64,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 30 * time.Second,
		},
		timeout: 10 * time.Second,
	}
}

// SetToken sets the bearer token used on authenticated calls.
func (c *Client) SetToken(token string) { c.token = token }

func (c *Client) Register(username, email, password string) (*chessdto.Player, error) {
	var out chessdto.Player
	req := chessdto.RegisterRequest{Username: username, Email: email, Password: password}
	if err := c.doJSON(fasthttp.MethodPost, "/register", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login authenticates and keeps the returned token on the client.
func (c *Client) Login(username, password string) (string, error) {
	var out chessdto.TokenResponse
	req := chessdto.LoginRequest{Username: username, Password: password}
	if err := c.doJSON(fasthttp.MethodPost, "/login", req, &out); err != nil {
		return "", err
	}
	c.token = out.Token
	return out.Token, nil
}

func (c *Client) Me() (*chessdto.Player, error) {
	var out chessdto.Player
	if err := c.doJSON(fasthttp.MethodGet, "/users/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Ratings() ([]chessdto.RatingEntry, error) {
	var out []chessdto.RatingEntry
	if err := c.doJSON(fasthttp.MethodGet, "/ratings", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UserHistory(userID string) ([]chessdto.Game, error) {
	var out []chessdto.Game
	if err := c.doJSON(fasthttp.MethodGet, "/users/"+userID+"/history", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Games() ([]chessdto.Game, error) {
	var out []chessdto.Game
	if err := c.doJSON(fasthttp.MethodGet, "/games", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateGame() (*chessdto.Game, error) {
	var out chessdto.Game
	if err := c.doJSON(fasthttp.MethodPost, "/games", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) JoinGame(gameID string) (*chessdto.Game, error) {
	var out chessdto.Game
	if err := c.doJSON(fasthttp.MethodPost, "/games/"+gameID+"/join", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetGame(gameID string) (*chessdto.Game, error) {
	var out chessdto.Game
	if err := c.doJSON(fasthttp.MethodGet, "/games/"+gameID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Move(gameID, notation string) (*chessdto.Move, error) {
	var out chessdto.Move
	req := chessdto.MoveRequest{Notation: notation}
	if err := c.doJSON(fasthttp.MethodPost, "/games/"+gameID+"/move", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GameHistory(gameID string) ([]chessdto.Move, error) {
	var out []chessdto.Move
	if err := c.doJSON(fasthttp.MethodGet, "/games/"+gameID+"/history", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) doJSON(method, path string, in, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		req.SetBodyRaw(body)
	}

	if err := c.http.DoTimeout(req, resp, c.timeout); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	status := resp.StatusCode()
	if status >= fasthttp.StatusBadRequest {
		var fail chessdto.ErrorResponse
		_ = json.Unmarshal(resp.Body(), &fail)
		return &APIError{Status: status, Message: fail.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
