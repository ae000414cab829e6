// Package api is the HTTP client for the Bitcoin GPT backend. The
// backend is a black box: this package only knows methods, paths and
// the documented request/response shapes in internal/dto.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"bitcoin-gpt-client/internal/dto"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TokenSource supplies the bearer token for authenticated requests.
// The credential store implements it; the client never mutates tokens.
type TokenSource interface {
	Token() string
}

type Client struct {
	baseURL string
	httpc   *http.Client
	tokens  TokenSource
	tracer  trace.Tracer
}

func NewClient(baseURL string, timeout time.Duration, tokens TokenSource) *Client {
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
		tokens:  tokens,
		tracer:  otel.Tracer("bitcoin-gpt-client/api"),
	}
}

type errorEnvelope struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// do sends one JSON request. authed requests carry the current bearer
// token. out may be nil when the caller only cares about success.
func (c *Client) do(ctx context.Context, method, path string, authed bool, body interface{}, out interface{}) error {
	ctx, span := c.tracer.Start(ctx, method+" "+path)
	defer span.End()
	span.SetAttributes(attribute.String("http.method", method), attribute.String("http.route", path))

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if authed && c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope errorEnvelope
		_ = json.Unmarshal(respBody, &envelope)
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Message:    envelope.Message,
			Detail:     envelope.Detail,
		}
		span.SetStatus(codes.Error, apiErr.Text())
		return apiErr
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode %s %s response: %w", method, path, err)
		}
	}
	return nil
}

// --- Authentication ---

func (c *Client) Login(ctx context.Context, req *dto.LoginRequest) (*dto.LoginResponse, error) {
	var res dto.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/authentication/login", false, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.RegisterResponse, error) {
	var res dto.RegisterResponse
	if err := c.do(ctx, http.MethodPost, "/api/authentication/register", false, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) VerifyOtp(ctx context.Context, req *dto.VerifyOtpRequest) (*dto.VerifyOtpResponse, error) {
	var res dto.VerifyOtpResponse
	if err := c.do(ctx, http.MethodPost, "/api/authentication/verify-otp", false, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ResendOtp(ctx context.Context, req *dto.ResendOtpRequest) (*dto.ResendOtpResponse, error) {
	var res dto.ResendOtpResponse
	if err := c.do(ctx, http.MethodPost, "/api/authentication/resend-otp", false, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ForgotPassword(ctx context.Context, req *dto.ForgotPasswordRequest) (*dto.ForgotPasswordResponse, error) {
	var res dto.ForgotPasswordResponse
	if err := c.do(ctx, http.MethodPost, "/api/authentication/forgot-password", false, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ResetPassword(ctx context.Context, req *dto.ResetPasswordRequest) (*dto.ResetPasswordResponse, error) {
	var res dto.ResetPasswordResponse
	if err := c.do(ctx, http.MethodPost, "/api/authentication/reset-password", false, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// --- Sessions ---

func (c *Client) CreateSession(ctx context.Context) (string, error) {
	var res dto.CreateSessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/sessions/new", true, nil, &res); err != nil {
		return "", err
	}
	return res.NewSessionId(), nil
}

func (c *Client) ListSessions(ctx context.Context) ([]dto.Session, error) {
	// The list endpoint has returned both a bare array and a wrapped
	// object; accept either.
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/sessions", true, nil, &raw); err != nil {
		return nil, err
	}

	var sessions []dto.Session
	if err := json.Unmarshal(raw, &sessions); err == nil {
		return sessions, nil
	}
	var wrapped dto.ListSessionsResponse
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode sessions list: %w", err)
	}
	return wrapped.Sessions, nil
}

func (c *Client) DeleteSession(ctx context.Context, sessionId string) error {
	return c.do(ctx, http.MethodDelete, "/api/sessions/"+sessionId, true, nil, nil)
}

func (c *Client) RenameSession(ctx context.Context, sessionId, title string) error {
	req := dto.RenameSessionRequest{Title: title}
	return c.do(ctx, http.MethodPatch, "/api/sessions/"+sessionId, true, &req, nil)
}

// --- Chat ---

func (c *Client) SendChat(ctx context.Context, sessionId, message string) (*dto.SendChatResponse, error) {
	req := dto.SendChatRequest{Message: message}
	var res dto.SendChatResponse
	if err := c.do(ctx, http.MethodPost, "/api/sessions/"+sessionId+"/chat", true, &req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// --- Feedback ---

func (c *Client) SubmitFeedback(ctx context.Context, req *dto.FeedbackRequest) error {
	return c.do(ctx, http.MethodPost, "/api/user/feedback", true, req, nil)
}
