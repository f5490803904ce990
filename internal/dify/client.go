// Package dify provides a blocking client for the Dify service API.
package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/RobertDiep/dify-slackbot/internal/model"
	"github.com/RobertDiep/dify-slackbot/pkg/metrics"
	"github.com/RobertDiep/dify-slackbot/pkg/tracing"
)

const (
	responseModeBlocking = "blocking"

	// maxResponseBytes bounds how much of a Dify response is read.
	maxResponseBytes = 4 << 20
)

// ErrUnsupportedKind is returned for backend kinds the client cannot invoke.
var ErrUnsupportedKind = errors.New("unsupported dify backend type")

// APIError is a non-2xx response from Dify.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" && e.Message == "" {
		return fmt.Sprintf("dify api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("dify api error: status %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

// WorkflowError is a workflow run that completed with status "failed".
type WorkflowError struct {
	RunID   string
	Message string
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("dify workflow run %s failed: %s", e.RunID, e.Message)
}

// Options configures a Client.
type Options struct {
	// BaseURL is the service API root, e.g. https://api.dify.ai/v1.
	BaseURL string
	// AppKeys maps backend IDs to app API keys. IDs without an entry are
	// used as the API key directly.
	AppKeys map[string]string
	// Timeout bounds each call. Zero means no client-side timeout.
	Timeout time.Duration
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client invokes Dify chatflow and workflow apps.
type Client struct {
	baseURL string
	appKeys map[string]string
	http    *http.Client
}

// NewClient creates a new Dify client.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("dify base URL is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		baseURL: base,
		appKeys: opts.AppKeys,
		http:    httpClient,
	}, nil
}

// Invoke runs the app identified by (kind, backendID) with message and
// returns its answer. An empty conversationID starts a new conversation.
// Errors are returned as is; the caller decides how to degrade.
func (c *Client) Invoke(ctx context.Context, kind model.BackendKind, backendID, message, conversationID, user string) (model.BackendReply, error) {
	ctx, span := tracing.Tracer().Start(ctx, "dify.invoke")
	defer span.End()
	span.SetAttributes(
		attribute.String("dify.kind", string(kind)),
		attribute.Bool("dify.continues_conversation", conversationID != ""),
	)

	start := time.Now()
	var (
		reply model.BackendReply
		err   error
	)
	switch kind {
	case model.BackendChatflow:
		reply, err = c.chat(ctx, backendID, message, conversationID, user)
	case model.BackendWorkflow:
		reply, err = c.runWorkflow(ctx, backendID, user)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	metrics.RecordBackend(string(kind), status, time.Since(start).Seconds())

	return reply, err
}

func (c *Client) chat(ctx context.Context, appID, message, conversationID, user string) (model.BackendReply, error) {
	req := chatRequest{
		Inputs:         map[string]any{},
		Query:          message,
		ResponseMode:   responseModeBlocking,
		ConversationID: conversationID,
		User:           user,
	}

	var resp chatResponse
	if err := c.post(ctx, appID, "/chat-messages", req, &resp); err != nil {
		return model.BackendReply{}, err
	}

	return model.BackendReply{
		Answer:         resp.Answer,
		ConversationID: resp.ConversationID,
	}, nil
}

// runWorkflow starts a workflow with empty inputs. Workflows that require
// inputs fail on the Dify side and that error is returned unchanged.
func (c *Client) runWorkflow(ctx context.Context, appID, user string) (model.BackendReply, error) {
	req := workflowRequest{
		Inputs:       map[string]any{},
		ResponseMode: responseModeBlocking,
		User:         user,
	}

	var resp workflowResponse
	if err := c.post(ctx, appID, "/workflows/run", req, &resp); err != nil {
		return model.BackendReply{}, err
	}

	if resp.Data.Status == "failed" {
		return model.BackendReply{}, &WorkflowError{RunID: resp.WorkflowRunID, Message: resp.Data.Error}
	}

	return model.BackendReply{Answer: workflowAnswer(resp.Data.Outputs)}, nil
}

// workflowAnswer picks the text to post from workflow outputs.
func workflowAnswer(outputs map[string]any) string {
	for _, key := range []string{"answer", "text", "result"} {
		if s, ok := outputs[key].(string); ok {
			return s
		}
	}
	if len(outputs) == 0 {
		return ""
	}
	b, err := json.Marshal(outputs)
	if err != nil {
		return fmt.Sprint(outputs)
	}
	return string(b)
}

func (c *Client) post(ctx context.Context, appID, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey(appID))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("dify request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read dify response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var er errorResponse
		if json.Unmarshal(data, &er) == nil {
			apiErr.Code = er.Code
			apiErr.Message = er.Message
		}
		return apiErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode dify response: %w", err)
	}
	return nil
}

func (c *Client) apiKey(appID string) string {
	if key, ok := c.appKeys[appID]; ok {
		return key
	}
	return appID
}
