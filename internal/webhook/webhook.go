// Package webhook talks to the external reply generator. Two integrations
// exist: a synchronous webhook whose response body is the reply, and an
// asynchronous relay that acknowledges immediately and posts the reply back
// to a callback URL later.
package webhook

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HeaderSecret carries the shared secret on relay requests and callbacks.
const HeaderSecret = "X-Webhook-Secret"

// maxBody caps how much of a reply or error body is read.
const maxBody = 1 << 20

// ErrReplyTooLarge is returned when a reply body exceeds maxBody.
var ErrReplyTooLarge = errors.New("webhook: reply exceeds 1 MiB")

// Request is one prompt to answer.
type Request struct {
	ConversationID string
	MessageID      string
	SystemMessage  string
	Message        string
	User           string
}

// Callback is the body the relay posts back once a reply is ready.
type Callback struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	AIText         string `json:"aiText"`
}

// SecretMatches compares secrets in constant time. An empty expected secret
// never matches.
func SecretMatches(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func newHTTPClient(timeout time.Duration) *http.Client {
	// Timeout 0 means no client-side limit; the request context still applies.
	return &http.Client{Timeout: timeout}
}

// SyncClient posts {systemMessage, message, user} and treats the raw
// response text as the reply.
type SyncClient struct {
	URL  string
	HTTP *http.Client
}

// NewSyncClient builds a SyncClient. timeout may be zero.
func NewSyncClient(url string, timeout time.Duration) *SyncClient {
	return &SyncClient{URL: url, HTTP: newHTTPClient(timeout)}
}

// Reply sends req and returns the response body verbatim. Non-2xx statuses
// are errors.
func (c *SyncClient) Reply(ctx context.Context, req Request) (string, error) {
	payload := map[string]string{
		"systemMessage": req.SystemMessage,
		"message":       req.Message,
		"user":          req.User,
	}
	body, err := postJSON(ctx, c.HTTP, c.URL, payload, nil)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// RelayClient hands prompts to the relay, which answers on CallbackURL.
type RelayClient struct {
	URL         string
	Secret      string
	CallbackURL string
	HTTP        *http.Client
}

// NewRelayClient builds a RelayClient. timeout may be zero.
func NewRelayClient(url, secret, callbackURL string, timeout time.Duration) *RelayClient {
	return &RelayClient{URL: url, Secret: secret, CallbackURL: callbackURL, HTTP: newHTTPClient(timeout)}
}

// Dispatch enqueues req with the relay. Only the acknowledgement is awaited.
func (c *RelayClient) Dispatch(ctx context.Context, req Request) error {
	payload := map[string]string{
		"conversationId": req.ConversationID,
		"messageId":      req.MessageID,
		"text":           req.Message,
		"systemMessage":  req.SystemMessage,
		"user":           req.User,
		"callbackUrl":    c.CallbackURL,
	}
	h := http.Header{}
	h.Set(HeaderSecret, c.Secret)
	_, err := postJSON(ctx, c.HTTP, c.URL, payload, h)
	return err
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any, header http.Header) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("webhook HTTP %d: %s", resp.StatusCode, truncate(string(body), 256))
	}
	if len(body) > maxBody {
		return nil, ErrReplyTooLarge
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
