package services

import (
	"context"

	"github.com/tbourn/scenario-chat/internal/webhook"
)

// Replier produces the bot reply to one prompt. A process uses exactly one
// implementation. Synchronous repliers return the text with pending=false;
// asynchronous ones return pending=true and the reply arrives later through
// ExchangeService.HandleCallback.
type Replier interface {
	Reply(ctx context.Context, req webhook.Request) (text string, pending bool, err error)
}

// isDeferred reports whether r answers through a later callback that has to
// find the stored user message.
func isDeferred(r Replier) bool {
	d, ok := r.(interface{ Deferred() bool })
	return ok && d.Deferred()
}

// SyncReplier answers through a blocking webhook call.
type SyncReplier struct {
	Client *webhook.SyncClient
}

// Reply implements Replier.
func (r SyncReplier) Reply(ctx context.Context, req webhook.Request) (string, bool, error) {
	text, err := r.Client.Reply(ctx, req)
	return text, false, err
}

// RelayReplier hands the prompt to the relay and returns at once.
type RelayReplier struct {
	Client *webhook.RelayClient
}

// Reply implements Replier.
func (r RelayReplier) Reply(ctx context.Context, req webhook.Request) (string, bool, error) {
	return "", true, r.Client.Dispatch(ctx, req)
}

// Deferred reports that replies arrive through the callback.
func (RelayReplier) Deferred() bool { return true }
