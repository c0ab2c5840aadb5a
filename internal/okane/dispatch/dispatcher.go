// Package dispatch implements the two-round conversation protocol that
// turns a free-text message into ledger operations and a reply envelope.
//
// Round 1 offers the capability catalog to the model as tool definitions;
// the model picks zero or more operations. The operations run concurrently,
// then round 2 feeds their results back and asks for a JSON reply envelope.
// The model never executes anything itself and its output is validated and
// normalized before it reaches a transport.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/okanebot/okane/internal/okane/catalog"
	"github.com/okanebot/okane/internal/okane/envelope"
	"github.com/okanebot/okane/internal/okane/executor"
	"github.com/okanebot/okane/internal/okane/llm"
	"github.com/okanebot/okane/internal/okane/observability"
	"github.com/okanebot/okane/internal/okane/timeframe"
)

// Runner executes one operation request. Satisfied by *executor.Executor.
type Runner interface {
	Execute(ctx context.Context, req executor.Request, ownerID string) executor.Result
}

// Dispatcher orchestrates the two model rounds for inbound messages.
// Safe for concurrent use.
type Dispatcher struct {
	provider llm.Provider
	catalog  *catalog.Catalog
	runner   Runner
	now      func() time.Time
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a Dispatcher over the given collaborators.
func New(provider llm.Provider, cat *catalog.Catalog, runner Runner, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		provider: provider,
		catalog:  cat,
		runner:   runner,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle processes one inbound message on behalf of ownerID and returns the
// reply envelope to send back. It never returns an error: every failure
// mode ends in a text envelope, worst case the fixed fallback reply.
func (d *Dispatcher) Handle(ctx context.Context, ownerID, text string) envelope.Reply {
	today := timeframe.DateOf(d.now()).String()
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: selectionPrompt(today)},
		{Role: llm.RoleUser, Content: text},
	}

	selection, err := d.provider.Complete(ctx, llm.CompletionRequest{
		Messages: messages,
		Tools:    d.catalog.ToolDefinitions(),
	})
	if err != nil {
		observability.WithTrace(ctx).Error("operation selection round failed", "owner", ownerID, "err", err)
		return envelope.Text(fallbackReply)
	}

	requests := decodeRequests(selection.Message.ToolCalls)
	if len(requests) == 0 {
		// The model answered directly; no second round needed.
		if selection.Message.Content == "" {
			return envelope.Text(fallbackReply)
		}
		return envelope.Text(selection.Message.Content)
	}

	results := d.executeAll(ctx, requests, ownerID)

	messages = append(messages, selection.Message)
	for i, res := range results {
		messages = append(messages, llm.Message{
			Role:       llm.RoleTool,
			ToolCallID: res.RequestID,
			Name:       requests[i].Name,
			Content:    res.JSON(),
		})
	}
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: synthesisPrompt})

	synthesis, err := d.provider.Complete(ctx, llm.CompletionRequest{
		Messages:     messages,
		JSONResponse: true,
	})
	if err != nil {
		observability.WithTrace(ctx).Error("reply synthesis round failed", "owner", ownerID, "err", err)
		return envelope.Text(fallbackReply)
	}

	reply := envelope.ParseOrText(synthesis.Message.Content)
	if reply.Content == "" {
		reply = envelope.Text(fallbackReply)
	}
	return attachChart(reply, results)
}

// decodeRequests converts the model's tool calls into operation requests.
// Calls with undecodable argument JSON keep a nil argument map; the
// executor rejects them with its normal validation path.
func decodeRequests(calls []llm.ToolCall) []executor.Request {
	requests := make([]executor.Request, 0, len(calls))
	for _, call := range calls {
		req := executor.Request{
			ID:   call.ID,
			Name: call.Function.Name,
		}
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &req.Arguments); err != nil {
				slog.Warn("undecodable tool arguments", "op", req.Name, "err", err)
				req.Arguments = nil
			}
		}
		requests = append(requests, req)
	}
	return requests
}

// executeAll runs the requests concurrently. Result order matches request
// order regardless of completion order.
func (d *Dispatcher) executeAll(ctx context.Context, requests []executor.Request, ownerID string) []executor.Result {
	results := make([]executor.Result, len(requests))

	var wg sync.WaitGroup
	for i, req := range requests {
		wg.Add(1)
		go func(i int, req executor.Request) {
			defer wg.Done()
			results[i] = d.runner.Execute(ctx, req, ownerID)
		}(i, req)
	}
	wg.Wait()

	return results
}

// attachChart ensures a chart produced by any operation reaches the user
// even when the model drops it from the envelope.
func attachChart(reply envelope.Reply, results []executor.Result) envelope.Reply {
	if reply.ImageURL != "" {
		return reply
	}
	for _, res := range results {
		if url := res.ChartURL(); url != "" {
			reply.ImageURL = url
			return reply
		}
	}
	return reply
}
