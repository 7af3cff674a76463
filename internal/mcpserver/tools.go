// Package mcpserver registers MCP tools that let an agent or dashboard
// inspect and drive wallet sync.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/alexjbarnes/wallet-sync/internal/models"
	"github.com/alexjbarnes/wallet-sync/internal/syncstate"
)

// Triggerer runs a full sync cycle.
type Triggerer interface {
	TriggerSync(ctx context.Context) (models.SyncSummary, error)
}

// WalletSyncer runs a fresh sync for one wallet.
type WalletSyncer interface {
	SyncOne(ctx context.Context, walletID string) (bool, error)
}

// StreamResetter restarts the push stream.
type StreamResetter interface {
	ResetConnection()
}

// Deps are the components the tools act on.
type Deps struct {
	Store   *syncstate.Store
	Trigger Triggerer
	Wallets WalletSyncer
	Stream  StreamResetter
}

// RegisterTools adds all sync tools to the given MCP server.
func RegisterTools(server *mcp.Server, d Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_status",
		Description: "Current sync state: every wallet's status and progress, push stream health, and aggregate stats.",
	}, statusHandler(d.Store))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_trigger",
		Description: "Run a full sync of all wallets now and wait for it to finish. Returns how many wallets succeeded and failed.",
	}, triggerHandler(d.Trigger))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_wallet",
		Description: "Start a fresh sync for a single wallet, with retries, and wait for the outcome.",
	}, syncWalletHandler(d.Wallets))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "stream_reset",
		Description: "Reset the live progress stream after it has given up reconnecting. Clears the error and reconnects after a short cooldown.",
	}, streamResetHandler(d.Stream, d.Store))
}

// --- Input types ---
// The MCP SDK infers JSON schema from these struct types via jsonschema tags.

// StatusInput has no parameters.
type StatusInput struct{}

// TriggerInput has no parameters.
type TriggerInput struct{}

// SyncWalletInput holds parameters for sync_wallet.
type SyncWalletInput struct {
	WalletID string `json:"wallet_id" jsonschema:"required,wallet identifier"`
}

// ResetInput has no parameters.
type ResetInput struct{}

// --- Output types ---

// SyncWalletOutput is the result of sync_wallet.
type SyncWalletOutput struct {
	WalletID string `json:"wallet_id"`
	OK       bool   `json:"ok"`
}

// ResetOutput is the result of stream_reset.
type ResetOutput struct {
	Phase string `json:"phase"`
}

// --- Handlers ---

// statusHandler returns the snapshot as text only. The snapshot carries
// timestamps, so no output schema is declared.
func statusHandler(store *syncstate.Store) mcp.ToolHandlerFor[StatusInput, any] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ StatusInput) (*mcp.CallToolResult, any, error) {
		return textResult(store.Snapshot()), nil, nil
	}
}

func triggerHandler(t Triggerer) mcp.ToolHandlerFor[TriggerInput, *models.SyncSummary] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ TriggerInput) (*mcp.CallToolResult, *models.SyncSummary, error) {
		summary, err := t.TriggerSync(ctx)
		if err != nil {
			return nil, nil, err
		}
		return textResult(summary), &summary, nil
	}
}

func syncWalletHandler(w WalletSyncer) mcp.ToolHandlerFor[SyncWalletInput, *SyncWalletOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SyncWalletInput) (*mcp.CallToolResult, *SyncWalletOutput, error) {
		ok, err := w.SyncOne(ctx, input.WalletID)
		if err != nil {
			return nil, nil, err
		}
		result := &SyncWalletOutput{WalletID: input.WalletID, OK: ok}
		return textResult(result), result, nil
	}
}

func streamResetHandler(s StreamResetter, store *syncstate.Store) mcp.ToolHandlerFor[ResetInput, *ResetOutput] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ ResetInput) (*mcp.CallToolResult, *ResetOutput, error) {
		s.ResetConnection()
		result := &ResetOutput{Phase: string(store.Connection().Phase)}
		return textResult(result), result, nil
	}
}

// textResult builds a CallToolResult with JSON text content from any value.
// This provides the unstructured content alongside the structured output
// that the SDK populates automatically.
func textResult(v interface{}) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("error marshaling result: %v", err)}},
			IsError: true,
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
