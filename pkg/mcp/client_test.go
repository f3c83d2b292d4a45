package mcp

import (
	"context"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/weft-ai/weft/pkg/core"
)

func newPingServer() *mcpserver.MCPServer {
	server := mcpserver.NewMCPServer("test-http", "1.0.0")
	server.AddTool(mcpgo.NewTool("ping"), func(ctx context.Context, _ mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		return &mcpgo.CallToolResult{
			Content: []mcpgo.Content{mcpgo.TextContent{Type: "text", Text: "ok"}},
		}, nil
	})
	return server
}

func TestClientStreamableHTTPListAndCall(t *testing.T) {
	httpServer := mcpserver.NewTestStreamableHTTPServer(newPingServer())
	defer httpServer.Close()

	client, err := NewClientWithStreamableHTTP(httpServer.URL)
	if err != nil {
		t.Fatalf("NewClientWithStreamableHTTP error: %v", err)
	}
	defer client.Close()

	tools, err := client.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools error: %v", err)
	}
	if len(tools) == 0 || tools[0].Name != "ping" {
		t.Fatalf("expected tool 'ping', got %+v", tools)
	}

	result, err := client.CallTool(context.Background(), "ping", map[string]interface{}{"input": "hello"})
	if err != nil {
		t.Fatalf("CallTool error: %v", err)
	}
	if result == nil || result.IsError {
		t.Fatalf("expected successful tool result, got %+v", result)
	}
}

func TestClientToolCacheServesRepeatLists(t *testing.T) {
	httpServer := mcpserver.NewTestStreamableHTTPServer(newPingServer())
	defer httpServer.Close()

	client, err := NewClientWithStreamableHTTP(httpServer.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	first, err := client.ListTools(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	httpServer.Close()

	// Second call must come from the cache, the server is gone.
	second, err := client.ListTools(context.Background())
	if err != nil {
		t.Fatalf("cached ListTools error: %v", err)
	}
	if len(second) != len(first) {
		t.Errorf("cached tools = %v", second)
	}
}

func TestExecutorAgainstLiveServer(t *testing.T) {
	httpServer := mcpserver.NewTestStreamableHTTPServer(newPingServer())
	defer httpServer.Close()

	client, err := NewClientWithStreamableHTTP(httpServer.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	executor, err := NewExecutor(client)
	if err != nil {
		t.Fatal(err)
	}

	out, err := executor.Execute(context.Background(), &core.Action{ID: "a1", Name: "ping"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "ok" {
		t.Errorf("out = %v", out)
	}

	docs, err := ActionDocs(context.Background(), client)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].Name != "ping" {
		t.Fatalf("docs = %v", docs)
	}
}
