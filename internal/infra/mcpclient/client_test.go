package mcpclient

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mcpchat/internal/domain"
)

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func connectTestServer(t *testing.T, server *mcp.Server) *conn {
	t.Helper()
	ctx := context.Background()

	ct, st := mcp.NewInMemoryTransports()
	_, err := server.Connect(ctx, st, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: clientName, Version: clientVersion}, nil)
	session, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	return &conn{name: "math", session: session, logger: zap.NewNop()}
}

func newMathServer() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "math", Version: "0.1.0"}, &mcp.ServerOptions{HasTools: true})
	server.AddTool(&mcp.Tool{
		Name:        "add",
		Description: "Add two numbers.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
			"required": []any{"a", "b"},
		},
	}, func(_ context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args struct {
			A float64 `json:"a"`
			B float64 `json:"b"`
		}
		if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
			return &mcp.CallToolResult{IsError: true, Content: []mcp.Content{&mcp.TextContent{Text: "bad arguments"}}}, nil
		}
		return textResult(strconv.FormatFloat(args.A+args.B, 'f', -1, 64)), nil
	})
	return server
}

func TestListToolsMapsDefinitions(t *testing.T) {
	c := connectTestServer(t, newMathServer())

	tools, err := c.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)

	tool := tools[0]
	assert.Equal(t, "math", tool.Server)
	assert.Equal(t, "add", tool.Name)
	assert.Equal(t, "Add two numbers.", tool.Description)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(tool.InputSchema, &schema))
	assert.Equal(t, "object", schema["type"])
	assert.Contains(t, schema["properties"], "a")
}

func TestCallToolReturnsText(t *testing.T) {
	c := connectTestServer(t, newMathServer())

	out, err := c.CallTool(context.Background(), "add", json.RawMessage(`{"a":2,"b":3}`))
	require.NoError(t, err)
	assert.Equal(t, "5", out)
}

func TestCallToolSurfacesToolError(t *testing.T) {
	c := connectTestServer(t, newMathServer())

	_, err := c.CallTool(context.Background(), "add", json.RawMessage(`"not an object"`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "add")
}

func TestFlattenResultStructuredContentWins(t *testing.T) {
	res := &mcp.CallToolResult{
		StructuredContent: map[string]any{"sum": 5},
		Content:           []mcp.Content{&mcp.TextContent{Text: "ignored"}},
	}
	assert.JSONEq(t, `{"sum":5}`, flattenResult(res))
}

func TestFlattenResultJoinsBlocks(t *testing.T) {
	res := &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: "first"},
			&mcp.ImageContent{MIMEType: "image/png"},
			&mcp.TextContent{Text: "last"},
		},
	}
	assert.Equal(t, "first\n[image: image/png]\nlast", flattenResult(res))
}

func TestFlattenResultEmpty(t *testing.T) {
	assert.Equal(t, noContentResult, flattenResult(&mcp.CallToolResult{}))
}

func TestBuildTransportValidation(t *testing.T) {
	tests := []struct {
		name string
		spec domain.ServerSpec
	}{
		{name: "stdio without command", spec: domain.ServerSpec{Name: "s", Transport: domain.TransportStdio}},
		{name: "http without url", spec: domain.ServerSpec{Name: "s", Transport: domain.TransportStreamableHTTP}},
		{name: "unknown transport", spec: domain.ServerSpec{Name: "s", Transport: "carrier-pigeon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildTransport(tt.spec)
			require.Error(t, err)
			code, ok := domain.CodeFrom(err)
			require.True(t, ok)
			assert.Equal(t, domain.CodeInvalidArgument, code)
		})
	}
}

func TestBuildTransportStdioDefaults(t *testing.T) {
	transport, err := buildTransport(domain.ServerSpec{Name: "s", Command: "server-bin", Args: []string{"--port", "0"}})
	require.NoError(t, err)

	ct, ok := transport.(*mcp.CommandTransport)
	require.True(t, ok)
	assert.Contains(t, ct.Command.Path, "server-bin")
	assert.Equal(t, []string{"server-bin", "--port", "0"}, ct.Command.Args)
}
