// Package mcpclient connects to configured tool servers over the Model
// Context Protocol and exposes them as domain server connections.
package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"mcpchat/internal/domain"
)

const (
	clientName    = "mcpchat"
	clientVersion = "0.1.0"

	noContentResult = "[No content returned]"
)

// ConnectorOptions configures a Connector.
type ConnectorOptions struct {
	Logger *zap.Logger
}

// Connector establishes MCP sessions to configured tool servers.
type Connector struct {
	logger *zap.Logger
}

func NewConnector(opts ConnectorOptions) *Connector {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{logger: logger.Named("mcpclient")}
}

// Connect starts a session to one server. The returned connection owns the
// session and, for stdio servers, the child process.
func (c *Connector) Connect(ctx context.Context, spec domain.ServerSpec) (domain.ServerConn, error) {
	transport, err := buildTransport(spec)
	if err != nil {
		return nil, err
	}

	client := mcp.NewClient(&mcp.Implementation{Name: clientName, Version: clientVersion}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, domain.E(domain.CodeUnavailable, "mcpclient.Connect",
			fmt.Sprintf("connect to server %q", spec.Name), err)
	}

	c.logger.Info("server connected",
		zap.String("server", spec.Name),
		zap.String("transport", string(spec.Transport)))

	return &conn{
		name:    spec.Name,
		session: session,
		logger:  c.logger.With(zap.String("server", spec.Name)),
	}, nil
}

// ConnectAll connects every configured server, closing already-opened
// sessions when one fails.
func (c *Connector) ConnectAll(ctx context.Context, specs []domain.ServerSpec) (map[string]domain.ServerConn, error) {
	conns := make(map[string]domain.ServerConn, len(specs))
	for _, spec := range specs {
		sc, err := c.Connect(ctx, spec)
		if err != nil {
			for _, open := range conns {
				_ = open.Close()
			}
			return nil, err
		}
		conns[spec.Name] = sc
	}
	return conns, nil
}

func buildTransport(spec domain.ServerSpec) (mcp.Transport, error) {
	switch spec.Transport {
	case domain.TransportStdio, "":
		if spec.Command == "" {
			return nil, domain.E(domain.CodeInvalidArgument, "mcpclient.Connect",
				fmt.Sprintf("server %q: command is required for stdio transport", spec.Name), nil)
		}
		cmd := exec.Command(spec.Command, spec.Args...)
		if spec.Dir != "" {
			cmd.Dir = spec.Dir
		}
		cmd.Env = append(os.Environ(), formatEnv(spec.Env)...)
		return &mcp.CommandTransport{Command: cmd}, nil
	case domain.TransportStreamableHTTP:
		endpoint := strings.TrimSpace(spec.URL)
		if endpoint == "" {
			return nil, domain.E(domain.CodeInvalidArgument, "mcpclient.Connect",
				fmt.Sprintf("server %q: url is required for streamable-http transport", spec.Name), nil)
		}
		transport := &mcp.StreamableClientTransport{Endpoint: endpoint}
		if len(spec.Headers) > 0 {
			transport.HTTPClient = &http.Client{
				Transport: &headerRoundTripper{
					base:    http.DefaultTransport,
					headers: buildHeaders(spec.Headers),
				},
			}
		}
		return transport, nil
	default:
		return nil, domain.E(domain.CodeInvalidArgument, "mcpclient.Connect",
			fmt.Sprintf("server %q: unsupported transport %q", spec.Name, spec.Transport), nil)
	}
}

func formatEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}

func buildHeaders(headers map[string]string) http.Header {
	out := http.Header{}
	for key, value := range headers {
		name := http.CanonicalHeaderKey(strings.TrimSpace(key))
		if name == "" {
			continue
		}
		out.Set(name, value)
	}
	return out
}

type headerRoundTripper struct {
	base    http.RoundTripper
	headers http.Header
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	for key, values := range h.headers {
		req.Header.Del(key)
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	return h.base.RoundTrip(req)
}

type conn struct {
	name    string
	session *mcp.ClientSession
	logger  *zap.Logger
}

func (c *conn) Name() string { return c.name }

func (c *conn) ListTools(ctx context.Context) ([]domain.Tool, error) {
	var out []domain.Tool
	cursor := ""
	for {
		res, err := c.session.ListTools(ctx, &mcp.ListToolsParams{Cursor: cursor})
		if err != nil {
			return nil, domain.E(domain.CodeUnavailable, "mcpclient.ListTools",
				fmt.Sprintf("list tools on server %q", c.name), err)
		}
		for _, tool := range res.Tools {
			schemaJSON, err := json.Marshal(tool.InputSchema)
			if err != nil {
				return nil, domain.E(domain.CodeInternal, "mcpclient.ListTools",
					fmt.Sprintf("encode input schema for tool %q", tool.Name), err)
			}
			out = append(out, domain.Tool{
				Server:      c.name,
				Name:        tool.Name,
				Description: tool.Description,
				InputSchema: schemaJSON,
			})
		}
		if res.NextCursor == "" {
			break
		}
		cursor = res.NextCursor
	}
	return out, nil
}

func (c *conn) CallTool(ctx context.Context, name string, args json.RawMessage) (string, error) {
	params := &mcp.CallToolParams{Name: name}
	if len(args) > 0 {
		params.Arguments = args
	}

	res, err := c.session.CallTool(ctx, params)
	if err != nil {
		return "", domain.E(domain.CodeUnavailable, "mcpclient.CallTool",
			fmt.Sprintf("call tool %q on server %q", name, c.name), err)
	}

	text := flattenResult(res)
	if res.IsError {
		return "", domain.E(domain.CodeInternal, "mcpclient.CallTool",
			fmt.Sprintf("tool %q reported an error: %s", name, text), nil)
	}
	return text, nil
}

func (c *conn) Close() error {
	return c.session.Close()
}

// flattenResult renders a tool result as a single string for the model.
// Structured content wins when present; otherwise each content block is
// rendered in order.
func flattenResult(res *mcp.CallToolResult) string {
	if res.StructuredContent != nil {
		if encoded, err := json.Marshal(res.StructuredContent); err == nil {
			return string(encoded)
		}
	}

	parts := make([]string, 0, len(res.Content))
	for _, content := range res.Content {
		switch c := content.(type) {
		case *mcp.TextContent:
			parts = append(parts, c.Text)
		case *mcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[image: %s]", c.MIMEType))
		case *mcp.AudioContent:
			parts = append(parts, fmt.Sprintf("[audio: %s]", c.MIMEType))
		case *mcp.ResourceLink:
			parts = append(parts, fmt.Sprintf("[resource: %s]", c.URI))
		case *mcp.EmbeddedResource:
			if c.Resource != nil && c.Resource.Text != "" {
				parts = append(parts, c.Resource.Text)
			} else {
				parts = append(parts, "[embedded resource]")
			}
		}
	}
	if len(parts) == 0 {
		return noContentResult
	}
	return strings.Join(parts, "\n")
}
