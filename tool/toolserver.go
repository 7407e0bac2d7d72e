package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/convoke/convoke/core"
)

const defaultServerTimeout = 30 * time.Second

// serverToolInfo is one entry of a tool server's discovery response.
type serverToolInfo struct {
	Name                string         `json:"name"`
	Description         string         `json:"description"`
	InputSchema         map[string]any `json:"input_schema"`
	Category            string         `json:"category,omitempty"`
	RequiredPermissions []string       `json:"required_permissions,omitempty"`
}

type discoverResponse struct {
	Tools []serverToolInfo `json:"tools"`
}

type invokeRequest struct {
	Arguments map[string]any `json:"arguments"`
}

type invokeResponse struct {
	Result any    `json:"result"`
	Error  string `json:"error,omitempty"`
}

// ServerTool proxies a remotely served tool. Invocations POST the arguments
// to the server; transport and remote failures surface as *Error values which
// the registry converts into failed ToolResults.
type ServerTool struct {
	info    serverToolInfo
	server  core.ToolServer
	client  *http.Client
	timeout time.Duration
}

var _ Tool = (*ServerTool)(nil)

func (t *ServerTool) Name() string                  { return t.info.Name }
func (t *ServerTool) Description() string           { return t.info.Description }
func (t *ServerTool) Parameters() map[string]any    { return t.info.InputSchema }
func (t *ServerTool) Category() string              { return t.info.Category }
func (t *ServerTool) RequiredPermissions() []string { return t.info.RequiredPermissions }
func (t *ServerTool) Timeout() time.Duration        { return t.timeout }

// Call posts the invocation to the serving endpoint.
func (t *ServerTool) Call(ctx context.Context, args map[string]any) (any, error) {
	body, err := json.Marshal(invokeRequest{Arguments: args})
	if err != nil {
		return nil, &Error{Tool: t.info.Name, Message: err.Error(), Code: CodeValidation}
	}

	url := strings.TrimSuffix(t.server.BaseURL, "/") + "/tools/" + t.info.Name
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Tool: t.info.Name, Message: err.Error(), Code: CodeTransport}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.server.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &Error{Tool: t.info.Name, Message: err.Error(), Code: CodeTransport}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &Error{
			Tool:    t.info.Name,
			Message: fmt.Sprintf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			Code:    CodeTransport,
		}
	}

	var out invokeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &Error{Tool: t.info.Name, Message: err.Error(), Code: CodeTransport}
	}
	if out.Error != "" {
		return nil, &Error{Tool: t.info.Name, Message: out.Error, Code: CodeExecution}
	}
	return out.Result, nil
}

// DiscoverServerTools fetches the tool listing of an external tool server.
func DiscoverServerTools(ctx context.Context, server core.ToolServer) ([]Tool, error) {
	if server.BaseURL == "" {
		return nil, fmt.Errorf("tool server %s: base_url is required", server.Name)
	}
	if !strings.HasPrefix(server.BaseURL, "http://") && !strings.HasPrefix(server.BaseURL, "https://") {
		return nil, fmt.Errorf("tool server %s: base_url must start with http:// or https://", server.Name)
	}

	timeout := server.Timeout
	if timeout <= 0 {
		timeout = defaultServerTimeout
	}
	client := &http.Client{Timeout: timeout}

	url := strings.TrimSuffix(server.BaseURL, "/") + "/tools"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("tool server %s: %w", server.Name, err)
	}
	for k, v := range server.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tool server %s: discover: %w", server.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tool server %s: discover returned %d", server.Name, resp.StatusCode)
	}

	var listing discoverResponse
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("tool server %s: decode listing: %w", server.Name, err)
	}

	tools := make([]Tool, 0, len(listing.Tools))
	for _, info := range listing.Tools {
		if info.Name == "" {
			continue
		}
		tools = append(tools, &ServerTool{info: info, server: server, client: client, timeout: timeout})
	}
	return tools, nil
}

// AttachServer discovers a tool server and registers its tools into the
// shared namespace. Name collisions resolve in favor of already registered
// tools: the discovered tool is logged and skipped. Returns the names that
// were attached.
func (r *Registry) AttachServer(ctx context.Context, server core.ToolServer) ([]string, error) {
	discovered, err := DiscoverServerTools(ctx, server)
	if err != nil {
		return nil, err
	}

	var attached []string
	for _, t := range discovered {
		if r.Has(t.Name()) {
			r.logger.Warn("tool.server.collision", "server", server.Name, "tool", t.Name())
			continue
		}
		if err := r.Register(t); err != nil {
			// Raced with another attach; the earlier registration wins.
			r.logger.Warn("tool.server.collision", "server", server.Name, "tool", t.Name())
			continue
		}
		attached = append(attached, t.Name())
	}
	r.logger.Info("tool.server.attached", "server", server.Name, "tools", len(attached))
	return attached, nil
}
