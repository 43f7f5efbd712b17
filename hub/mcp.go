package hub

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/chatcast/kit"
	"github.com/hazyhaar/chatcast/siteconfig"
)

// RegisterMCP registers the hub tools on an MCP server.
func (h *Hub) RegisterMCP(srv *mcp.Server) {
	h.registerSendAllTool(srv)
	h.registerListTargetsTool(srv)
	h.registerOpenAllTool(srv)
	h.registerRegisterTargetTool(srv)
	h.registerGetSiteConfigTool(srv)
	h.registerPutSiteConfigTool(srv)
	h.registerProbeTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// endpoint logs each tool call under its tool name.
func (h *Hub) endpoint(name string, e kit.Endpoint) kit.Endpoint {
	return kit.Chain(kit.Logging(h.logger, name))(e)
}

// --- send_all ---

type sendAllRequest struct {
	Text string `json:"text"`
}

func (h *Hub) registerSendAllTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "chatcast_send_all",
		Description: "Type a prompt into every open chat page and submit it. Returns one result per page; success is true when at least one page sent.",
		InputSchema: inputSchema(map[string]any{
			"text": map[string]any{"type": "string", "description": "Prompt to broadcast"},
		}, []string{"text"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		return h.SendToAll(ctx, req.(*sendAllRequest).Text)
	}
	kit.RegisterMCPTool(srv, tool, h.endpoint(tool.Name, endpoint), kit.DecodeJSON[sendAllRequest]())
}

// --- list_targets ---

type listTargetsRequest struct {
	OpenOnly bool `json:"open_only,omitempty"`
}

func (h *Hub) registerListTargetsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "chatcast_list_targets",
		Description: "List the chat sites the hub knows, with whether each page is open and when it last sent.",
		InputSchema: inputSchema(map[string]any{
			"open_only": map[string]any{"type": "boolean", "description": "Only list targets with an open page"},
		}, nil),
	}
	endpoint := func(_ context.Context, req any) (any, error) {
		all := h.Targets()
		if !req.(*listTargetsRequest).OpenOnly {
			return all, nil
		}
		open := []TargetStatus{}
		for _, t := range all {
			if t.Open {
				open = append(open, t)
			}
		}
		return open, nil
	}
	kit.RegisterMCPTool(srv, tool, h.endpoint(tool.Name, endpoint), kit.DecodeJSON[listTargetsRequest]())
}

// --- open_all ---

type openAllRequest struct{}

func (h *Hub) registerOpenAllTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "chatcast_open_all",
		Description: "Open a page for every enabled chat site that has none.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		return h.OpenAll(ctx), nil
	}
	kit.RegisterMCPTool(srv, tool, h.endpoint(tool.Name, endpoint), kit.DecodeJSON[openAllRequest]())
}

// --- register_target ---

type registerTargetRequest struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	URL     string `json:"url"`
	Enabled *bool  `json:"enabled,omitempty"`
}

func (h *Hub) registerRegisterTargetTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "chatcast_register_target",
		Description: "Add a chat site to the hub and open it unless disabled. The id defaults to one derived from the URL host.",
		InputSchema: inputSchema(map[string]any{
			"id":      map[string]any{"type": "string", "description": "Target id (e.g. deepseek)"},
			"name":    map[string]any{"type": "string", "description": "Display name"},
			"url":     map[string]any{"type": "string", "description": "Chat page URL"},
			"enabled": map[string]any{"type": "boolean", "description": "Open the page now (default true)"},
		}, []string{"url"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		rr := req.(*registerTargetRequest)
		enabled := rr.Enabled == nil || *rr.Enabled
		return h.Register(ctx, Target{ID: rr.ID, Name: rr.Name, URL: rr.URL, Enabled: enabled})
	}
	kit.RegisterMCPTool(srv, tool, h.endpoint(tool.Name, endpoint), kit.DecodeJSON[registerTargetRequest]())
}

// --- get_site_config ---

type getSiteConfigRequest struct {
	ID       string `json:"id,omitempty"`
	Hostname string `json:"hostname,omitempty"`
}

func (h *Hub) registerGetSiteConfigTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "chatcast_get_site_config",
		Description: "Get the selector configuration used for a chat site, from the store, the config file or the bundled presets. Without id or hostname, list all.",
		InputSchema: inputSchema(map[string]any{
			"id":       map[string]any{"type": "string", "description": "Site config id (e.g. chat_deepseek_com)"},
			"hostname": map[string]any{"type": "string", "description": "Hostname, normalised into an id"},
		}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		rr := req.(*getSiteConfigRequest)
		id := rr.ID
		if id == "" && rr.Hostname != "" {
			id = siteconfig.NormalizeID(rr.Hostname)
		}
		if id == "" {
			return h.Sites(ctx)
		}
		c, err := h.Site(ctx, id)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, errors.New("no configuration for " + id)
		}
		return c, nil
	}
	kit.RegisterMCPTool(srv, tool, h.endpoint(tool.Name, endpoint), kit.DecodeJSON[getSiteConfigRequest]())
}

// --- put_site_config ---

type putSiteConfigResponse struct {
	Site     *siteconfig.SiteConfig `json:"site"`
	Warnings []string               `json:"warnings,omitempty"`
}

func (h *Hub) registerPutSiteConfigTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "chatcast_put_site_config",
		Description: "Save the selector configuration of a chat site. Selectors that do not parse are saved and reported as warnings.",
		InputSchema: inputSchema(map[string]any{
			"id":                 map[string]any{"type": "string", "description": "Site config id (normalised hostname)"},
			"name":               map[string]any{"type": "string", "description": "Display name"},
			"inputSelector":      map[string]any{"type": "string", "description": "CSS selector of the prompt input"},
			"sendButtonSelector": map[string]any{"type": "string", "description": "CSS selector of the send control"},
			"preferEnter":        map[string]any{"type": "boolean", "description": "Submit with Enter instead of clicking"},
			"notes":              map[string]any{"type": "string", "description": "Free-text notes"},
		}, []string{"id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		c := req.(*siteconfig.SiteConfig)
		warnings, err := h.PutSite(ctx, c)
		if err != nil {
			return nil, err
		}
		return putSiteConfigResponse{Site: c, Warnings: warnings}, nil
	}
	kit.RegisterMCPTool(srv, tool, h.endpoint(tool.Name, endpoint), kit.DecodeJSON[siteconfig.SiteConfig]())
}

// --- probe ---

type probeRequest struct {
	TargetID string `json:"target_id,omitempty"`
	URL      string `json:"url,omitempty"`
}

func (h *Hub) registerProbeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "chatcast_probe",
		Description: "Diagnose how the input and send control of a chat page resolve, with ranked candidates and a suggested configuration. Give an open target id, or a URL to fetch over HTTP.",
		InputSchema: inputSchema(map[string]any{
			"target_id": map[string]any{"type": "string", "description": "Open target to probe in the browser"},
			"url":       map[string]any{"type": "string", "description": "URL to fetch and probe as static HTML"},
		}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		rr := req.(*probeRequest)
		switch {
		case rr.TargetID != "":
			return h.Probe(ctx, rr.TargetID)
		case rr.URL != "":
			return h.ProbeURL(ctx, rr.URL)
		default:
			return nil, errors.New("target_id or url is required")
		}
	}
	kit.RegisterMCPTool(srv, tool, h.endpoint(tool.Name, endpoint), kit.DecodeJSON[probeRequest]())
}
