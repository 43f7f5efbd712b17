package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testImpl = &mcp.Implementation{Name: "chatcast-test", Version: "0.1.0"}

func mcpSession(t *testing.T, h *Hub) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testImpl, nil)
	h.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("CallTool(%s) tool error: %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return tc.Text
}

func toolError(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if !result.IsError {
		t.Fatalf("CallTool(%s): expected tool error", name)
	}
	return result.Content[0].(*mcp.TextContent).Text
}

func TestMCP_ListTools(t *testing.T) {
	h, _ := testHub(t)
	session := mcpSession(t, h)

	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{
		"chatcast_send_all": true, "chatcast_list_targets": true, "chatcast_open_all": true,
		"chatcast_register_target": true, "chatcast_get_site_config": true,
		"chatcast_put_site_config": true, "chatcast_probe": true,
	}
	for _, tool := range res.Tools {
		delete(want, tool.Name)
	}
	if len(want) != 0 {
		t.Fatalf("missing tools: %v", want)
	}
}

func TestMCP_OpenAndSend(t *testing.T) {
	h, op := testHub(t)
	session := mcpSession(t, h)

	var opened []OpenResult
	json.Unmarshal([]byte(callTool(t, session, "chatcast_open_all", map[string]any{})), &opened)
	if len(opened) != 2 {
		t.Fatalf("opened = %+v", opened)
	}

	var open []TargetStatus
	json.Unmarshal([]byte(callTool(t, session, "chatcast_list_targets", map[string]any{"open_only": true})), &open)
	if len(open) != 2 {
		t.Fatalf("open targets = %+v", open)
	}

	var b Broadcast
	json.Unmarshal([]byte(callTool(t, session, "chatcast_send_all", map[string]any{"text": "from mcp"})), &b)
	if !b.Success || len(b.Results) != 2 {
		t.Fatalf("broadcast = %+v", b)
	}
	if v, _ := op.page("alpha").doc.Find("#prompt").Value(); v != "from mcp" {
		t.Fatalf("value = %q", v)
	}

	msg := toolError(t, session, "chatcast_send_all", map[string]any{"text": ""})
	if !strings.Contains(msg, "empty text") {
		t.Fatalf("error = %q", msg)
	}
}

func TestMCP_RegisterTarget(t *testing.T) {
	h, _ := testHub(t)
	session := mcpSession(t, h)

	var st TargetStatus
	json.Unmarshal([]byte(callTool(t, session, "chatcast_register_target", map[string]any{
		"url":     "https://www.doubao.com/chat/",
		"enabled": false,
	})), &st)
	if st.ID != "www_doubao_com" || st.Open {
		t.Fatalf("status = %+v", st)
	}
	toolError(t, session, "chatcast_register_target", map[string]any{"url": ""})
}

func TestMCP_SiteConfig(t *testing.T) {
	h, _ := testHub(t, WithStore(testStore(t)))
	session := mcpSession(t, h)

	text := callTool(t, session, "chatcast_get_site_config", map[string]any{"hostname": "beta.example"})
	if !strings.Contains(text, `"source":"file"`) {
		t.Fatalf("file config = %s", text)
	}

	text = callTool(t, session, "chatcast_put_site_config", map[string]any{
		"id":            "beta_example",
		"inputSelector": "#prompt",
		"notes":         "<script>x</script>pinned",
	})
	var put putSiteConfigResponse
	json.Unmarshal([]byte(text), &put)
	if put.Site == nil || put.Site.Notes != "pinned" || len(put.Warnings) != 0 {
		t.Fatalf("put = %s", text)
	}

	text = callTool(t, session, "chatcast_get_site_config", map[string]any{"id": "beta_example"})
	if !strings.Contains(text, `"source":"stored"`) {
		t.Fatalf("stored config = %s", text)
	}

	toolError(t, session, "chatcast_get_site_config", map[string]any{"id": "nowhere_example"})

	var all []map[string]any
	json.Unmarshal([]byte(callTool(t, session, "chatcast_get_site_config", map[string]any{})), &all)
	if len(all) < 2 {
		t.Fatalf("all = %d", len(all))
	}
}

func TestMCP_Probe(t *testing.T) {
	h, _ := testHub(t)
	session := mcpSession(t, h)
	h.Open(context.Background(), "alpha")

	text := callTool(t, session, "chatcast_probe", map[string]any{"target_id": "alpha"})
	if !strings.Contains(text, `"resolved":true`) {
		t.Fatalf("probe = %s", text)
	}

	web := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><div id="root"></div><script src="app.js"></script></body></html>`))
	}))
	defer web.Close()
	text = callTool(t, session, "chatcast_probe", map[string]any{"url": web.URL})
	if !strings.Contains(text, "client rendered") {
		t.Fatalf("http probe = %s", text)
	}

	toolError(t, session, "chatcast_probe", map[string]any{})
}
