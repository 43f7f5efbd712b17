package hub

import (
	"context"
	"encoding/json"
	"fmt"
)

// Message actions accepted by HandleMessage.
const (
	ActionSendToAll   = "sendToAllAI"
	ActionOpenTabs    = "openAITabs"
	ActionGetTabs     = "getAITabs"
	ActionRegisterTab = "registerAITab"
	ActionFillAndSend = "fillAndSend"
)

// Message is an action request from a client of the hub.
type Message struct {
	Action string `json:"action"`
	Text   string `json:"text,omitempty"`
	// Sites restricts openAITabs to these target ids.
	Sites   []string `json:"sites,omitempty"`
	SiteID  string   `json:"siteId,omitempty"`
	URL     string   `json:"url,omitempty"`
	Name    string   `json:"name,omitempty"`
	Enabled *bool    `json:"enabled,omitempty"`
}

// Reply is the answer to a Message. Only the fields of the action are set.
type Reply struct {
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	ID      string         `json:"id,omitempty"`
	Results []SendResult   `json:"results"`
	Tabs    []OpenResult   `json:"tabs,omitempty"`
	Targets []TargetStatus `json:"targets,omitempty"`
	Result  *SendResult    `json:"result,omitempty"`
}

func failure(err error) Reply { return Reply{Error: err.Error()} }

// Dispatch serves one Message.
func (h *Hub) Dispatch(ctx context.Context, m Message) Reply {
	switch m.Action {
	case ActionSendToAll:
		b, err := h.SendToAll(ctx, m.Text)
		if err != nil {
			return failure(err)
		}
		return Reply{Success: b.Success, Error: b.Error, ID: b.ID, Results: b.Results}

	case ActionOpenTabs:
		var tabs []OpenResult
		if len(m.Sites) == 0 {
			tabs = h.OpenAll(ctx)
		} else {
			for _, id := range m.Sites {
				st, err := h.Open(ctx, id)
				r := OpenResult{SiteID: id, SiteName: st.Name, TabID: st.TabID}
				if err != nil {
					r.Error = err.Error()
				}
				tabs = append(tabs, r)
			}
		}
		ok := false
		for _, t := range tabs {
			ok = ok || t.Error == ""
		}
		return Reply{Success: ok, Tabs: tabs}

	case ActionGetTabs:
		var open []TargetStatus
		for _, t := range h.Targets() {
			if t.Open {
				open = append(open, t)
			}
		}
		return Reply{Success: true, Targets: open}

	case ActionRegisterTab:
		enabled := true
		if m.Enabled != nil {
			enabled = *m.Enabled
		}
		url := m.URL
		if url == "" {
			st, err := h.Target(m.SiteID)
			if err != nil {
				return failure(err)
			}
			url = st.URL
		}
		st, err := h.Register(ctx, Target{ID: m.SiteID, Name: m.Name, URL: url, Enabled: enabled})
		if err != nil {
			return failure(err)
		}
		return Reply{Success: true, Targets: []TargetStatus{st}}

	case ActionFillAndSend:
		r, err := h.Send(ctx, m.SiteID, m.Text)
		if err != nil {
			return failure(err)
		}
		return Reply{Success: r.Success, Error: r.Error, Result: &r}

	default:
		return Reply{Error: fmt.Sprintf("unknown action %q", m.Action)}
	}
}

// HandleMessage serves a JSON Message. It matches the connectivity handler
// shape and backs the "chatcast_message" service.
func (h *Hub) HandleMessage(ctx context.Context, payload []byte) ([]byte, error) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("hub: decode message: %w", err)
	}
	return json.Marshal(h.Dispatch(ctx, m))
}
