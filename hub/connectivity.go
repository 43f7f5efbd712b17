package hub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/chatcast/connectivity"
)

// RegisterConnectivity registers the hub services on a connectivity Router.
// New registers them on the hub's own router.
//
// Registered services:
//
//	chatcast_message   serve one action Message
//	chatcast_send_all  broadcast {"text": ...} to every reachable target
//
// Open pages add chatcast_fill_and_send.<target id> themselves.
func (h *Hub) RegisterConnectivity(router *connectivity.Router) {
	router.RegisterLocal("chatcast_message", h.HandleMessage)
	router.RegisterLocal("chatcast_send_all", h.handleSendAll)
}

func (h *Hub) handleSendAll(ctx context.Context, payload []byte) ([]byte, error) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	b, err := h.SendToAll(ctx, req.Text)
	if err != nil {
		return nil, err
	}
	return json.Marshal(b)
}
