package websocket

import (
	"encoding/json"
	"testing"

	"telehealth/internal/config"
	"telehealth/internal/models"
)

// frame is an outbound envelope with its payload left raw.
type frame struct {
	Type      models.EventType `json:"type"`
	RequestID string           `json:"request_id"`
	Data      json.RawMessage  `json:"data"`
}

func newTestClient(userID string, role models.Role) *Client {
	return NewClient(nil, models.Identity{UserID: userID, Role: role}, config.WebSocketConfig{SendBufferSize: 64}, 0)
}

// drain decodes everything queued for c, oldest first.
func drain(t *testing.T, c *Client) []frame {
	t.Helper()
	var out []frame
	for _, raw := range c.Outbox().Drain() {
		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("undecodable frame %s: %v", raw, err)
		}
		out = append(out, f)
	}
	return out
}

func eventTypes(frames []frame) []models.EventType {
	out := make([]models.EventType, len(frames))
	for i, f := range frames {
		out[i] = f.Type
	}
	return out
}

func lastOf(t *testing.T, frames []frame) frame {
	t.Helper()
	if len(frames) == 0 {
		t.Fatalf("expected at least one frame")
	}
	return frames[len(frames)-1]
}
