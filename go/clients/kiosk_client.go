package clients

import (
	"context"
	"fmt"
	"net/url"

	"github.com/mcdev12/kiosk/go/internal/gateway"
)

// KioskClient reads the gateway's plain HTTP routes
type KioskClient struct {
	*BaseClient
}

func NewKioskClient(baseURL, token string) *KioskClient {
	client := &KioskClient{
		BaseClient: NewBaseClient(baseURL),
	}
	if token != "" {
		client.SetHeader("Authorization", "Bearer "+token)
	}
	return client
}

// RoomPresence returns who is currently present in room
func (c *KioskClient) RoomPresence(ctx context.Context, room string) (*gateway.PresenceResponse, error) {
	var resp gateway.PresenceResponse
	if err := c.GetJSON(ctx, fmt.Sprintf("/api/rooms/%s/presence", url.PathEscape(room)), &resp); err != nil {
		return nil, fmt.Errorf("get presence for %s: %w", room, err)
	}
	return &resp, nil
}

// Stats returns gateway connection counters
func (c *KioskClient) Stats(ctx context.Context) (map[string]any, error) {
	var stats map[string]any
	if err := c.GetJSON(ctx, "/ws/stats", &stats); err != nil {
		return nil, fmt.Errorf("get gateway stats: %w", err)
	}
	return stats, nil
}
