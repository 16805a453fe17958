package chat

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"courier-platform/internal/models"
	"courier-platform/internal/realtime"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// gapService publishes a live message while the history query is in flight,
// standing in for a message that lands between attach and backlog read.
type gapService struct {
	bus    realtime.Bus
	roomID string
}

func (s *gapService) RoomForDelivery(context.Context, string, string, string) (*models.ChatRoom, error) {
	return nil, models.ErrNotFound
}

func (s *gapService) History(context.Context, string, string, string) ([]*models.ChatMessage, error) {
	err := s.bus.Publish(realtime.ChatGroup(s.roomID), realtime.NewEvent(realtime.EventChatMessage, map[string]any{
		"message": "landed mid-attach",
	}))
	if err != nil {
		return nil, err
	}
	return []*models.ChatMessage{}, nil
}

func (s *gapService) Send(context.Context, string, string, string, models.SendMessageRequest) (*models.ChatMessage, error) {
	return nil, models.ErrNotFound
}

func (s *gapService) MarkRead(context.Context, string, string, string) error { return nil }

func (s *gapService) SystemMessage(context.Context, string, string, string) (*models.ChatMessage, error) {
	return nil, models.ErrNotFound
}

func (s *gapService) Announce(*models.ChatMessage) {}

func (s *gapService) Authorize(context.Context, string, string, string) error { return nil }

func TestChatSocketDeliversMessagesSentDuringAttach(t *testing.T) {
	bus := realtime.NewMemoryBus()
	h := NewHandler(&gapService{bus: bus, roomID: "r1"}, bus)

	e := echo.New()
	e.GET("/ws/chat/:roomId", func(c echo.Context) error {
		c.Set("userID", "c1")
		c.Set("userRole", models.RoleCustomer)
		return h.ChatSocket(c)
	})
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat/r1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Both the mid-attach message and the backlog frame must arrive: the
	// session subscribes before it reads history, so nothing falls in the
	// gap between the two.
	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
			t.Fatalf("deadline: %v", err)
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read frame %d: %v", i, err)
		}
		var frame struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		got[frame.Type] = true
	}
	if !got[realtime.EventChatMessage] || !got[realtime.EventChatHistory] {
		t.Fatalf("expected a live chat_message and the chat_history backlog, got %v", got)
	}
}
