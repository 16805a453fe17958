package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"courier-platform/internal/models"
	"courier-platform/internal/realtime"
	"courier-platform/pkg/utils"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler handles HTTP and websocket requests for chat.
type Handler struct {
	svc ServiceInterface
	bus realtime.Bus
}

// NewHandler creates a new chat handler.
func NewHandler(svc ServiceInterface, bus realtime.Bus) *Handler {
	return &Handler{svc: svc, bus: bus}
}

// RoomForDelivery returns the chat room paired with a delivery.
func (h *Handler) RoomForDelivery(c echo.Context) error {
	userID, role, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	room, err := h.svc.RoomForDelivery(c.Request().Context(), c.Param("deliveryId"), userID, role)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, room)
}

func (h *Handler) History(c echo.Context) error {
	userID, role, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	messages, err := h.svc.History(c.Request().Context(), c.Param("roomId"), userID, role)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, messages)
}

func (h *Handler) Send(c echo.Context) error {
	userID, role, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	var req models.SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := utils.GetValidator().Validate(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	msg, err := h.svc.Send(c.Request().Context(), c.Param("roomId"), userID, role, req)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusCreated, msg)
}

func (h *Handler) MarkRead(c echo.Context) error {
	userID, role, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	if err := h.svc.MarkRead(c.Request().Context(), c.Param("roomId"), userID, role); err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, map[string]string{"message": "Messages marked read"})
}

// ChatSocket upgrades to a websocket bound to one room. On attach it replays
// the recent backlog as a single chat_history frame, then streams live
// messages. Inbound chat_message frames go through the same path as the HTTP
// send endpoint.
func (h *Handler) ChatSocket(c echo.Context) error {
	userID, role, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}
	roomID := c.Param("roomId")
	ctx := c.Request().Context()

	if err := h.svc.Authorize(ctx, roomID, userID, role); err != nil && !errors.Is(err, models.ErrNotFound) {
		return utils.HandleServiceError(c, err)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	// Subscribe before reading the backlog so a message landing between the
	// two is delivered live rather than lost.
	session := realtime.NewSession(conn, h.bus, realtime.ChatGroup(roomID))
	defer session.Close()

	history, err := h.svc.History(ctx, roomID, userID, role)
	if err != nil {
		return nil
	}

	if payload, err := json.Marshal(realtime.NewEvent(realtime.EventChatHistory, map[string]any{
		"messages": history,
	})); err == nil {
		session.Send(payload)
	}

	go session.WritePump()

	session.ReadPump(func(eventType string, raw json.RawMessage) {
		if eventType != realtime.EventChatMessage {
			return
		}
		var frame struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &frame); err != nil {
			return
		}
		// Errors surface to the sender only through the missing echo; the
		// HTTP endpoint is the path with full error reporting.
		_, _ = h.svc.Send(c.Request().Context(), roomID, userID, role, models.SendMessageRequest{Message: frame.Message})
	})
	return nil
}
