package notifications

import (
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

// Handler handles HTTP and websocket requests for notifications.
type Handler struct {
	svc ServiceInterface
	bus realtime.Bus
}

// NewHandler creates a new notification handler.
func NewHandler(svc ServiceInterface, bus realtime.Bus) *Handler {
	return &Handler{svc: svc, bus: bus}
}

func (h *Handler) List(c echo.Context) error {
	userID, _, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	list, err := h.svc.List(c.Request().Context(), userID)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	if list == nil {
		list = []*models.Notification{}
	}
	return utils.RespondWithJSON(c, http.StatusOK, list)
}

func (h *Handler) UnreadCount(c echo.Context) error {
	userID, _, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	count, err := h.svc.UnreadCount(c.Request().Context(), userID)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, models.UnreadCountResponse{Count: count})
}

func (h *Handler) MarkRead(c echo.Context) error {
	userID, _, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	if err := h.svc.MarkRead(c.Request().Context(), c.Param("notificationId"), userID); err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, map[string]string{"message": "Notification marked read"})
}

func (h *Handler) MarkAllRead(c echo.Context) error {
	userID, _, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	if err := h.svc.MarkAllRead(c.Request().Context(), userID); err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, map[string]string{"message": "All notifications marked read"})
}

// NotificationSocket upgrades to a receive-only websocket streaming the
// caller's notifications as they are raised.
func (h *Handler) NotificationSocket(c echo.Context) error {
	userID, _, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	session := realtime.NewSession(conn, h.bus, realtime.UserGroup(userID))
	defer session.Close()

	go session.WritePump()
	session.ReadPump(nil)
	return nil
}
