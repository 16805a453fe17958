package deliveries

import (
	"encoding/json"
	"net/http"
	"time"

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

// Handler handles HTTP and websocket requests for deliveries.
type Handler struct {
	svc ServiceInterface
	bus realtime.Bus
}

// NewHandler creates a new delivery handler.
func NewHandler(svc ServiceInterface, bus realtime.Bus) *Handler {
	return &Handler{svc: svc, bus: bus}
}

func (h *Handler) Quote(c echo.Context) error {
	var req models.QuoteRequest
	if err := c.Bind(&req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := utils.GetValidator().Validate(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	quote, err := h.svc.Quote(c.Request().Context(), req)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, quote)
}

func (h *Handler) Create(c echo.Context) error {
	userID, role, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}
	if role != models.RoleCustomer {
		return utils.RespondWithError(c, http.StatusForbidden, "Customer area only")
	}

	var req models.CreateDeliveryRequest
	if err := c.Bind(&req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := utils.GetValidator().Validate(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	delivery, err := h.svc.Create(c.Request().Context(), userID, req)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusCreated, delivery)
}

func (h *Handler) Accept(c echo.Context) error {
	userID, role, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}
	if role != models.RoleDriver {
		return utils.RespondWithError(c, http.StatusForbidden, "Driver area only")
	}

	delivery, err := h.svc.Accept(c.Request().Context(), c.Param("deliveryId"), userID)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, delivery)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	userID, role, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}
	if role != models.RoleDriver {
		return utils.RespondWithError(c, http.StatusForbidden, "Driver area only")
	}

	var req models.UpdateStatusRequest
	if err := c.Bind(&req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := utils.GetValidator().Validate(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	delivery, err := h.svc.Advance(c.Request().Context(), c.Param("deliveryId"), userID, req)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, delivery)
}

func (h *Handler) Cancel(c echo.Context) error {
	userID, role, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	var req models.CancelDeliveryRequest
	if err := c.Bind(&req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := utils.GetValidator().Validate(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	delivery, err := h.svc.Cancel(c.Request().Context(), c.Param("deliveryId"), userID, role, req.Reason)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, delivery)
}

func (h *Handler) Get(c echo.Context) error {
	userID, role, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	delivery, err := h.svc.Get(c.Request().Context(), c.Param("deliveryId"), userID, role)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, delivery)
}

// ListMine returns the caller's recent deliveries, customer or driver side.
func (h *Handler) ListMine(c echo.Context) error {
	userID, role, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	var deliveries []*models.Delivery
	switch role {
	case models.RoleDriver:
		deliveries, err = h.svc.ListForDriver(c.Request().Context(), userID)
	default:
		deliveries, err = h.svc.ListForCustomer(c.Request().Context(), userID)
	}
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, deliveries)
}

// ListAvailable returns pending deliveries a driver can take.
func (h *Handler) ListAvailable(c echo.Context) error {
	_, role, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}
	if role != models.RoleDriver {
		return utils.RespondWithError(c, http.StatusForbidden, "Driver area only")
	}

	deliveries, err := h.svc.ListAvailable(c.Request().Context())
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, deliveries)
}

// ReportLocation records a driver position report. The route carries the
// driver role guard.
func (h *Handler) ReportLocation(c echo.Context) error {
	userID, _, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	var req models.LocationUpdateRequest
	if err := c.Bind(&req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := utils.GetValidator().Validate(req); err != nil {
		return utils.RespondWithError(c, http.StatusBadRequest, err.Error())
	}

	if err := h.svc.ReportLocation(c.Request().Context(), userID, req.Lat, req.Lng); err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, map[string]string{"message": "Location updated"})
}

func (h *Handler) LatestTracking(c echo.Context) error {
	userID, role, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	point, err := h.svc.LatestTracking(c.Request().Context(), c.Param("deliveryId"), userID, role)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, point)
}

func (h *Handler) Earnings(c echo.Context) error {
	userID, _, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}

	summary, err := h.svc.Earnings(c.Request().Context(), userID)
	if err != nil {
		return utils.HandleServiceError(c, err)
	}
	return utils.RespondWithJSON(c, http.StatusOK, summary)
}

// TrackSocket upgrades to a websocket that streams location and status
// events for one delivery. The assigned driver may also push location_update
// frames inward; they are stamped and rebroadcast to the group without being
// persisted.
func (h *Handler) TrackSocket(c echo.Context) error {
	userID, role, err := utils.ExtractUserInfo(c)
	if err != nil {
		return err
	}
	deliveryID := c.Param("deliveryId")

	if err := h.svc.IsParty(c.Request().Context(), deliveryID, userID, role); err != nil {
		return utils.HandleServiceError(c, err)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	session := realtime.NewSession(conn, h.bus, realtime.DeliveryGroup(deliveryID))
	defer session.Close()

	go session.WritePump()

	var handle func(eventType string, raw json.RawMessage)
	if role == models.RoleDriver {
		handle = func(eventType string, raw json.RawMessage) {
			if eventType != realtime.EventLocationUpdate {
				return
			}
			var frame struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			}
			if err := json.Unmarshal(raw, &frame); err != nil {
				return
			}
			_ = h.bus.Publish(realtime.DeliveryGroup(deliveryID), realtime.NewEvent(realtime.EventLocationUpdate, map[string]any{
				"delivery_id": deliveryID,
				"lat":         frame.Lat,
				"lng":         frame.Lng,
				"timestamp":   time.Now().Format(time.RFC3339),
			}))
		}
	}
	session.ReadPump(handle)
	return nil
}
