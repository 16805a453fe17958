package api

import (
	"net/http"

	"courier-platform/internal/api/middleware"
	"courier-platform/internal/models"
	"courier-platform/internal/modules/chat"
	"courier-platform/internal/modules/deliveries"
	"courier-platform/internal/modules/notifications"
	"courier-platform/internal/modules/users"

	"github.com/labstack/echo/v4"
)

// SetupRoutes sets up all the API endpoints for the application.
func SetupRoutes(
	e *echo.Echo,
	userHandler *users.Handler,
	deliveryHandler *deliveries.Handler,
	chatHandler *chat.Handler,
	notificationHandler *notifications.Handler,
	jwtSecret string,
) {
	authMiddleware := middleware.JWTMAuth(jwtSecret)

	// --- Public Routes ---
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"message": "Welcome to the Courier Platform!"})
	})

	authGroup := e.Group("/auth")
	{
		authGroup.POST("/signup", userHandler.Signup)
		authGroup.POST("/login", userHandler.Login)
	}

	// --- Profile & Driver Routes ---
	profileGroup := e.Group("/profile", authMiddleware)
	{
		profileGroup.GET("", userHandler.GetMyProfile)
	}

	driverGroup := e.Group("/drivers", authMiddleware, middleware.RoleRequired(models.RoleDriver))
	{
		driverGroup.POST("/online", userHandler.ToggleOnline)
		driverGroup.POST("/location", deliveryHandler.ReportLocation)
		driverGroup.GET("/earnings", deliveryHandler.Earnings)
	}

	// --- Delivery Routes ---
	deliveryGroup := e.Group("/deliveries", authMiddleware)
	{
		deliveryGroup.POST("/quote", deliveryHandler.Quote)
		deliveryGroup.POST("", deliveryHandler.Create)
		deliveryGroup.GET("", deliveryHandler.ListMine)
		deliveryGroup.GET("/available", deliveryHandler.ListAvailable)
		deliveryGroup.GET("/:deliveryId", deliveryHandler.Get)
		deliveryGroup.POST("/:deliveryId/accept", deliveryHandler.Accept)
		deliveryGroup.PUT("/:deliveryId/status", deliveryHandler.UpdateStatus)
		deliveryGroup.PUT("/:deliveryId/cancel", deliveryHandler.Cancel)
		deliveryGroup.GET("/:deliveryId/tracking", deliveryHandler.LatestTracking)
		deliveryGroup.GET("/:deliveryId/chat", chatHandler.RoomForDelivery)
	}

	// --- Chat Routes ---
	chatGroup := e.Group("/chat", authMiddleware)
	{
		chatGroup.GET("/:roomId/messages", chatHandler.History)
		chatGroup.POST("/:roomId/messages", chatHandler.Send)
		chatGroup.POST("/:roomId/read", chatHandler.MarkRead)
	}

	// --- Notification Routes ---
	notificationGroup := e.Group("/notifications", authMiddleware)
	{
		notificationGroup.GET("", notificationHandler.List)
		notificationGroup.GET("/unread-count", notificationHandler.UnreadCount)
		notificationGroup.POST("/:notificationId/read", notificationHandler.MarkRead)
		notificationGroup.POST("/read-all", notificationHandler.MarkAllRead)
	}

	// --- Realtime Gateways ---
	e.GET("/ws/deliveries/:deliveryId/track", deliveryHandler.TrackSocket, authMiddleware)
	e.GET("/ws/chat/:roomId", chatHandler.ChatSocket, authMiddleware)
	e.GET("/ws/notifications", notificationHandler.NotificationSocket, authMiddleware)
}
