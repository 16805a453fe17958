package notifications

import (
	"context"
	"fmt"
	"log"
	"time"

	"courier-platform/internal/models"
	"courier-platform/internal/realtime"
	"courier-platform/pkg/email"

	"github.com/google/uuid"
)

const listLimit = 50

// UserDirectory resolves recipients for the email channel. The users
// repository implements it.
type UserDirectory interface {
	FindUser(ctx context.Context, userID string) (*models.User, error)
}

// ServiceInterface defines the notification operations. The lifecycle
// wrappers are what the delivery and chat services call; they persist in the
// caller's transaction and return the pending notices, which the caller hands
// to Dispatch once its transaction has committed.
type ServiceInterface interface {
	Notify(ctx context.Context, userID, notificationType, title, message, relatedURL string) (*models.Notification, error)
	Dispatch(ns []*models.Notification)

	NotifyDeliveryRequested(ctx context.Context, driverIDs []string, d *models.Delivery, customerName string) ([]*models.Notification, error)
	NotifyDeliveryAccepted(ctx context.Context, d *models.Delivery, driverName string) ([]*models.Notification, error)
	NotifyStatusUpdate(ctx context.Context, d *models.Delivery) ([]*models.Notification, error)
	NotifyDeliveryCancelled(ctx context.Context, d *models.Delivery, cancelledByRole, reason string) ([]*models.Notification, error)
	NotifyNewChatMessage(ctx context.Context, recipientID, deliveryID, senderName, preview string) ([]*models.Notification, error)

	List(ctx context.Context, userID string) ([]*models.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, notificationID, userID string) error
	MarkAllRead(ctx context.Context, userID string) error

	// Sweep purges notifications past the retention window.
	Sweep(ctx context.Context) (int, error)
}

// Service implements the notification dispatcher.
type Service struct {
	repo      RepositoryInterface
	users     UserDirectory
	bus       realtime.Bus
	emailer   email.ServiceInterface // nil disables the email channel
	templates *email.TemplateManager
	retention time.Duration
}

// NewService creates a new notification service. emailer may be nil when no
// email channel is configured.
func NewService(
	repo RepositoryInterface,
	users UserDirectory,
	bus realtime.Bus,
	emailer email.ServiceInterface,
	templates *email.TemplateManager,
	retentionDays int,
) *Service {
	return &Service{
		repo:      repo,
		users:     users,
		bus:       bus,
		emailer:   emailer,
		templates: templates,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
	}
}

// Notify persists a notification and returns it for dispatch. Persistence
// runs in the caller's transaction; the realtime push and the email wait for
// Dispatch, so a rolled back transaction leaks nothing to subscribers.
func (s *Service) Notify(ctx context.Context, userID, notificationType, title, message, relatedURL string) (*models.Notification, error) {
	n := &models.Notification{
		ID:               uuid.New().String(),
		UserID:           userID,
		NotificationType: notificationType,
		Title:            title,
		Message:          message,
		RelatedURL:       relatedURL,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// Dispatch pushes committed notifications to each recipient's realtime group
// and email. Persistence is the source of truth; push and email failures are
// logged and swallowed.
func (s *Service) Dispatch(ns []*models.Notification) {
	for _, n := range ns {
		if err := s.bus.Publish(realtime.UserGroup(n.UserID), realtime.NewEvent(realtime.EventNotification, map[string]any{
			"id":                n.ID,
			"notification_type": n.NotificationType,
			"title":             n.Title,
			"message":           n.Message,
			"related_url":       n.RelatedURL,
		})); err != nil {
			log.Printf("notification push for user %s failed: %v", n.UserID, err)
		}
		if s.emailer != nil {
			s.sendEmail(n.UserID, n)
		}
	}
}

// sendEmail delivers the notification over SES in the background. The
// recipient lookup runs detached from the caller's context so a finished
// request does not cancel the send.
func (s *Service) sendEmail(userID string, n *models.Notification) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		user, err := s.users.FindUser(ctx, userID)
		if err != nil {
			log.Printf("notification email lookup for user %s failed: %v", userID, err)
			return
		}
		html, err := s.templates.GenerateNotificationEmailHTML(email.NotificationData{
			Title:   n.Title,
			Message: n.Message,
			Link:    n.RelatedURL,
		})
		if err != nil {
			log.Printf("notification email render failed: %v", err)
			return
		}
		if err := s.emailer.SendEmail(ctx, user.Email, n.Title, n.Message, html); err != nil {
			log.Printf("notification email to %s failed: %v", user.Email, err)
		}
	}()
}

func deliveryURL(deliveryID string) string {
	return "/deliveries/" + deliveryID
}

func one(n *models.Notification, err error) ([]*models.Notification, error) {
	if err != nil {
		return nil, err
	}
	return []*models.Notification{n}, nil
}

// NotifyDeliveryRequested fans a new pending delivery out to every online
// driver.
func (s *Service) NotifyDeliveryRequested(ctx context.Context, driverIDs []string, d *models.Delivery, customerName string) ([]*models.Notification, error) {
	message := fmt.Sprintf("New delivery from %s - $%s", customerName, d.TotalPrice.StringFixed(2))
	pending := make([]*models.Notification, 0, len(driverIDs))
	for _, driverID := range driverIDs {
		n, err := s.Notify(ctx, driverID, models.NotifyDeliveryRequest, "New Delivery Request", message, deliveryURL(d.ID))
		if err != nil {
			return nil, err
		}
		pending = append(pending, n)
	}
	return pending, nil
}

func (s *Service) NotifyDeliveryAccepted(ctx context.Context, d *models.Delivery, driverName string) ([]*models.Notification, error) {
	message := fmt.Sprintf("Driver %s has accepted your delivery", driverName)
	return one(s.Notify(ctx, d.CustomerID, models.NotifyDeliveryAccepted, "Delivery Accepted", message, deliveryURL(d.ID)))
}

// NotifyStatusUpdate tells the customer about a driver-side transition.
func (s *Service) NotifyStatusUpdate(ctx context.Context, d *models.Delivery) ([]*models.Notification, error) {
	var notificationType, title, message string
	switch d.Status {
	case models.StatusPickedUp:
		notificationType = models.NotifyDeliveryPickedUp
		title = "Item Picked Up"
		message = "Your item has been picked up and is on the way"
	case models.StatusInTransit:
		notificationType = models.NotifySystem
		title = "In Transit"
		message = "Your delivery is in transit"
	case models.StatusDelivered:
		notificationType = models.NotifyDeliveryDelivered
		title = "Delivery Completed"
		message = fmt.Sprintf("Your delivery is complete. Payment of $%s received.", d.TotalPrice.StringFixed(2))
	default:
		return nil, nil
	}
	return one(s.Notify(ctx, d.CustomerID, notificationType, title, message, deliveryURL(d.ID)))
}

// NotifyDeliveryCancelled tells the party who did not cancel.
func (s *Service) NotifyDeliveryCancelled(ctx context.Context, d *models.Delivery, cancelledByRole, reason string) ([]*models.Notification, error) {
	message := fmt.Sprintf("Delivery was cancelled. Reason: %s", reason)
	if cancelledByRole == models.RoleDriver {
		return one(s.Notify(ctx, d.CustomerID, models.NotifyDeliveryCancelled, "Delivery Cancelled", message, deliveryURL(d.ID)))
	}
	if d.DriverID != nil {
		return one(s.Notify(ctx, *d.DriverID, models.NotifyDeliveryCancelled, "Delivery Cancelled", message, deliveryURL(d.ID)))
	}
	return nil, nil
}

func (s *Service) NotifyNewChatMessage(ctx context.Context, recipientID, deliveryID, senderName, preview string) ([]*models.Notification, error) {
	title := fmt.Sprintf("New message from %s", senderName)
	message := fmt.Sprintf("New message in delivery #%s: %s", deliveryID, preview)
	return one(s.Notify(ctx, recipientID, models.NotifyMessage, title, message, deliveryURL(deliveryID)))
}

func (s *Service) List(ctx context.Context, userID string) ([]*models.Notification, error) {
	return s.repo.ListByUser(ctx, userID, listLimit)
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.repo.UnreadCount(ctx, userID)
}

func (s *Service) MarkRead(ctx context.Context, notificationID, userID string) error {
	return s.repo.MarkRead(ctx, notificationID, userID)
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) error {
	return s.repo.MarkAllRead(ctx, userID)
}

func (s *Service) Sweep(ctx context.Context) (int, error) {
	return s.repo.DeleteOlderThan(ctx, time.Now().Add(-s.retention))
}

// StartSweeper purges stale notifications on the given interval until the
// context is cancelled.
func (s *Service) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.Sweep(ctx)
				if err != nil {
					log.Printf("notification sweep failed: %v", err)
					continue
				}
				if removed > 0 {
					log.Printf("notification sweep removed %d entries", removed)
				}
			}
		}
	}()
}
