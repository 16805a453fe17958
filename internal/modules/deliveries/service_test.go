package deliveries

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"courier-platform/internal/models"
	"courier-platform/internal/modules/chat"
	"courier-platform/internal/modules/notifications"
	"courier-platform/internal/modules/users"
	"courier-platform/internal/realtime"
	"courier-platform/internal/storage"
	"courier-platform/pkg/email"

	"github.com/shopspring/decimal"
)

type fixture struct {
	svc       *Service
	repo      *MemoryRepository
	userRepo  *users.MemoryRepository
	chatRepo  *chat.MemoryRepository
	chatSvc   *chat.Service
	notifRepo *notifications.MemoryRepository
	bus       *realtime.MemoryBus
}

func testPricing() Pricing {
	return Pricing{
		CommissionRate:    decimal.RequireFromString("0.15"),
		BaseFare:          decimal.RequireFromString("5.00"),
		PerKmRate:         decimal.RequireFromString("2.00"),
		DefaultDistanceKm: decimal.RequireFromString("5.00"),
		DefaultLat:        -22.2167,
		DefaultLng:        30.0,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	bus := realtime.NewMemoryBus()
	tx := storage.NewMemoryTxRunner()
	userRepo := users.NewMemoryRepository()
	repo := NewMemoryRepository()
	chatRepo := chat.NewMemoryRepository()
	notifRepo := notifications.NewMemoryRepository()

	templates, err := email.NewTemplateManager()
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	notifSvc := notifications.NewService(notifRepo, userRepo, bus, nil, templates, 30)
	chatSvc := chat.NewService(chatRepo, NewPartyLookup(repo), userRepo, notifSvc, bus, tx)
	svc := NewService(repo, userRepo, chatSvc, notifSvc, bus, tx, testPricing())

	return &fixture{
		svc:       svc,
		repo:      repo,
		userRepo:  userRepo,
		chatRepo:  chatRepo,
		chatSvc:   chatSvc,
		notifRepo: notifRepo,
		bus:       bus,
	}
}

func (f *fixture) addCustomer(t *testing.T, id, name string) {
	t.Helper()
	ctx := context.Background()
	if err := f.userRepo.CreateUser(ctx, &models.User{
		ID: id, Username: name, Email: name + "@example.com",
		Role: models.RoleCustomer, Status: models.UserStatusActive,
	}); err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	if err := f.userRepo.CreateCustomer(ctx, &models.Customer{UserID: id, Address: "12 Main St"}); err != nil {
		t.Fatalf("seed customer profile: %v", err)
	}
}

func (f *fixture) addDriver(t *testing.T, id, name string, online bool) {
	t.Helper()
	ctx := context.Background()
	if err := f.userRepo.CreateUser(ctx, &models.User{
		ID: id, Username: name, Email: name + "@example.com",
		Role: models.RoleDriver, Status: models.UserStatusActive,
	}); err != nil {
		t.Fatalf("seed driver: %v", err)
	}
	if err := f.userRepo.CreateDriver(ctx, &models.Driver{UserID: id, IsOnline: online}); err != nil {
		t.Fatalf("seed driver profile: %v", err)
	}
}

func (f *fixture) createDelivery(t *testing.T, customerID string) *models.Delivery {
	t.Helper()
	d, err := f.svc.Create(context.Background(), customerID, models.CreateDeliveryRequest{
		PickupAddress:   "1 Pickup Rd",
		DeliveryAddress: "2 Dropoff Ave",
		ItemDescription: "Documents",
	})
	if err != nil {
		t.Fatalf("create delivery: %v", err)
	}
	return d
}

func (f *fixture) chatHistory(t *testing.T, deliveryID string) []*models.ChatMessage {
	t.Helper()
	room, err := f.chatRepo.FindRoomByDelivery(context.Background(), deliveryID)
	if err != nil {
		t.Fatalf("find room: %v", err)
	}
	messages, err := f.chatRepo.ListRecentMessages(context.Background(), room.ID, 50)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	return messages
}

func TestQuoteWorkedExample(t *testing.T) {
	f := newFixture(t)
	distance := 5.0
	quote, err := f.svc.Quote(context.Background(), models.QuoteRequest{
		PickupAddress:   "a",
		DeliveryAddress: "b",
		DistanceKm:      &distance,
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.TotalPrice.StringFixed(2) != "15.00" {
		t.Fatalf("expected total 15.00 got %s", quote.TotalPrice.StringFixed(2))
	}
	if quote.CommissionAmount.StringFixed(2) != "2.25" {
		t.Fatalf("expected commission 2.25 got %s", quote.CommissionAmount.StringFixed(2))
	}
}

func TestQuoteRequiresAddresses(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Quote(context.Background(), models.QuoteRequest{PickupAddress: "  "})
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected ErrValidation got %v", err)
	}
}

func TestCreateOpensPendingDeliveryWithSideEffects(t *testing.T) {
	f := newFixture(t)
	f.addCustomer(t, "c1", "alice")
	f.addDriver(t, "d1", "bob", true)
	f.addDriver(t, "d2", "carol", false)

	sub := realtime.NewSubscriber(8)
	f.bus.Subscribe(realtime.DriversGroup, sub)

	d := f.createDelivery(t, "c1")

	if d.Status != models.StatusPending {
		t.Fatalf("expected pending got %s", d.Status)
	}
	if d.TotalPrice.StringFixed(2) != "15.00" || d.CommissionAmount.StringFixed(2) != "2.25" {
		t.Fatalf("unexpected pricing: %s / %s", d.TotalPrice.StringFixed(2), d.CommissionAmount.StringFixed(2))
	}

	messages := f.chatHistory(t, d.ID)
	if len(messages) != 1 || !strings.Contains(messages[0].Content, "Waiting for driver acceptance") {
		t.Fatalf("expected initial system message, got %+v", messages)
	}

	// Only the online driver is notified.
	online, _ := f.notifRepo.ListByUser(context.Background(), "d1", 10)
	if len(online) != 1 || online[0].NotificationType != models.NotifyDeliveryRequest {
		t.Fatalf("expected one delivery_request notification for d1, got %+v", online)
	}
	offline, _ := f.notifRepo.ListByUser(context.Background(), "d2", 10)
	if len(offline) != 0 {
		t.Fatalf("offline driver should not be notified, got %+v", offline)
	}

	if len(sub.C()) == 0 {
		t.Fatalf("expected a delivery_request event on the drivers group")
	}
}

func TestCreateRejectsNonCustomers(t *testing.T) {
	f := newFixture(t)
	f.addDriver(t, "d1", "bob", true)
	_, err := f.svc.Create(context.Background(), "d1", models.CreateDeliveryRequest{
		PickupAddress: "a", DeliveryAddress: "b", ItemDescription: "box",
	})
	if !errors.Is(err, models.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied got %v", err)
	}
}

func TestAcceptExactlyOnceUnderContention(t *testing.T) {
	f := newFixture(t)
	f.addCustomer(t, "c1", "alice")
	const n = 8
	for i := 0; i < n; i++ {
		f.addDriver(t, driverID(i), "driver"+driverID(i), true)
	}
	d := f.createDelivery(t, "c1")

	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.svc.Accept(context.Background(), d.ID, driverID(i))
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, models.ErrNotAvailable):
		default:
			t.Fatalf("unexpected accept error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", winners)
	}

	got, err := f.repo.FindByID(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status != models.StatusAccepted || got.DriverID == nil || got.AcceptedAt == nil {
		t.Fatalf("expected accepted with driver and timestamp, got %+v", got)
	}
}

func driverID(i int) string {
	return "drv-" + string(rune('a'+i))
}

func TestAcceptRequiresOnlineDriver(t *testing.T) {
	f := newFixture(t)
	f.addCustomer(t, "c1", "alice")
	f.addDriver(t, "d1", "bob", false)
	d := f.createDelivery(t, "c1")

	_, err := f.svc.Accept(context.Background(), d.ID, "d1")
	if !errors.Is(err, models.ErrDriverOffline) {
		t.Fatalf("expected ErrDriverOffline got %v", err)
	}
}

func TestAcceptWritesSystemMessageAndNotifiesCustomer(t *testing.T) {
	f := newFixture(t)
	f.addCustomer(t, "c1", "alice")
	f.addDriver(t, "d1", "bob", true)
	d := f.createDelivery(t, "c1")

	if _, err := f.svc.Accept(context.Background(), d.ID, "d1"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	messages := f.chatHistory(t, d.ID)
	last := messages[len(messages)-1]
	if !strings.Contains(last.Content, "Driver bob has accepted your delivery") {
		t.Fatalf("expected acceptance system message, got %q", last.Content)
	}

	list, _ := f.notifRepo.ListByUser(context.Background(), "c1", 10)
	if len(list) != 1 || list[0].NotificationType != models.NotifyDeliveryAccepted {
		t.Fatalf("expected delivery_accepted notification for the customer, got %+v", list)
	}
}

func acceptDelivery(t *testing.T, f *fixture, deliveryID, driver string) {
	t.Helper()
	if _, err := f.svc.Accept(context.Background(), deliveryID, driver); err != nil {
		t.Fatalf("accept: %v", err)
	}
}

func advance(t *testing.T, f *fixture, deliveryID, driver, status string) *models.Delivery {
	t.Helper()
	d, err := f.svc.Advance(context.Background(), deliveryID, driver, models.UpdateStatusRequest{Status: status})
	if err != nil {
		t.Fatalf("advance to %s: %v", status, err)
	}
	return d
}

func TestAdvanceIsStrictlyMonotonic(t *testing.T) {
	f := newFixture(t)
	f.addCustomer(t, "c1", "alice")
	f.addDriver(t, "d1", "bob", true)
	d := f.createDelivery(t, "c1")
	acceptDelivery(t, f, d.ID, "d1")

	// Skipping picked_up is rejected.
	if _, err := f.svc.Advance(context.Background(), d.ID, "d1", models.UpdateStatusRequest{Status: models.StatusInTransit}); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition got %v", err)
	}

	advance(t, f, d.ID, "d1", models.StatusPickedUp)
	advance(t, f, d.ID, "d1", models.StatusInTransit)
	final := advance(t, f, d.ID, "d1", models.StatusDelivered)
	if final.DeliveredAt == nil || final.PickedUpAt == nil {
		t.Fatalf("expected lifecycle timestamps, got %+v", final)
	}

	// A terminal delivery does not advance again.
	if _, err := f.svc.Advance(context.Background(), d.ID, "d1", models.UpdateStatusRequest{Status: models.StatusDelivered}); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition after delivery, got %v", err)
	}
}

func TestAdvanceRejectsUnassignedDriver(t *testing.T) {
	f := newFixture(t)
	f.addCustomer(t, "c1", "alice")
	f.addDriver(t, "d1", "bob", true)
	f.addDriver(t, "d2", "carol", true)
	d := f.createDelivery(t, "c1")
	acceptDelivery(t, f, d.ID, "d1")

	_, err := f.svc.Advance(context.Background(), d.ID, "d2", models.UpdateStatusRequest{Status: models.StatusPickedUp})
	if !errors.Is(err, models.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied got %v", err)
	}
}

func TestDeliveredCreditsEarningsExactlyOnce(t *testing.T) {
	f := newFixture(t)
	f.addCustomer(t, "c1", "alice")
	f.addDriver(t, "d1", "bob", true)
	d := f.createDelivery(t, "c1")
	acceptDelivery(t, f, d.ID, "d1")
	advance(t, f, d.ID, "d1", models.StatusPickedUp)
	advance(t, f, d.ID, "d1", models.StatusInTransit)
	advance(t, f, d.ID, "d1", models.StatusDelivered)

	// Repeat attempts fail before any credit path.
	f.svc.Advance(context.Background(), d.ID, "d1", models.UpdateStatusRequest{Status: models.StatusDelivered})

	summary, err := f.svc.Earnings(context.Background(), "d1")
	if err != nil {
		t.Fatalf("earnings: %v", err)
	}
	if summary.TotalEarnings.StringFixed(2) != "15.00" {
		t.Fatalf("expected earnings 15.00 got %s", summary.TotalEarnings.StringFixed(2))
	}
	if summary.CommissionOwed.StringFixed(2) != "2.25" {
		t.Fatalf("expected commission 2.25 got %s", summary.CommissionOwed.StringFixed(2))
	}
	if summary.DeliveredCount != 1 {
		t.Fatalf("expected 1 delivered, got %d", summary.DeliveredCount)
	}

	last := f.chatHistory(t, d.ID)[len(f.chatHistory(t, d.ID))-1]
	if !strings.Contains(last.Content, "Payment of $15.00 received") {
		t.Fatalf("expected completion system message, got %q", last.Content)
	}
}

func TestCancelPendingHasNoFee(t *testing.T) {
	f := newFixture(t)
	f.addCustomer(t, "c1", "alice")
	d := f.createDelivery(t, "c1")

	cancelled, err := f.svc.Cancel(context.Background(), d.ID, "c1", models.RoleCustomer, models.CancelOther)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != models.StatusCancelled {
		t.Fatalf("expected cancelled got %s", cancelled.Status)
	}
	if !cancelled.CancellationFee.IsZero() {
		t.Fatalf("expected zero fee got %s", cancelled.CancellationFee.StringFixed(2))
	}
}

func TestCancelAcceptedChargesHalf(t *testing.T) {
	f := newFixture(t)
	f.addCustomer(t, "c1", "alice")
	f.addDriver(t, "d1", "bob", true)
	d := f.createDelivery(t, "c1")
	acceptDelivery(t, f, d.ID, "d1")

	cancelled, err := f.svc.Cancel(context.Background(), d.ID, "c1", models.RoleCustomer, models.CancelWrongAddress)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.CancellationFee.StringFixed(2) != "7.50" {
		t.Fatalf("expected fee 7.50 got %s", cancelled.CancellationFee.StringFixed(2))
	}

	// The driver hears about it.
	list, _ := f.notifRepo.ListByUser(context.Background(), "d1", 10)
	found := false
	for _, n := range list {
		if n.NotificationType == models.NotifyDeliveryCancelled {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected delivery_cancelled notification for the driver, got %+v", list)
	}
}

func TestCancelAfterPickupRejected(t *testing.T) {
	f := newFixture(t)
	f.addCustomer(t, "c1", "alice")
	f.addDriver(t, "d1", "bob", true)
	d := f.createDelivery(t, "c1")
	acceptDelivery(t, f, d.ID, "d1")
	advance(t, f, d.ID, "d1", models.StatusPickedUp)

	_, err := f.svc.Cancel(context.Background(), d.ID, "c1", models.RoleCustomer, models.CancelOther)
	if !errors.Is(err, models.ErrNotAvailable) {
		t.Fatalf("expected ErrNotAvailable got %v", err)
	}
}

func TestCancelByStrangerRejected(t *testing.T) {
	f := newFixture(t)
	f.addCustomer(t, "c1", "alice")
	f.addCustomer(t, "c2", "mallory")
	d := f.createDelivery(t, "c1")

	_, err := f.svc.Cancel(context.Background(), d.ID, "c2", models.RoleCustomer, models.CancelOther)
	if !errors.Is(err, models.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied got %v", err)
	}
}

func TestReportLocationTracksActiveDelivery(t *testing.T) {
	f := newFixture(t)
	f.addCustomer(t, "c1", "alice")
	f.addDriver(t, "d1", "bob", true)
	d := f.createDelivery(t, "c1")
	acceptDelivery(t, f, d.ID, "d1")

	sub := realtime.NewSubscriber(8)
	f.bus.Subscribe(realtime.DeliveryGroup(d.ID), sub)

	if err := f.svc.ReportLocation(context.Background(), "d1", -22.21, 30.01); err != nil {
		t.Fatalf("report location: %v", err)
	}

	point, err := f.svc.LatestTracking(context.Background(), d.ID, "c1", models.RoleCustomer)
	if err != nil {
		t.Fatalf("latest tracking: %v", err)
	}
	if point.DriverLat != -22.21 || point.DriverLng != 30.01 {
		t.Fatalf("unexpected tracking point %+v", point)
	}
	if len(sub.C()) == 0 {
		t.Fatalf("expected a location_update event on the delivery group")
	}
}

func TestGetEnforcesPartyAccess(t *testing.T) {
	f := newFixture(t)
	f.addCustomer(t, "c1", "alice")
	f.addCustomer(t, "c2", "mallory")
	d := f.createDelivery(t, "c1")

	if _, err := f.svc.Get(context.Background(), d.ID, "c1", models.RoleCustomer); err != nil {
		t.Fatalf("owner read: %v", err)
	}
	if _, err := f.svc.Get(context.Background(), d.ID, "c2", models.RoleCustomer); !errors.Is(err, models.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied got %v", err)
	}
	if _, err := f.svc.Get(context.Background(), d.ID, "admin", models.RoleAdmin); err != nil {
		t.Fatalf("admin read: %v", err)
	}
}

func TestListAvailableShowsOnlyPending(t *testing.T) {
	f := newFixture(t)
	f.addCustomer(t, "c1", "alice")
	f.addDriver(t, "d1", "bob", true)
	first := f.createDelivery(t, "c1")
	f.createDelivery(t, "c1")
	acceptDelivery(t, f, first.ID, "d1")

	available, err := f.svc.ListAvailable(context.Background())
	if err != nil {
		t.Fatalf("list available: %v", err)
	}
	if len(available) != 1 || available[0].ID == first.ID {
		t.Fatalf("expected only the unaccepted delivery, got %+v", available)
	}
}

// failingNotifier breaks inside the creation transaction so the test can
// observe whether any event escaped before the rollback.
type failingNotifier struct{}

func (failingNotifier) NotifyDeliveryRequested(context.Context, []string, *models.Delivery, string) ([]*models.Notification, error) {
	return nil, errors.New("notification store unavailable")
}
func (failingNotifier) NotifyDeliveryAccepted(context.Context, *models.Delivery, string) ([]*models.Notification, error) {
	return nil, nil
}
func (failingNotifier) NotifyStatusUpdate(context.Context, *models.Delivery) ([]*models.Notification, error) {
	return nil, nil
}
func (failingNotifier) NotifyDeliveryCancelled(context.Context, *models.Delivery, string, string) ([]*models.Notification, error) {
	return nil, nil
}
func (failingNotifier) Dispatch([]*models.Notification) {}

func TestCreateFailurePublishesNothing(t *testing.T) {
	f := newFixture(t)
	f.addCustomer(t, "c1", "alice")
	f.addDriver(t, "d1", "bob", true)

	svc := NewService(f.repo, f.userRepo, f.chatSvc, failingNotifier{}, f.bus, storage.NewMemoryTxRunner(), testPricing())

	sub := realtime.NewSubscriber(8)
	f.bus.Subscribe(realtime.DriversGroup, sub)

	_, err := svc.Create(context.Background(), "c1", models.CreateDeliveryRequest{
		PickupAddress:   "1 Pickup Rd",
		DeliveryAddress: "2 Dropoff Ave",
		ItemDescription: "Documents",
	})
	if err == nil {
		t.Fatalf("expected create to fail")
	}
	if len(sub.C()) != 0 {
		t.Fatalf("expected no events after a failed transaction, got %d", len(sub.C()))
	}
}

func TestAdvanceAfterCancelRejected(t *testing.T) {
	f := newFixture(t)
	f.addCustomer(t, "c1", "alice")
	f.addDriver(t, "d1", "bob", true)
	d := f.createDelivery(t, "c1")
	acceptDelivery(t, f, d.ID, "d1")

	if _, err := f.svc.Cancel(context.Background(), d.ID, "c1", models.RoleCustomer, models.CancelOther); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	_, err := f.svc.Advance(context.Background(), d.ID, "d1", models.UpdateStatusRequest{Status: models.StatusPickedUp})
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition after cancellation, got %v", err)
	}
}
