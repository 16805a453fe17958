package users

import (
	"context"
	"errors"
	"testing"

	"courier-platform/internal/models"
	"courier-platform/internal/realtime"
	"courier-platform/internal/storage"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func newUserService(t *testing.T) (*Service, *MemoryRepository, *realtime.MemoryBus) {
	t.Helper()
	repo := NewMemoryRepository()
	bus := realtime.NewMemoryBus()
	return NewService(repo, bus, storage.NewMemoryTxRunner(), testSecret), repo, bus
}

func customerSignup() models.SignupRequest {
	return models.SignupRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "correct horse",
		Phone:    "0771234567",
		Role:     models.RoleCustomer,
		Address:  "12 Main St",
	}
}

func driverSignup() models.SignupRequest {
	return models.SignupRequest{
		Username:         "bob",
		Email:            "bob@example.com",
		Password:         "battery staple",
		Phone:            "0777654321",
		Role:             models.RoleDriver,
		BikeRegistration: "BK-1234",
		IDNumber:         "ID-5678",
	}
}

func TestSignupCreatesPendingAccountWithProfile(t *testing.T) {
	svc, repo, _ := newUserService(t)
	ctx := context.Background()

	user, err := svc.Signup(ctx, customerSignup())
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if user.Status != models.UserStatusPending {
		t.Fatalf("expected pending status got %s", user.Status)
	}
	if user.PasswordHash == "correct horse" {
		t.Fatalf("password stored in the clear")
	}
	if _, err := repo.FindCustomer(ctx, user.ID); err != nil {
		t.Fatalf("expected customer profile, got %v", err)
	}

	driver, err := svc.Signup(ctx, driverSignup())
	if err != nil {
		t.Fatalf("driver signup: %v", err)
	}
	profile, err := repo.FindDriver(ctx, driver.ID)
	if err != nil {
		t.Fatalf("expected driver profile, got %v", err)
	}
	if profile.BikeRegistration != "BK-1234" || profile.IsOnline {
		t.Fatalf("unexpected driver profile %+v", profile)
	}
}

// recordingTxRunner marks when the wrapped runner is inside a transaction so
// tests can tell which repository calls ran under it.
type recordingTxRunner struct {
	inner  storage.TxRunner
	active bool
	calls  int
}

func (r *recordingTxRunner) InTx(ctx context.Context, fn func(context.Context) error) error {
	r.calls++
	r.active = true
	defer func() { r.active = false }()
	return r.inner.InTx(ctx, fn)
}

type txObservingRepo struct {
	*MemoryRepository
	tx          *recordingTxRunner
	userInTx    bool
	profileInTx bool
	failProfile bool
}

func (r *txObservingRepo) CreateUser(ctx context.Context, u *models.User) error {
	r.userInTx = r.tx.active
	return r.MemoryRepository.CreateUser(ctx, u)
}

func (r *txObservingRepo) CreateDriver(ctx context.Context, d *models.Driver) error {
	r.profileInTx = r.tx.active
	if r.failProfile {
		return errors.New("driver profile insert failed")
	}
	return r.MemoryRepository.CreateDriver(ctx, d)
}

func TestSignupWritesUserAndProfileInOneTransaction(t *testing.T) {
	tx := &recordingTxRunner{inner: storage.NewMemoryTxRunner()}
	repo := &txObservingRepo{MemoryRepository: NewMemoryRepository(), tx: tx, failProfile: true}
	svc := NewService(repo, realtime.NewMemoryBus(), tx, testSecret)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, driverSignup()); err == nil {
		t.Fatalf("expected signup to fail when the profile insert fails")
	}
	if tx.calls != 1 {
		t.Fatalf("expected one transaction, got %d", tx.calls)
	}
	if !repo.userInTx || !repo.profileInTx {
		t.Fatalf("expected both inserts inside the transaction, got user=%t profile=%t",
			repo.userInTx, repo.profileInTx)
	}
}

func TestSignupValidatesRoleFields(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()

	noAddress := customerSignup()
	noAddress.Address = ""
	if _, err := svc.Signup(ctx, noAddress); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected ErrValidation got %v", err)
	}

	noBike := driverSignup()
	noBike.BikeRegistration = ""
	if _, err := svc.Signup(ctx, noBike); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected ErrValidation got %v", err)
	}

	badRole := customerSignup()
	badRole.Role = models.RoleAdmin
	if _, err := svc.Signup(ctx, badRole); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected ErrValidation got %v", err)
	}
}

func TestSignupRejectsDuplicateEmail(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, customerSignup()); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if _, err := svc.Signup(ctx, customerSignup()); !errors.Is(err, models.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken got %v", err)
	}
}

func activate(t *testing.T, repo *MemoryRepository, userID string) {
	t.Helper()
	u, ok := repo.users[userID]
	if !ok {
		t.Fatalf("user %s not found", userID)
	}
	u.Status = models.UserStatusActive
}

func TestLoginGatesOnStatusAndIssuesToken(t *testing.T) {
	svc, repo, _ := newUserService(t)
	ctx := context.Background()

	user, err := svc.Signup(ctx, customerSignup())
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	// Pending accounts cannot log in.
	login := models.LoginRequest{Email: "alice@example.com", Password: "correct horse"}
	if _, err := svc.Login(ctx, login); !errors.Is(err, models.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for pending account, got %v", err)
	}

	activate(t, repo, user.ID)

	auth, err := svc.Login(ctx, login)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	parsed, err := jwt.ParseWithClaims(auth.AccessToken, &models.JwtCustomClaims{}, func(*jwt.Token) (any, error) {
		return []byte(testSecret), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("token does not verify: %v", err)
	}
	claims := parsed.Claims.(*models.JwtCustomClaims)
	if claims.UserID != user.ID || claims.Role != models.RoleCustomer {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	svc, repo, _ := newUserService(t)
	ctx := context.Background()

	user, _ := svc.Signup(ctx, customerSignup())
	activate(t, repo, user.ID)

	_, err := svc.Login(ctx, models.LoginRequest{Email: "alice@example.com", Password: "nope"})
	if !errors.Is(err, models.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials got %v", err)
	}
	_, err = svc.Login(ctx, models.LoginRequest{Email: "ghost@example.com", Password: "nope"})
	if !errors.Is(err, models.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestGetProfileIncludesRoleProfile(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()

	driver, err := svc.Signup(ctx, driverSignup())
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	profile, err := svc.GetProfile(ctx, driver.ID)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.Driver == nil || profile.Customer != nil {
		t.Fatalf("expected only the driver profile, got %+v", profile)
	}
}

func TestToggleOnlineFlipsAndBroadcasts(t *testing.T) {
	svc, repo, bus := newUserService(t)
	ctx := context.Background()

	driver, err := svc.Signup(ctx, driverSignup())
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	activate(t, repo, driver.ID)

	sub := realtime.NewSubscriber(8)
	bus.Subscribe(realtime.DriversGroup, sub)

	resp, err := svc.ToggleOnline(ctx, driver.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !resp.IsOnline {
		t.Fatalf("expected online after first toggle")
	}
	if len(sub.C()) != 1 {
		t.Fatalf("expected a driver_status broadcast, got %d", len(sub.C()))
	}

	resp, err = svc.ToggleOnline(ctx, driver.ID)
	if err != nil {
		t.Fatalf("toggle back: %v", err)
	}
	if resp.IsOnline {
		t.Fatalf("expected offline after second toggle")
	}

	stored, _ := repo.FindDriver(ctx, driver.ID)
	if stored.IsOnline {
		t.Fatalf("store still shows online")
	}
}
