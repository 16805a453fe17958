package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"courier-platform/internal/models"
	"courier-platform/internal/realtime"
	"courier-platform/internal/storage"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ProfileResponse bundles a user with its role-specific profile.
type ProfileResponse struct {
	User     *models.User     `json:"user"`
	Customer *models.Customer `json:"customer,omitempty"`
	Driver   *models.Driver   `json:"driver,omitempty"`
}

// ServiceInterface defines user business logic.
type ServiceInterface interface {
	Signup(ctx context.Context, req models.SignupRequest) (*models.User, error)
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
	GetProfile(ctx context.Context, userID string) (*ProfileResponse, error)
	ToggleOnline(ctx context.Context, driverID string) (*models.OnlineToggleResponse, error)
}

// Service implements ServiceInterface.
type Service struct {
	repo      RepositoryInterface
	bus       realtime.Bus
	tx        storage.TxRunner
	jwtSecret string
}

// NewService creates a new user service.
func NewService(repo RepositoryInterface, bus realtime.Bus, tx storage.TxRunner, jwtSecret string) *Service {
	return &Service{repo: repo, bus: bus, tx: tx, jwtSecret: jwtSecret}
}

// Signup registers a new customer or driver account. Accounts start in the
// pending status and cannot log in until approved.
func (s *Service) Signup(ctx context.Context, req models.SignupRequest) (*models.User, error) {
	if _, err := s.repo.FindUserByEmail(ctx, req.Email); err == nil {
		return nil, models.ErrEmailTaken
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("service.Signup.FindUserByEmail: %w", err)
	}

	switch req.Role {
	case models.RoleCustomer:
		if req.Address == "" {
			return nil, fmt.Errorf("%w: address is required for customers", models.ErrValidation)
		}
	case models.RoleDriver:
		if req.BikeRegistration == "" || req.IDNumber == "" {
			return nil, fmt.Errorf("%w: bike registration and ID number are required for drivers", models.ErrValidation)
		}
	default:
		return nil, fmt.Errorf("%w: role must be customer or driver", models.ErrValidation)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("service.Signup.Hash: %w", err)
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hashed),
		Phone:        req.Phone,
		Role:         req.Role,
		Status:       models.UserStatusPending,
	}
	// The user row and its role profile commit or roll back together, so a
	// failed profile insert cannot strand the email address.
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateUser(ctx, user); err != nil {
			return fmt.Errorf("service.Signup.CreateUser: %w", err)
		}
		switch req.Role {
		case models.RoleCustomer:
			err = s.repo.CreateCustomer(ctx, &models.Customer{UserID: user.ID, Address: req.Address})
		case models.RoleDriver:
			err = s.repo.CreateDriver(ctx, &models.Driver{
				UserID:           user.ID,
				BikeRegistration: req.BikeRegistration,
				IDNumber:         req.IDNumber,
			})
		}
		if err != nil {
			return fmt.Errorf("service.Signup.CreateProfile: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

// Login verifies credentials, gates on account status and issues a token.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	user, err := s.repo.FindUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("service.Login.FindUserByEmail: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, models.ErrInvalidCredentials
	}
	if user.Status != models.UserStatusActive {
		return nil, models.ErrInvalidCredentials
	}

	claims := &models.JwtCustomClaims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour * 24 * 30)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, fmt.Errorf("service.Login.Sign: %w", err)
	}

	return &models.AuthResponse{AccessToken: signed, User: user}, nil
}

// GetProfile returns the user with its role profile.
func (s *Service) GetProfile(ctx context.Context, userID string) (*ProfileResponse, error) {
	user, err := s.repo.FindUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := &ProfileResponse{User: user}
	switch user.Role {
	case models.RoleCustomer:
		if resp.Customer, err = s.repo.FindCustomer(ctx, userID); err != nil {
			return nil, err
		}
	case models.RoleDriver:
		if resp.Driver, err = s.repo.FindDriver(ctx, userID); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// ToggleOnline flips a driver's presence and announces it on the global
// drivers group.
func (s *Service) ToggleOnline(ctx context.Context, driverID string) (*models.OnlineToggleResponse, error) {
	driver, err := s.repo.FindDriver(ctx, driverID)
	if err != nil {
		return nil, err
	}
	online := !driver.IsOnline
	if err := s.repo.SetDriverOnline(ctx, driverID, online); err != nil {
		return nil, err
	}

	user, err := s.repo.FindUser(ctx, driverID)
	if err != nil {
		return nil, err
	}

	// Best-effort broadcast; a publish failure never undoes the toggle.
	_ = s.bus.Publish(realtime.DriversGroup, realtime.NewEvent(realtime.EventDriverStatus, map[string]any{
		"driver_id": driverID,
		"username":  user.Username,
		"is_online": online,
	}))

	msg := "You are now offline"
	if online {
		msg = "You are now online"
	}
	return &models.OnlineToggleResponse{IsOnline: online, Message: msg}, nil
}
