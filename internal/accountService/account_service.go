package account

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"marketplace-bidding/internal/biddingerrors"
	"marketplace-bidding/internal/models"
	"marketplace-bidding/internal/payments"
	"marketplace-bidding/internal/repository"
	"marketplace-bidding/utils"
)

var firstNamePattern = regexp.MustCompile(`^[A-Za-z ]+$`)

// Profile is the caller-editable part of a user record
type Profile struct {
	Email     string `validate:"required,email"`
	FirstName string `validate:"required,min=2,firstname"`
}

// AccountService manages user profiles and saved payment methods
type AccountService struct {
	repo     repository.MarketDB
	provider payments.Provider
	validate *validator.Validate
	timeout  time.Duration
	now      func() time.Time
}

// NewAccountService creates a new AccountService instance
func NewAccountService(repo repository.MarketDB, provider payments.Provider, timeout time.Duration) *AccountService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	v := validator.New()
	if err := v.RegisterValidation("firstname", func(fl validator.FieldLevel) bool {
		return firstNamePattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("register firstname validation: %v", err))
	}
	return &AccountService{
		repo:     repo,
		provider: provider,
		validate: v,
		timeout:  timeout,
		now:      time.Now,
	}
}

// SaveProfile creates or updates the caller's user record
func (s *AccountService) SaveProfile(ctx context.Context, userID string, p Profile) (models.User, error) {
	if userID == "" {
		return models.User{}, fmt.Errorf("service: %w - no caller identity", biddingerrors.ErrNotAuthenticated)
	}
	p.Email = strings.TrimSpace(p.Email)
	p.FirstName = strings.TrimSpace(p.FirstName)
	if err := s.validate.Struct(p); err != nil {
		return models.User{}, fmt.Errorf("service: %w - %s", biddingerrors.ErrInvalidRequest, biddingerrors.DescribeValidation(err))
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user := models.User{UserID: userID, Email: p.Email, FirstName: p.FirstName}
	if err := s.repo.SaveUser(ctx, user); err != nil {
		return models.User{}, fmt.Errorf("service: failed to save user %s: %w", userID, err)
	}
	return user, nil
}

// GetProfile returns the caller's user record
func (s *AccountService) GetProfile(ctx context.Context, userID string) (models.User, error) {
	if userID == "" {
		return models.User{}, fmt.Errorf("service: %w - no caller identity", biddingerrors.ErrNotAuthenticated)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return models.User{}, fmt.Errorf("service: failed to get user %s: %w", userID, err)
	}
	return user, nil
}

// CreatePaymentMethod exchanges a card token for a provider payment method id
// without saving it
func (s *AccountService) CreatePaymentMethod(ctx context.Context, cardToken string) (string, error) {
	if strings.TrimSpace(cardToken) == "" {
		return "", fmt.Errorf("service: %w - empty card token", biddingerrors.ErrInvalidRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	id, err := s.provider.CreatePaymentMethod(ctx, cardToken)
	if err != nil {
		return "", fmt.Errorf("service: failed to create payment method: %w", err)
	}
	return id, nil
}

// AddPaymentMethod tokenizes the card and saves the resulting payment method
// under the caller
func (s *AccountService) AddPaymentMethod(ctx context.Context, userID, cardToken string) (models.PaymentMethod, error) {
	if userID == "" {
		return models.PaymentMethod{}, fmt.Errorf("service: %w - no caller identity", biddingerrors.ErrNotAuthenticated)
	}

	id, err := s.CreatePaymentMethod(ctx, cardToken)
	if err != nil {
		return models.PaymentMethod{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	pm, err := s.repo.AppendPaymentMethod(ctx, userID, models.PaymentMethod{
		PaymentMethodID: id,
		CreatedAt:       s.now().UTC(),
	})
	if err != nil {
		utils.Error("payment method created but not saved", map[string]any{
			"user_id":           userID,
			"payment_method_id": id,
			"error":             err.Error(),
		})
		return models.PaymentMethod{}, fmt.Errorf("service: failed to save payment method for %s: %w", userID, err)
	}
	return pm, nil
}

// ListPaymentMethods returns the caller's saved payment methods
func (s *AccountService) ListPaymentMethods(ctx context.Context, userID string) ([]models.PaymentMethod, error) {
	if userID == "" {
		return nil, fmt.Errorf("service: %w - no caller identity", biddingerrors.ErrNotAuthenticated)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	methods, err := s.repo.ListPaymentMethods(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list payment methods for %s: %w", userID, err)
	}
	return methods, nil
}
