package service

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/scan-service/internal/auth"
	"github.com/spec-kit/scan-service/internal/config"
	"github.com/spec-kit/scan-service/internal/domain"
	"github.com/spec-kit/scan-service/internal/repository"
)

// AuthService coordinates device and admin login flows.
type AuthService struct {
	devices  repository.DeviceRepository
	admins   repository.AdminRepository
	tokenMgr *auth.TokenManager
}

// AuthDependencies encapsulates repo requirements for auth service.
type AuthDependencies struct {
	DeviceRepo repository.DeviceRepository
	AdminRepo  repository.AdminRepository
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	return &AuthService{
		devices:  deps.DeviceRepo,
		admins:   deps.AdminRepo,
		tokenMgr: auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
	}
}

// TokenManager exposes the manager for middleware wiring.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

// LoginDevice authenticates a scanning device by ID and shared secret.
func (s *AuthService) LoginDevice(ctx context.Context, deviceID, secret string) (*domain.Device, string, time.Time, error) {
	device, err := s.devices.GetByID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", time.Time{}, errors.New("invalid credentials")
		}
		return nil, "", time.Time{}, err
	}
	if device.Status != domain.DeviceStatusActive {
		return nil, "", time.Time{}, errors.New("device disabled")
	}
	if err := auth.CompareSecret(device.SecretHash, secret); err != nil {
		return nil, "", time.Time{}, errors.New("invalid credentials")
	}

	_ = s.devices.TouchLastSeen(ctx, device.ID)

	token, exp, err := s.tokenMgr.GenerateToken(device.ID, domain.SubjectTypeDevice)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return device, token, exp, nil
}

// LoginAdmin authenticates an operator account.
func (s *AuthService) LoginAdmin(ctx context.Context, email, password string) (*domain.AdminAccount, string, time.Time, error) {
	admin, err := s.admins.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", time.Time{}, errors.New("invalid credentials")
		}
		return nil, "", time.Time{}, err
	}
	if err := auth.CompareSecret(admin.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, errors.New("invalid credentials")
	}

	token, exp, err := s.tokenMgr.GenerateToken(admin.ID, domain.SubjectTypeAdmin)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return admin, token, exp, nil
}
