package service

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"parkspot/internal/auth"
	"parkspot/internal/repository"
)

type AdminAuthService interface {
	Login(ctx context.Context, email, password string) (string, error)
	CreateAdmin(ctx context.Context, email, password string) error
}

type adminAuthService struct {
	repo   repository.AdminAuthRepository
	secret []byte
}

func NewAdminAuthService(repo repository.AdminAuthRepository, jwtSecret []byte) AdminAuthService {
	return &adminAuthService{repo: repo, secret: jwtSecret}
}

func (s *adminAuthService) Login(ctx context.Context, email, password string) (string, error) {
	admin, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if admin == nil {
		return "", errors.New("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return "", errors.New("invalid credentials")
	}
	if len(s.secret) == 0 {
		return "", errors.New("JWT_SECRET not set")
	}

	return auth.IssueToken(s.secret, admin.Email, auth.RoleAdmin, time.Hour)
}

func (s *adminAuthService) CreateAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return errors.New("email and password cannot be empty")
	}
	return s.repo.CreateNewUser(ctx, email, password)
}
