package service

import (
	"context"
	"fmt"

	"crewmind/internal/model"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthService struct{ db *gorm.DB }

func NewAuthService(db *gorm.DB) *AuthService { return &AuthService{db: db} }

func (s *AuthService) Login(ctx context.Context, username, password string) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		return nil, fmt.Errorf("wrong password")
	}
	return &u, nil
}

func (s *AuthService) GetUser(ctx context.Context, id int) (model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return model.User{}, fmt.Errorf("load user %d: %w", id, err)
	}
	return u, nil
}
