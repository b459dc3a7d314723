package handler

import (
	"context"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/usman4222/Pharma-Backend-sub000/internal/apperrors"
	"github.com/usman4222/Pharma-Backend-sub000/internal/database/models"
	"github.com/usman4222/Pharma-Backend-sub000/internal/utils"
)

const tokenTTL = 24 * time.Hour

type UserHandler struct {
	db *gorm.DB
}

func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{db: db}
}

type RegisterRequest struct {
	Username string
	Email    string
	Password string
	Role     string
}

func (s *UserHandler) Register(ctx context.Context, req *RegisterRequest) (*models.User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Email == "" {
		return nil, apperrors.Validation("username and email required")
	}
	if len(req.Password) < 8 {
		return nil, apperrors.Validation("password must be at least 8 characters")
	}

	var existing models.User
	err := s.db.WithContext(ctx).
		Where("username = ? OR email = ?", username, req.Email).
		First(&existing).Error
	if err == nil {
		return nil, apperrors.Conflict("username or email already taken")
	}
	if err != gorm.ErrRecordNotFound {
		return nil, apperrors.Internal(err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	role := req.Role
	if role == "" {
		role = "staff"
	}

	user := models.User{
		Username: username,
		Email:    req.Email,
		Password: string(hashed),
		Role:     role,
		IsActive: true,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, apperrors.Internal(err)
	}

	user.Password = ""
	return &user, nil
}

type LoginRequest struct {
	Username string
	Password string
}

type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

func (s *UserHandler) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("username = ?", req.Username).First(&user).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.Validation("invalid credentials")
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !user.IsActive {
		return nil, apperrors.Validation("invalid credentials")
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		return nil, apperrors.Validation("invalid credentials")
	}

	token, exp, err := utils.GenerateToken(user.ID, user.Username, tokenTTL)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	now := time.Now()
	_ = s.db.WithContext(ctx).Model(&user).Update("last_login", &now).Error

	user.Password = ""
	return &LoginResponse{Token: token, ExpiresAt: exp, User: &user}, nil
}
