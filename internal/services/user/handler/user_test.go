package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/usman4222/Pharma-Backend-sub000/internal/apperrors"
	"github.com/usman4222/Pharma-Backend-sub000/internal/database/models"
	"github.com/usman4222/Pharma-Backend-sub000/internal/utils"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})
	return db
}

func TestRegisterAndLogin(t *testing.T) {
	db := setupTestDB(t)
	h := NewUserHandler(db)
	ctx := context.Background()

	user, err := h.Register(ctx, &RegisterRequest{
		Username: "owner",
		Email:    "owner@example.com",
		Password: "s3cret-pass",
	})
	require.NoError(t, err)
	assert.Equal(t, "staff", user.Role)
	assert.Empty(t, user.Password)

	resp, err := h.Login(ctx, &LoginRequest{Username: "owner", Password: "s3cret-pass"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Token)

	claims, err := utils.ParseToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserId)
	assert.Equal(t, "owner", claims.Username)

	var stored models.User
	require.NoError(t, db.First(&stored, user.ID).Error)
	assert.NotNil(t, stored.LastLogin)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	db := setupTestDB(t)
	h := NewUserHandler(db)
	ctx := context.Background()

	_, err := h.Register(ctx, &RegisterRequest{Username: "dup", Email: "dup@example.com", Password: "password1"})
	require.NoError(t, err)

	_, err = h.Register(ctx, &RegisterRequest{Username: "dup", Email: "other@example.com", Password: "password1"})
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))

	_, err = h.Register(ctx, &RegisterRequest{Username: "short", Email: "s@example.com", Password: "short"})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}

func TestLoginBadCredentials(t *testing.T) {
	db := setupTestDB(t)
	h := NewUserHandler(db)
	ctx := context.Background()

	_, err := h.Register(ctx, &RegisterRequest{Username: "sara", Email: "sara@example.com", Password: "password1"})
	require.NoError(t, err)

	_, err = h.Login(ctx, &LoginRequest{Username: "sara", Password: "wrong-pass"})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = h.Login(ctx, &LoginRequest{Username: "ghost", Password: "whatever"})
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
}
