package repositories

import (
	"context"
	stderrors "errors"

	"github.com/mroshb/campus_match/internal/models"
	"github.com/mroshb/campus_match/pkg/errors"
	"gorm.io/gorm"
)

// UserRepository reads the identity mirror. It satisfies services.Identity.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetUserByID retrieves a user by ID
func (r *UserRepository) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	result := r.db.WithContext(ctx).First(&user, id)

	if stderrors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, errors.New(errors.ErrCodeNotFound, "user not found")
	}
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, errors.ErrCodeInternalError, "failed to get user")
	}

	return &user, nil
}

// IsVerified reports whether the user passed verification. Unknown users
// are simply not verified.
func (r *UserRepository) IsVerified(ctx context.Context, id uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND verified = ?", id, true).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternalError, "failed to check verification")
	}
	return count > 0, nil
}

// Category returns the user's declared pairing category.
func (r *UserRepository) Category(ctx context.Context, id uint) (models.Category, error) {
	user, err := r.GetUserByID(ctx, id)
	if err != nil {
		return "", err
	}
	return models.Category(user.Gender), nil
}

// TelegramID returns the chat the user receives notifications in.
func (r *UserRepository) TelegramID(ctx context.Context, id uint) (int64, error) {
	user, err := r.GetUserByID(ctx, id)
	if err != nil {
		return 0, err
	}
	return user.TelegramID, nil
}
