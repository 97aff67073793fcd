package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahmetcoskunkizilkaya/chat-relay/internal/models"
	"gorm.io/gorm"
)

var (
	ErrEmailTaken   = errors.New("email already registered")
	ErrUserNotFound = errors.New("user not found")
)

// Store owns all User and Message records.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	taken, err := s.emailTaken(ctx, user.Email, 0)
	if err != nil {
		return err
	}
	if taken {
		return ErrEmailTaken
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *Store) UserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UpdateUser writes name, email and password hash. Concurrent updates are
// last-writer-wins.
func (s *Store) UpdateUser(ctx context.Context, user *models.User) error {
	taken, err := s.emailTaken(ctx, user.Email, user.ID)
	if err != nil {
		return err
	}
	if taken {
		return ErrEmailTaken
	}

	result := s.db.WithContext(ctx).Model(user).
		Select("Name", "Email", "PasswordHash").
		Updates(user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to update user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DeleteUser removes the user and every message they own.
func (s *Store) DeleteUser(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.User{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrUserNotFound
		}
		return nil
	})
}

// RecentMessages returns at most n of the user's latest messages, oldest first.
func (s *Store) RecentMessages(ctx context.Context, userID uint, n int) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(n).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// History returns every message of the user, oldest first.
func (s *Store) History(ctx context.Context, userID uint) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&msgs).Error
	return msgs, err
}

// AppendExchange stores the user turn followed by the assistant reply in a
// single transaction.
func (s *Store) AppendExchange(ctx context.Context, userID uint, userTurn, reply string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.Message{UserID: userID, Role: models.RoleUser, Content: userTurn}).Error; err != nil {
			return err
		}
		return tx.Create(&models.Message{UserID: userID, Role: models.RoleAssistant, Content: reply}).Error
	})
}

func (s *Store) RevokeToken(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	var existing models.RevokedToken
	err := s.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	record := models.RevokedToken{TokenHash: tokenHash, ExpiresAt: expiresAt.UTC()}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("failed to store revoked token: %w", err)
	}
	return nil
}

func (s *Store) IsTokenRevoked(ctx context.Context, tokenHash string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.RevokedToken{}).
		Where("token_hash = ? AND expires_at > ?", tokenHash, time.Now().UTC()).
		Count(&count).Error
	return count > 0, err
}

// PurgeRevokedTokens deletes denylist entries whose token has expired anyway.
func (s *Store) PurgeRevokedTokens(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at <= ?", now.UTC()).Delete(&models.RevokedToken{})
	return result.RowsAffected, result.Error
}

func (s *Store) emailTaken(ctx context.Context, email string, exceptID uint) (bool, error) {
	var count int64
	q := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
