package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"stayfinder/internal/database"
	"stayfinder/internal/domain"
	"stayfinder/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// ProfileInput carries the fields a user may edit on their own profile.
type ProfileInput struct {
	Name           string `json:"name" validate:"required,max=200"`
	Email          string `json:"email" validate:"required,email"`
	TelegramChatID int64  `json:"telegram_chat_id"`
}

type UserService struct {
	repo     domain.UserRepository
	validate *validator.Validate
	logger   *zerolog.Logger
}

func NewUserService(repo domain.UserRepository, logger *zerolog.Logger) *UserService {
	return &UserService{
		repo:     repo,
		validate: validator.New(),
		logger:   logger,
	}
}

func (s *UserService) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	user, err := readWithRetry(ctx, func(ctx context.Context) (*models.User, error) {
		return s.repo.GetUserByID(ctx, id)
	})
	if errors.Is(err, database.ErrNotFound) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", id, err)
	}
	return user, nil
}

// SaveProfile creates or updates the profile of id. The role is kept as stored.
func (s *UserService) SaveProfile(ctx context.Context, id int64, in ProfileInput) (*models.User, error) {
	if id == 0 {
		return nil, domain.ErrNotAuthorized
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMissingFields, err)
	}

	user, err := s.GetUserByID(ctx, id)
	if errors.Is(err, domain.ErrUserNotFound) {
		user = &models.User{ID: id, Role: models.RoleGuest}
	} else if err != nil {
		return nil, err
	}

	user.Name = in.Name
	user.Email = in.Email
	user.TelegramChatID = in.TelegramChatID
	if err := s.repo.UpsertUser(ctx, user); err != nil {
		return nil, fmt.Errorf("save user %d: %w", id, err)
	}
	s.logger.Debug().Int64("user_id", id).Msg("profile saved")
	return user, nil
}
