package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/crossposthq/crosspost-api/internal/models"
	"github.com/crossposthq/crosspost-api/internal/repository"
)

type AccountService interface {
	List(ctx context.Context, userID string) ([]*models.SocialAccount, error)
	Disconnect(ctx context.Context, userID string, accountID int64) error
}

type accountService struct {
	sa repository.SocialAccountRepository
}

func NewAccountService(sa repository.SocialAccountRepository) AccountService {
	return &accountService{sa: sa}
}

func (s *accountService) List(ctx context.Context, userID string) ([]*models.SocialAccount, error) {
	if userID == "" {
		err := errors.New("user is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	accounts, err := s.sa.ListInfoByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting social accounts")
	}

	return accounts, nil
}

// Disconnect marks the account revoked; posts already published through
// it keep their history rows.
func (s *accountService) Disconnect(ctx context.Context, userID string, accountID int64) error {
	if accountID == 0 {
		err := errors.New("account id is not valid")
		slog.Info(err.Error())
		return err
	}

	isValid, err := s.sa.CheckByUserID(ctx, accountID, userID)
	if err != nil {
		return err
	}
	if !isValid {
		err = errors.New("social account doesn't exist")
		slog.Info(err.Error())
		return err
	}

	if err := s.sa.MarkRevoked(ctx, accountID); err != nil {
		return fmt.Errorf("error disconnecting account")
	}

	return nil
}
