// Package auth はIdPによるログインフロー、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/geostats/probono/internal/model"
	"github.com/geostats/probono/internal/repository"
)

// OAuthUserInfo はIdPから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Provider       string
}

// OAuthProvider はログインプロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL は認証URLを生成する。
	GetLoginURL(state string) (string, error)
	// ExchangeCode は認可コードをユーザー情報に交換する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
// セッションはIdPのサブジェクトに紐付け、ローカルのユーザー作成はオンボーディングで行う。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		config:      config,
	}
}

// GetLoginURL は認証URLを生成する。
func (s *Service) GetLoginURL(state string) (string, error) {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はコールバックを処理し、セッションを発行する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}
	if userInfo.ProviderUserID == "" {
		return nil, fmt.Errorf("empty subject in provider response")
	}

	session, err := s.createSession(ctx, userInfo.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user logged in",
		slog.String("auth_id", userInfo.ProviderUserID),
		slog.String("provider", userInfo.Provider),
	)
	return session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// CurrentSession はセッションの状態を返す。
// userはオンボーディング前（ローカルのユーザー未作成）の場合nil。
func (s *Service) CurrentSession(ctx context.Context, sessionID string) (*model.Session, *model.User, error) {
	if sessionID == "" {
		return nil, nil, fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil, fmt.Errorf("session not found or expired")
	}

	user, err := s.userRepo.FindByAuthID(ctx, session.AuthID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}
	return session, user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, authID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		ID:        sessionID,
		AuthID:    authID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
