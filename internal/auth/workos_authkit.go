package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/workos/workos-go/v6/pkg/usermanagement"
)

// AuthKitConfig はWorkOS AuthKitプロバイダーの設定。
type AuthKitConfig struct {
	APIKey      string
	ClientID    string
	RedirectURI string
}

// AuthKitProvider はWorkOS AuthKit（ホスト型ログイン画面）による認証を提供する。
type AuthKitProvider struct {
	config AuthKitConfig

	authorizationURL func(opts usermanagement.GetAuthorizationURLOpts) (*url.URL, error)
	authenticate     func(ctx context.Context, opts usermanagement.AuthenticateWithCodeOpts) (usermanagement.AuthenticateResponse, error)
}

// NewAuthKitProvider はAPIキーを設定し、AuthKitProviderを生成する。
func NewAuthKitProvider(config AuthKitConfig) *AuthKitProvider {
	usermanagement.SetAPIKey(config.APIKey)
	return &AuthKitProvider{
		config:           config,
		authorizationURL: usermanagement.GetAuthorizationURL,
		authenticate:     usermanagement.AuthenticateWithCode,
	}
}

// GetLoginURL はAuthKitの認証URLを生成する。
func (p *AuthKitProvider) GetLoginURL(state string) (string, error) {
	u, err := p.authorizationURL(usermanagement.GetAuthorizationURLOpts{
		ClientID:    p.config.ClientID,
		RedirectURI: p.config.RedirectURI,
		State:       state,
		Provider:    "authkit",
	})
	if err != nil {
		return "", fmt.Errorf("failed to build authorization URL: %w", err)
	}
	return u.String(), nil
}

// ExchangeCode は認可コードでWorkOSに認証し、ユーザー情報を取得する。
func (p *AuthKitProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	resp, err := p.authenticate(ctx, usermanagement.AuthenticateWithCodeOpts{
		ClientID: p.config.ClientID,
		Code:     code,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate with code: %w", err)
	}

	return &OAuthUserInfo{
		ProviderUserID: resp.User.ID,
		Email:          resp.User.Email,
		Name:           strings.TrimSpace(resp.User.FirstName + " " + resp.User.LastName),
		Provider:       "workos",
	}, nil
}
