// Package platform talks to the hosted code platform: installation token
// issuance, repository archive download, and webhook payload handling.
package platform

import (
	"context"
	"crypto/rsa"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gogithub "github.com/google/go-github/v68/github"
	"github.com/spf13/viper"
	"golang.org/x/oauth2"
)

// TokenBroker mints short-lived installation access tokens.
type TokenBroker interface {
	IssueToken(ctx context.Context, installationID int64) (string, error)
}

// AppTokenBroker issues installation tokens by authenticating as a GitHub
// App: it signs a short-lived app JWT with the App's private key and
// exchanges it for an installation token.
type AppTokenBroker struct {
	appID      string
	privateKey *rsa.PrivateKey
}

// NewAppTokenBroker builds a broker from GITHUB_APP_ID and the PEM in
// GITHUB_PRIVATE_KEY (with literal \n sequences unescaped) or the file at
// GITHUB_PRIVATE_KEY_PATH.
func NewAppTokenBroker() (*AppTokenBroker, error) {
	appID := viper.GetString("GITHUB_APP_ID")
	if appID == "" {
		return nil, fmt.Errorf("GITHUB_APP_ID is not configured")
	}
	pem, err := loadPrivateKeyPEM()
	if err != nil {
		return nil, err
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(pem))
	if err != nil {
		return nil, fmt.Errorf("parsing app private key: %w", err)
	}
	return &AppTokenBroker{appID: appID, privateKey: key}, nil
}

func loadPrivateKeyPEM() (string, error) {
	if raw := viper.GetString("GITHUB_PRIVATE_KEY"); raw != "" {
		return strings.ReplaceAll(strings.TrimSpace(raw), `\n`, "\n"), nil
	}
	if path := viper.GetString("GITHUB_PRIVATE_KEY_PATH"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading app private key file: %w", err)
		}
		return string(data), nil
	}
	return "", fmt.Errorf("neither GITHUB_PRIVATE_KEY nor GITHUB_PRIVATE_KEY_PATH is configured")
}

// appJWT signs the App authentication JWT. Issued-at is backdated one minute
// to tolerate clock drift against the platform.
func (b *AppTokenBroker) appJWT() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    b.appID,
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(b.privateKey)
}

// IssueToken exchanges the app JWT for an installation access token.
func (b *AppTokenBroker) IssueToken(ctx context.Context, installationID int64) (string, error) {
	appJWT, err := b.appJWT()
	if err != nil {
		return "", fmt.Errorf("signing app JWT: %w", err)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: appJWT})
	client := gogithub.NewClient(oauth2.NewClient(ctx, ts))
	token, _, err := client.Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		return "", fmt.Errorf("creating installation token for %d: %w", installationID, err)
	}
	return token.GetToken(), nil
}
