package trigger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-github/v60/github"

	"github.com/CurvatureX/trigger-engine/common/cache"
)

// tokenRefreshSkew is how far ahead of a token's actual expiry it is
// considered stale, so a request never starts against a token that could
// expire mid-flight.
const tokenRefreshSkew = 60 * time.Second

// githubAppAuthenticator mints and caches GitHub App installation access
// tokens, refreshing 60 seconds before the token's platform-enforced
// 1-hour expiry. Cached tokens are stored in a shared cache.Cache keyed by
// installation ID, so multiple GitHubTrigger instances for the same
// installation (e.g. one per matching workflow) reuse a token once any of
// them has cached it. The mutex that serializes minting belongs to one
// authenticator, so concurrent misses on different instances can each mint.
type githubAppAuthenticator struct {
	appID          int64
	privateKeyPEM  string
	installationID int64
	client         *github.Client
	cache          cache.Cache

	mu sync.Mutex
}

func newGitHubAppAuthenticator(appID, installationID int64, privateKeyPEM string, tokenCache cache.Cache) *githubAppAuthenticator {
	return &githubAppAuthenticator{
		appID:          appID,
		privateKeyPEM:  privateKeyPEM,
		installationID: installationID,
		client:         github.NewClient(nil),
		cache:          tokenCache,
	}
}

func (a *githubAppAuthenticator) cacheKey() string {
	return fmt.Sprintf("github_installation_token:%d", a.installationID)
}

// accessToken returns a valid installation access token, minting a fresh
// one when no unexpired token is cached for this installation. The mutex
// serializes concurrent misses so two simultaneous callers don't both hit
// the GitHub API for the same installation.
func (a *githubAppAuthenticator) accessToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cache != nil {
		if cached, ok, err := a.cache.Get(ctx, a.cacheKey()); err == nil && ok {
			return string(cached), nil
		}
	}

	appJWT, err := a.appJWT()
	if err != nil {
		return "", fmt.Errorf("sign github app jwt: %w", err)
	}

	client := a.client.WithAuthToken(appJWT)
	tok, _, err := client.Apps.CreateInstallationToken(ctx, a.installationID, nil)
	if err != nil {
		return "", fmt.Errorf("create installation token: %w", err)
	}

	token := tok.GetToken()
	expiresAt := tok.GetExpiresAt().Time
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(59 * time.Minute)
	}

	if a.cache != nil {
		if ttl := time.Until(expiresAt) - tokenRefreshSkew; ttl > 0 {
			// Best-effort: a cache write failure just means the next call
			// re-mints, it doesn't invalidate the token being returned now.
			_ = a.cache.Set(ctx, a.cacheKey(), []byte(token), ttl)
		}
	}

	return token, nil
}

// authenticatedClient returns a *github.Client bound to a valid installation
// access token, for callers (the repository-context payload enhancement)
// that need more than the raw token string.
func (a *githubAppAuthenticator) authenticatedClient(ctx context.Context) (*github.Client, error) {
	token, err := a.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	return a.client.WithAuthToken(token), nil
}

// appJWT signs a short-lived JSON Web Token identifying the GitHub App
// itself, used solely to mint installation tokens.
func (a *githubAppAuthenticator) appJWT() (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(a.privateKeyPEM))
	if err != nil {
		return "", fmt.Errorf("parse private key: %w", err)
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
		Issuer:    fmt.Sprintf("%d", a.appID),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(key)
}
