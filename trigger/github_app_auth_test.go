package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CurvatureX/trigger-engine/common/cache"
	"github.com/CurvatureX/trigger-engine/common/logger"
)

// TestGithubAppAuthenticatorUsesCachedToken confirms a cache hit is returned
// directly, without attempting to mint a fresh token (which would require a
// real network call to the GitHub API).
func TestGithubAppAuthenticatorUsesCachedToken(t *testing.T) {
	tokenCache := cache.NewMemoryCache(logger.New("error", "text"))
	auth := newGitHubAppAuthenticator(1, 42, "unused", tokenCache)

	ctx := context.Background()
	require.NoError(t, tokenCache.Set(ctx, auth.cacheKey(), []byte("cached-token"), 5*time.Minute))

	token, err := auth.accessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cached-token", token)
}
