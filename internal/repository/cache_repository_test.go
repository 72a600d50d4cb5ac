package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, "defense")
	var out map[string]string

	assert.ErrorIs(t, repo.Get(context.Background(), "committee:C1", &out), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(context.Background(), "committee:C1", map[string]string{"a": "b"}, time.Minute))
	assert.NoError(t, repo.DeleteByPattern(context.Background(), "committee:*"))
	assert.NoError(t, repo.Close())
	assert.Equal(t, "defense:committee:C1", repo.key("committee:C1"))
}
