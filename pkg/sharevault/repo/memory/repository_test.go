package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/sharevault/pkg/sharevault"
	"github.com/tendant/sharevault/pkg/sharevault/repo/memory"
	"github.com/tendant/sharevault/pkg/sharevault/repo/repotest"
)

func TestMemoryRepository_Conformance(t *testing.T) {
	repotest.Run(t, func(t *testing.T) sharevault.Repository {
		return memory.New()
	})
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	item := repotest.Item("one", "Alpha", 1)
	item.Tags = []string{"x"}
	require.NoError(t, repo.Create(ctx, item))

	item.Title = "mutated after create"
	got, err := repo.GetByID(ctx, "one")
	require.NoError(t, err)
	assert.Equal(t, "Title one", got.Title)

	got.Tags[0] = "mutated"
	again, err := repo.GetByID(ctx, "one")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, again.Tags)
}

func TestMemoryRepository_CancelledContext(t *testing.T) {
	repo := memory.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.FetchPage(ctx, sharevault.AllItems(), 0, 10)
	assert.ErrorIs(t, err, sharevault.ErrRepositoryUnavailable)
	assert.True(t, sharevault.IsRetryable(err))
}
