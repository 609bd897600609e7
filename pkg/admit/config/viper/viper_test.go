package viperconfig

import (
	"context"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"

	"github.com/mihaimyh/goadmit/pkg/admit"
	"github.com/mihaimyh/goadmit/store/memory"
)

func TestSourceSnapshot(t *testing.T) {
	v := viper.New()
	v.Set(KeyInitialCredits, 500)
	v.Set(KeyUserMaxRequests, 30)
	v.Set(KeyOperatorUserIDs, []string{"ops-1", "ops-2"})

	src := New(v)
	cfg := src.Current()

	assert.Equal(t, 500, cfg.InitialCredits)
	assert.Equal(t, 30, cfg.UserMaxRequests)
	assert.Equal(t, []string{"ops-1", "ops-2"}, cfg.OperatorUserIDs)
	// Unset keys stay zero here; the engine fills defaults per
	// operation.
	assert.Equal(t, 0, cfg.CreditsPerConversation)
}

func TestSourceReload(t *testing.T) {
	v := viper.New()
	v.Set(KeyInitialCredits, 100)

	src := New(v)
	assert.Equal(t, 100, src.Current().InitialCredits)

	v.Set(KeyInitialCredits, 200)
	// Programmatic updates are not visible until Reload.
	assert.Equal(t, 100, src.Current().InitialCredits)
	src.Reload()
	assert.Equal(t, 200, src.Current().InitialCredits)
}

func TestSourceNilViper(t *testing.T) {
	src := New(nil)
	assert.Equal(t, admit.Config{}, src.Current())
}

func TestSourceFeedsEngine(t *testing.T) {
	v := viper.New()
	v.Set(KeyUserMaxRequests, 2)
	src := New(v)

	engine, err := admit.NewEngine(memory.New(), src)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		res, err := engine.ExecuteAction(ctx, "user1", "sess-1", admit.ActionConversation)
		assert.NoError(t, err)
		assert.True(t, res.Success, "action %d", i)
	}
	res, err := engine.ExecuteAction(ctx, "user1", "sess-1", admit.ActionConversation)
	assert.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, admit.StatusRateLimitExceeded, res.Code)
}
