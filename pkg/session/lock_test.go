package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/filter"
	"github.com/stretchr/testify/assert"
)

func TestManager_LockLifecycle(t *testing.T) {
	mgr := NewManager(memory.NewStore())
	ctx := context.Background()

	for i := 0; i < 10000; i++ {
		sid := fmt.Sprintf("session-%d", i)
		_ = mgr.Save(ctx, sid, domain.NewSnapshot(sid, filter.Stack{}))
		_ = mgr.Delete(ctx, sid)
	}

	assert.Empty(t, mgr.locks, "lock entries must be released")
}
