package store

import (
	"context"
	"fmt"
	"sync/atomic"
)

var memSeq atomic.Int64

// OpenMemory opens a fresh, migrated in-memory store. Each call gets its own
// database; the name is only unique within the process.
func OpenMemory(ctx context.Context, name string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, memSeq.Add(1))
	return Open(ctx, dsn)
}
