package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnsureTimePinsOnce(t *testing.T) {
	fixed := time.Date(2024, 6, 15, 12, 0, 0, 123456789, time.UTC)
	ctx := WithTime(context.Background(), fixed)

	assert.Equal(t, fixed.Truncate(time.Microsecond), Now(ctx))
	assert.Equal(t, Now(ctx), Now(EnsureTime(ctx)))

	pinned := EnsureTime(context.Background())
	assert.Equal(t, Now(pinned), Now(pinned))
}

func TestRequestID(t *testing.T) {
	assert.Empty(t, RequestID(context.Background()))
	assert.Equal(t, "req-1", RequestID(WithRequestID(context.Background(), "req-1")))
}
