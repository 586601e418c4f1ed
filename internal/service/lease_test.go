package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLeaseMutualExclusion(t *testing.T) {
	lease := NewLease(time.Hour)

	require.True(t, lease.TryAcquire())
	require.False(t, lease.TryAcquire())

	lease.Release()
	require.True(t, lease.TryAcquire())
}

func TestLeaseExpiryReclaim(t *testing.T) {
	now := time.Now()
	lease := NewLease(2 * time.Hour)
	lease.now = func() time.Time { return now }

	require.True(t, lease.TryAcquire())
	require.False(t, lease.TryAcquire())

	// a crashed holder never releases; the lease frees itself after the
	// configured duration
	now = now.Add(2*time.Hour + time.Minute)
	require.True(t, lease.TryAcquire())
}

func TestLeaseReleaseIdempotent(t *testing.T) {
	lease := NewLease(time.Hour)
	lease.Release()
	lease.Release()
	require.True(t, lease.TryAcquire())
}
