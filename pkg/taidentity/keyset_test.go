package taidentity

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestRotateRetainsPriorKeyWithinRetention(t *testing.T) {
	ks, err := NewInMemoryKeySet(time.Hour)
	require.NoError(t, err)

	token, err := ks.Sign(context.Background(), jwt.RegisteredClaims{Subject: "agent-1"})
	require.NoError(t, err)

	require.NoError(t, ks.Rotate())

	_, err = jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, ks.KeyFunc())
	require.NoError(t, err)
}

func TestRotateEvictsKeyPastRetention(t *testing.T) {
	ks, err := NewInMemoryKeySet(0)
	require.NoError(t, err)

	token, err := ks.Sign(context.Background(), jwt.RegisteredClaims{Subject: "agent-1"})
	require.NoError(t, err)

	require.NoError(t, ks.Rotate())

	_, err = jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, ks.KeyFunc())
	require.Error(t, err)
}
