// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package authority_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/multilogin/internal/authority"
)

func TestNewOfficial_Validation(t *testing.T) {
	_, err := authority.NewOfficial("", authority.UpstreamFunc(nil))
	require.Error(t, err)

	_, err = authority.NewOfficial("OFFICIAL", nil)
	require.ErrorIs(t, err, authority.ErrNoUpstream)
}

func TestOfficial_Authenticate(t *testing.T) {
	ctx := context.Background()
	want := &authority.Profile{Name: "Alice", ID: uuid.New()}

	t.Run("forwards success", func(t *testing.T) {
		var gotName, gotNonce string
		o, err := authority.NewOfficial("OFFICIAL", authority.UpstreamFunc(
			func(_ context.Context, name, serverID string) (*authority.Profile, error) {
				gotName, gotNonce = name, serverID
				return want, nil
			}))
		require.NoError(t, err)

		p, err := o.Authenticate(ctx, "Alice", "nonce")
		require.NoError(t, err)
		assert.Same(t, want, p)
		assert.Equal(t, "Alice", gotName)
		assert.Equal(t, "nonce", gotNonce)
		assert.Equal(t, "OFFICIAL", o.Label())
	})

	t.Run("upstream error is not verified", func(t *testing.T) {
		o, err := authority.NewOfficial("OFFICIAL", authority.UpstreamFunc(
			func(context.Context, string, string) (*authority.Profile, error) {
				return nil, errors.New("connection reset")
			}))
		require.NoError(t, err)

		p, err := o.Authenticate(ctx, "Alice", "nonce")
		assert.Nil(t, p)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset")
	})

	t.Run("upstream rejection is not verified", func(t *testing.T) {
		o, err := authority.NewOfficial("OFFICIAL", authority.UpstreamFunc(
			func(context.Context, string, string) (*authority.Profile, error) {
				return nil, nil
			}))
		require.NoError(t, err)

		p, err := o.Authenticate(ctx, "Alice", "nonce")
		require.NoError(t, err)
		assert.Nil(t, p)
	})
}
