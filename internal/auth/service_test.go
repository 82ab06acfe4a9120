// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return newTestServiceAt(t, t.TempDir())
}

func newTestServiceAt(t *testing.T, dir string) *Service {
	t.Helper()

	svc, err := NewService(dir)
	require.NoError(t, err)
	return svc
}

func TestService_SetupUser(t *testing.T) {
	t.Parallel()

	t.Run("successful user creation", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		user, err := svc.SetupUser(ctx, "admin", "password123")
		require.NoError(t, err)
		assert.Equal(t, "admin", user.Username)
		assert.NotEmpty(t, user.PasswordHash)
	})

	t.Run("user already exists", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		_, err := svc.SetupUser(ctx, "admin", "password123")
		require.NoError(t, err)

		_, err = svc.SetupUser(ctx, "admin", "password123")
		assert.ErrorIs(t, err, ErrUserAlreadyExists)
	})

	t.Run("password too short", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		_, err := svc.SetupUser(ctx, "admin", "short")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "at least 8 characters")
	})
}

func TestService_Login(t *testing.T) {
	t.Parallel()

	t.Run("successful login", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		_, err := svc.SetupUser(ctx, "admin", "password123")
		require.NoError(t, err)

		user, err := svc.Login(ctx, "admin", "password123")
		require.NoError(t, err)
		assert.Equal(t, "admin", user.Username)
	})

	t.Run("setup not complete", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		_, err := svc.Login(ctx, "admin", "password123")
		assert.ErrorIs(t, err, ErrNotSetup)
	})

	t.Run("invalid username", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		_, err := svc.SetupUser(ctx, "admin", "password123")
		require.NoError(t, err)

		_, err = svc.Login(ctx, "wronguser", "password123")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("invalid password", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		_, err := svc.SetupUser(ctx, "admin", "password123")
		require.NoError(t, err)

		_, err = svc.Login(ctx, "admin", "wrongpassword")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestService_ChangePassword(t *testing.T) {
	t.Parallel()

	t.Run("successful password change", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		_, err := svc.SetupUser(ctx, "admin", "password123")
		require.NoError(t, err)

		err = svc.ChangePassword(ctx, "password123", "newpassword456")
		require.NoError(t, err)

		// Verify new password works
		_, err = svc.Login(ctx, "admin", "newpassword456")
		require.NoError(t, err)

		// Verify old password doesn't work
		_, err = svc.Login(ctx, "admin", "password123")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("wrong old password", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		_, err := svc.SetupUser(ctx, "admin", "password123")
		require.NoError(t, err)

		err = svc.ChangePassword(ctx, "wrongpassword", "newpassword456")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("new password too short", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		_, err := svc.SetupUser(ctx, "admin", "password123")
		require.NoError(t, err)

		err = svc.ChangePassword(ctx, "password123", "short")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "at least 8 characters")
	})
}

func TestService_IsSetupComplete(t *testing.T) {
	t.Parallel()

	t.Run("returns false when no user", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		complete, err := svc.IsSetupComplete(ctx)
		require.NoError(t, err)
		assert.False(t, complete)
	})

	t.Run("returns true when user exists", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		_, err := svc.SetupUser(ctx, "admin", "password123")
		require.NoError(t, err)

		complete, err := svc.IsSetupComplete(ctx)
		require.NoError(t, err)
		assert.True(t, complete)
	})
}

func TestService_PersistsAcrossReload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	svc := newTestServiceAt(t, dir)
	_, err := svc.SetupUser(ctx, "admin", "password123")
	require.NoError(t, err)

	reloaded := newTestServiceAt(t, dir)
	_, err = reloaded.Login(ctx, "admin", "password123")
	require.NoError(t, err)
}

func TestService_SetPassword(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newTestService(t)

	// recovery path creates the user when none exists
	require.NoError(t, svc.SetPassword(ctx, "admin", "firstpassword"))
	_, err := svc.Login(ctx, "admin", "firstpassword")
	require.NoError(t, err)

	// and overwrites without the old password, keeping the username
	require.NoError(t, svc.SetPassword(ctx, "ignored", "secondpassword"))
	_, err = svc.Login(ctx, "admin", "secondpassword")
	require.NoError(t, err)
}

func TestService_APIKeys(t *testing.T) {
	t.Parallel()

	t.Run("create and list API keys", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		rawKey, apiKey, err := svc.CreateAPIKey(ctx, "Test Key")
		require.NoError(t, err)
		assert.NotEmpty(t, rawKey)
		assert.Equal(t, "Test Key", apiKey.Name)

		keys, err := svc.ListAPIKeys(ctx)
		require.NoError(t, err)
		assert.Len(t, keys, 1)
	})

	t.Run("validate API key", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		rawKey, _, err := svc.CreateAPIKey(ctx, "Test Key")
		require.NoError(t, err)

		validatedKey, err := svc.ValidateAPIKey(ctx, rawKey)
		require.NoError(t, err)
		assert.Equal(t, "Test Key", validatedKey.Name)
		assert.NotZero(t, validatedKey.LastUsedAt)
	})

	t.Run("invalid API key", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		_, err := svc.ValidateAPIKey(ctx, "invalid-key")
		assert.ErrorIs(t, err, ErrInvalidAPIKey)
	})

	t.Run("delete API key", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		svc := newTestService(t)

		_, apiKey, err := svc.CreateAPIKey(ctx, "Test Key")
		require.NoError(t, err)

		err = svc.DeleteAPIKey(ctx, apiKey.ID)
		require.NoError(t, err)

		keys, err := svc.ListAPIKeys(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})
}
