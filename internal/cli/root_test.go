package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"bidding-live/internal/auth"
	model "bidding-live/internal/models"
	"bidding-live/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "bidding-live", cmd.Use)

	flag := cmd.PersistentFlags().Lookup("log-level")
	require.NotNil(t, flag)
	assert.Equal(t, "", flag.DefValue)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"serve", "migrate", "token"} {
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{name})
			require.NoError(t, err, "Command %s should exist", name)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-test-secret")
	t.Setenv("JWT_ISSUER", "bidding-live")

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--user", "u-42", "--name", "Ada", "--role", "seller", "--ttl", "2h"})
	require.NoError(t, cmd.Execute())

	signer, err := auth.NewSigner("cli-test-secret", "bidding-live")
	require.NoError(t, err)
	id, err := signer.ParseToken(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, model.Identity{UserID: "u-42", Name: "Ada", Role: model.RoleSeller}, id)
}

func TestTokenCommand_Rejects(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-test-secret")

	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown_role", args: []string{"token", "--user", "u-1", "--role", "auctioneer"}},
		{name: "missing_user", args: []string{"token"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmd := NewRootCommand()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs(tc.args)
			require.Error(t, cmd.Execute())
		})
	}
}

func TestMigrateCommand_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-test-secret")
	t.Setenv("DATABASE_URL", "")

	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"migrate"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestPrepopulateAuctions(t *testing.T) {
	repo := repository.NewMemoryRepo()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	prepopulateAuctions(repo, now)

	for _, id := range []string{"auction1", "auction2", "auction3"} {
		a, err := repo.GetAuction(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, model.StatusActive, a.Status)
		assert.True(t, a.CurrentPrice.Equal(a.StartingPrice))
		assert.True(t, a.EndTime.After(now))
	}
}
