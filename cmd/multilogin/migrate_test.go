// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/multilogin/pkg/errutil"
)

func TestParseForceVersion(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantVersion int
		wantErr     bool
	}{
		{name: "valid integer", input: "3", wantVersion: 3},
		{name: "zero", input: "0", wantVersion: 0},
		{name: "leading whitespace", input: "  42", wantVersion: 42},
		{name: "trailing chars ignored", input: "3abc", wantVersion: 3},
		{name: "negative parses", input: "-1", wantVersion: -1},
		{name: "non-numeric", input: "abc", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "whitespace only", input: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := parseForceVersion(tt.input)
			if tt.wantErr {
				errutil.AssertErrorCode(t, err, "INVALID_VERSION")
				assert.Equal(t, 0, v)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, v)
		})
	}
}

func TestMigrate_SQLiteLifecycle(t *testing.T) {
	cfgPath := writeSQLiteConfig(t)

	out, err := execute(t, "--config", cfgPath, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Backend: sqlite")
	assert.Contains(t, out, "Version: 0 (clean)")
	assert.Contains(t, out, "000001_identities")

	out, err = execute(t, "--config", cfgPath, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "Applied 1 migration(s)")

	out, err = execute(t, "--config", cfgPath, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "No pending migrations")

	out, err = execute(t, "--config", cfgPath, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Version: 1 (clean)")
	assert.Contains(t, out, "Pending: none")

	out, err = execute(t, "--config", cfgPath, "migrate", "down")
	require.NoError(t, err)
	assert.Contains(t, out, "Rollback complete")

	out, err = execute(t, "--config", cfgPath, "migrate", "force", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Forced version 1")
}

func TestMigrate_DownRejectsZeroSteps(t *testing.T) {
	cfgPath := writeSQLiteConfig(t)
	_, err := execute(t, "--config", cfgPath, "migrate", "down", "--steps", "0")
	errutil.AssertErrorCode(t, err, "INVALID_STEPS")
}

func TestMigrate_MemoryBackendHasNoSchema(t *testing.T) {
	cfgPath := writeSQLiteConfig(t)
	_, err := execute(t, "--config", cfgPath, "--database.type", "memory", "migrate", "up")
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}
