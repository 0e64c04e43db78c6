// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianPharmacy/services/pharmacy/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version, strings.TrimSpace(out))
}

func TestConfigInitThenPrint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "pharmacy.yaml")

	out, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote")

	_, err = execute(t, "config", "init", path)
	assert.Error(t, err, "existing file is not overwritten")

	out, err = execute(t, "config", "print", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "port: 8000")
	assert.Contains(t, out, "backend: fs")
}

func TestConfigPrint_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 0\n"), 0600))

	_, err := execute(t, "config", "print", "--config", path)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestApplyServeFlags_OnlyChanged(t *testing.T) {
	cmd := newServeCmd(new(string))
	require.NoError(t, cmd.ParseFlags([]string{"--port", "9100", "--icon-backend", "memory", "--seed-demo"}))

	cfg := config.Default()
	var flags serveFlags
	flags.port, _ = cmd.Flags().GetInt("port")
	flags.iconBackend, _ = cmd.Flags().GetString("icon-backend")
	flags.seedDemo, _ = cmd.Flags().GetBool("seed-demo")
	applyServeFlags(cmd, &cfg, flags)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, config.BackendMemory, cfg.Icons.Backend)
	assert.True(t, cfg.SeedDemo)
	assert.Equal(t, "info", cfg.Logging.Level, "unset flags keep config values")
	assert.Equal(t, "/tmp/images", cfg.Icons.Dir)
}

func TestServe_RejectsInvalidFlags(t *testing.T) {
	_, err := execute(t, "serve", "--icon-backend", "ftp")
	assert.ErrorIs(t, err, config.ErrInvalid)
}
