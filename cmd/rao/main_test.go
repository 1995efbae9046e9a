// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRAO/services/rao"
	"github.com/AleutianAI/AleutianRAO/services/rao/searchtree"
	"github.com/AleutianAI/AleutianRAO/services/rao/storage"
)

const triangleCase = "../../services/rao/caseio/testdata/triangle.yaml"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "rao dev")
	assert.Contains(t, out, rao.ServiceVersion)
}

func TestRunCmd_Stdout(t *testing.T) {
	out, err := execute(t, "run", "--case", triangleCase, "--log-level", "warn")
	require.NoError(t, err)

	var resp rao.RunResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "triangle-crac", resp.CaseID)
	assert.Equal(t, searchtree.Secure, resp.Report.Status)
	assert.Equal(t, []string{"close-fr-nl-2"}, resp.Report.NetworkActions)
}

func TestRunCmd_OutFileAndConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "search.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("search:\n  max_depth: 0\n"), 0600))
	outPath := filepath.Join(dir, "report.json")

	out, err := execute(t, "run", "--case", triangleCase, "--config", configPath, "--out", outPath, "--log-level", "error")
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var resp rao.RunResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	assert.Empty(t, resp.Report.NetworkActions)
	assert.Equal(t, searchtree.TerminationMaxDepth, resp.Report.TerminationReason)
}

func TestRunCmd_Store(t *testing.T) {
	storeDir := filepath.Join(t.TempDir(), "runs")
	out, err := execute(t, "run", "--case", triangleCase, "--store", storeDir, "--log-level", "error")
	require.NoError(t, err)

	var resp rao.RunResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))

	db, err := storage.Open(storage.DefaultConfig(storeDir))
	require.NoError(t, err)
	defer db.Close()
	rec, err := storage.NewResultStore(db).Get(context.Background(), resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, "triangle-crac", rec.CaseID)
}

func TestRunCmd_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr error
		wantMsg string
	}{
		{name: "missing case flag", args: []string{"run"}, wantMsg: `required flag(s) "case" not set`},
		{name: "missing case file", args: []string{"run", "--case", "nope.yaml"}, wantErr: rao.ErrInvalidCase},
		{name: "bad log level", args: []string{"run", "--case", triangleCase, "--log-level", "loud"}, wantMsg: "unknown log level"},
		{name: "unexpected argument", args: []string{"version", "extra"}, wantMsg: "unknown command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestDefaultStoreDir(t *testing.T) {
	t.Setenv("HOME", "/home/operator")
	assert.Equal(t, filepath.Join("/home/operator", ".aleutian", "rao", "runs"), defaultStoreDir())
}
