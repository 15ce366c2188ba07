package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shadowtransform/internal/classfile"
	"github.com/roach88/shadowtransform/internal/engine"
	"github.com/roach88/shadowtransform/internal/report"
)

func disassembleFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	cf, err := classfile.Parse(data)
	require.NoError(t, err)
	text, err := classfile.Disassemble(cf)
	require.NoError(t, err)
	return text
}

func TestTransformWritesOutput(t *testing.T) {
	in := pluginDir(t)
	out := filepath.Join(t.TempDir(), "shadow")
	host := hostClasspath(t)

	stdout, err := execute(t, "transform", in+"="+out, "--classpath", host, "--rule", keepSdkRule)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Fragments swapped: 1")
	assert.Contains(t, stdout, "Host-context clones: 1")
	assert.Contains(t, stdout, "✓ Output written")

	main := disassembleFile(t, filepath.Join(out, "com", "example", "MainActivity.class"))
	assert.Contains(t, main, "class com.example.MainActivity extends com.tencent.shadow.runtime.ShadowActivity")
	assert.Contains(t, main, "invokestatic com.example.Sdk.init_KeepHostContext")

	container := disassembleFile(t, filepath.Join(out, "com", "example", "ListFragment.class"))
	assert.Contains(t, container, "extends com.tencent.shadow.runtime.ContainerFragment")
	_, err = os.Stat(filepath.Join(out, "com", "example", "ListFragment_.class"))
	require.NoError(t, err)

	original := disassembleFile(t, filepath.Join(in, "com", "example", "MainActivity.class"))
	assert.Contains(t, original, "extends android.app.Activity", "input untouched when an output is given")
}

func TestTransformFailureWritesNothing(t *testing.T) {
	in := pluginDir(t)
	out := filepath.Join(t.TempDir(), "shadow")

	stdout, err := execute(t, "transform", in+"="+out, "--classpath", hostClasspath(t),
		"--rule", "com.example.Sdk.missing(android.content.Context)$1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "Error [METHOD_NOT_FOUND]")

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "no output on failure")
}

func TestTransformMalformedRuleNamesTheRule(t *testing.T) {
	in := pluginDir(t)
	out := filepath.Join(t.TempDir(), "shadow")
	const rule = "com.example.Sdk.init(int)(extra)$1"

	stdout, err := execute(t, "transform", in+"="+out, "--classpath", hostClasspath(t), "--rule", rule)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "Error [MALFORMED_RULE]")
	assert.Contains(t, stdout, rule)

	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "no output on failure")
}

func TestTransformDryRun(t *testing.T) {
	in := pluginDir(t)
	out := filepath.Join(t.TempDir(), "shadow")

	stdout, err := execute(t, "transform", in+"="+out, "--classpath", hostClasspath(t), "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Dry run: no output written")
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestTransformRequiresInputs(t *testing.T) {
	t.Chdir(t.TempDir())

	stdout, err := execute(t, "transform")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "Error [CONFIG_ERROR]")
}

func TestTransformMissingInput(t *testing.T) {
	_, err := execute(t, "transform", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTransformMalformedClass(t *testing.T) {
	in := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(in, "Bad.class"), []byte{0xca, 0xfe}, 0o644))

	stdout, err := execute(t, "--format", "json", "transform", in, "--dry-run")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(engine.ErrCodeInvalidClass), resp.Error.Code)
}

func TestTransformFromConfigFile(t *testing.T) {
	root := t.TempDir()
	in := pluginDir(t)
	host := hostClasspath(t)
	ledgerPath := filepath.Join(root, "runs.db")
	config := "inputs:\n" +
		"  - path: " + in + "\n" +
		"    output: shadow\n" +
		"classpath:\n  - " + host + "\n" +
		"keep_host_context:\n  - " + keepSdkRule + "\n" +
		"report: runs.db\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "shadow.yaml"), []byte(config), 0o644))
	t.Chdir(root)

	stdout, err := execute(t, "--format", "json", "transform")
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   TransformSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 4, resp.Data.Classes)
	assert.Equal(t, 1, resp.Data.Clones)
	require.Len(t, resp.Data.Steps, len(engine.Steps))
	assert.True(t, resp.Data.Committed)

	_, err = os.Stat(filepath.Join(root, "shadow", "com", "example", "ListFragment_.class"))
	require.NoError(t, err, "relative output resolves against the config file")

	ledger, err := report.Open(ledgerPath)
	require.NoError(t, err)
	defer ledger.Close()
	detail, err := ledger.Detail(context.Background(), resp.Data.RunID)
	require.NoError(t, err)
	assert.Equal(t, report.StatusOK, detail.Run.Status)
	assert.Equal(t, resp.Data.OutputDigest, detail.Run.OutputDigest)
	require.Len(t, detail.Clones, 1)
	assert.Equal(t, []string{"com.example.MainActivity"}, detail.Clones[0].Redirected)
}

func TestTransformRecordsFailure(t *testing.T) {
	ledgerPath := filepath.Join(t.TempDir(), "runs.db")

	_, err := execute(t, "transform", pluginDir(t), "--classpath", hostClasspath(t),
		"--rule", "com.example.Sdk.init(android.content.Context)$2", "--report", ledgerPath)
	require.Error(t, err)

	ledger, err := report.Open(ledgerPath)
	require.NoError(t, err)
	defer ledger.Close()
	run, err := ledger.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.StatusFailed, run.Status)
	assert.Equal(t, string(engine.ErrCodePositionOutOfRange), run.ErrorCode)
	assert.NotEmpty(t, run.InputDigest)
	assert.Empty(t, run.OutputDigest)
}
