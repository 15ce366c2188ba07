package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/shadowtransform/internal/classfile"
	"github.com/roach88/shadowtransform/internal/testutil"
)

const keepSdkRule = "com.example.Sdk.init(android.content.Context)$1"

// writeClasses writes each class under dir at its binary-name path.
func writeClasses(t *testing.T, dir string, classes ...*classfile.ClassFile) {
	t.Helper()
	for _, cf := range classes {
		data, err := cf.Bytes()
		require.NoError(t, err)
		path := filepath.Join(dir, filepath.FromSlash(cf.Name()+".class"))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, data, 0o644))
	}
}

// hostClasspath writes the host and runtime stubs to a directory.
func hostClasspath(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "host")
	for _, cf := range testutil.HostClasses() {
		writeClasses(t, dir, cf)
	}
	return dir
}

// pluginClasses returns a fragment, an SDK entry point and an activity
// calling it.
func pluginClasses() []*classfile.ClassFile {
	return []*classfile.ClassFile{
		testutil.Class("com.example.ListFragment", testutil.Fragment).DefaultConstructor().Build(),
		testutil.Class("com.example.Sdk", "").
			Method(classfile.AccPublic|classfile.AccStatic, "init", "("+testutil.DescContext+")V", func(b *testutil.Body) {
				b.Return("V")
			}).Build(),
		testutil.Class("com.example.MainActivity", testutil.Activity).
			DefaultConstructor().
			Method(classfile.AccPublic, "start", "()V", func(b *testutil.Body) {
				b.This().InvokeStatic("com.example.Sdk", "init", "("+testutil.DescContext+")V").Return("V")
			}).Build(),
	}
}

// pluginDir writes the plugin classes to a fresh directory.
func pluginDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "classes")
	writeClasses(t, dir, pluginClasses()...)
	return dir
}

// execute runs the root command with args and returns its standard output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out, diag := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(diag)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
