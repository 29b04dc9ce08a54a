package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runGocpp(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(normalizeFlags(args))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func normalizeWS(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func TestMain_SimpleFile(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "t.c", "int x = 1;\n")
	stdout, _, err := runGocpp(t, file)
	require.NoError(t, err)
	assert.Equal(t, "int x = 1;", normalizeWS(stdout))
}

func TestMain_Defines(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "t.c", "#if FLAG\nVALUE\n#endif\n")
	stdout, _, err := runGocpp(t, "-D", "FLAG", "-D", "VALUE=42", file)
	require.NoError(t, err)
	assert.Equal(t, "42", normalizeWS(stdout))
}

func TestMain_Undefine(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "t.c", "#ifdef FLAG\nyes\n#else\nno\n#endif\n")
	stdout, _, err := runGocpp(t, "-D", "FLAG", "-U", "FLAG", file)
	require.NoError(t, err)
	assert.Equal(t, "no", normalizeWS(stdout))
}

func TestMain_IncludePath(t *testing.T) {
	dir := t.TempDir()
	sys := filepath.Join(dir, "sys")
	require.NoError(t, os.Mkdir(sys, 0o755))
	writeFile(t, sys, "lib.h", "from_lib\n")
	file := writeFile(t, dir, "t.c", "#include <lib.h>\nmain\n")
	stdout, _, err := runGocpp(t, "-I", sys, file)
	require.NoError(t, err)
	assert.Equal(t, "from_lib main", normalizeWS(stdout))
}

func TestMain_MissingInclude(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "t.c", "#include <nope.h>\n")
	_, stderr, err := runGocpp(t, file)
	assert.Error(t, err)
	assert.Contains(t, stderr, "File not found")
}

func TestMain_OutputFile(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "t.c", "#define A ok\nA\n")
	out := filepath.Join(dir, "out.i")
	_, _, err := runGocpp(t, "-o", out, file)
	require.NoError(t, err)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "ok", normalizeWS(string(data)))
}

func TestMain_LineMarkers(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "t.c", "x\n")
	stdout, _, err := runGocpp(t, "--linemarkers", file)
	require.NoError(t, err)
	assert.Contains(t, stdout, "#line 1 ")
	assert.Contains(t, stdout, " 1\n")
}

func TestMain_KeepDirectives(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "t.c", "#define N 2\n#if N > 1\nA\n#endif\n")
	stdout, _, err := runGocpp(t, "--keep-directives", file)
	require.NoError(t, err)
	assert.Equal(t, "#define N 2 #if 2 > 1 A #endif", normalizeWS(stdout))
}

func TestMain_ExternalFeature(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "t.c", "#define LOCAL 1\n#if LOCAL\na\n#endif\n#ifdef FEAT\nb\n#endif\n")
	stdout, _, err := runGocpp(t, "--external-feature", "FEAT", file)
	require.NoError(t, err)
	assert.Equal(t, "a #ifdef FEAT b #endif", normalizeWS(stdout))
}

func TestMain_ConfigProfile(t *testing.T) {
	dir := t.TempDir()
	sys := filepath.Join(dir, "sys")
	require.NoError(t, os.Mkdir(sys, 0o755))
	writeFile(t, sys, "conf.h", "from_conf\n")
	config := writeFile(t, dir, "gocpp.yaml", `
defines:
  MODE: "3"
system_include_paths:
  - `+sys+`
features:
  - PRAGMA_ONCE
`)
	file := writeFile(t, dir, "t.c", "#include <conf.h>\nMODE\n")
	stdout, _, err := runGocpp(t, "--config", config, file)
	require.NoError(t, err)
	assert.Equal(t, "from_conf 3", normalizeWS(stdout))
}

func TestMain_NoArgs(t *testing.T) {
	_, _, err := runGocpp(t)
	assert.Error(t, err)
}

func TestNormalizeFlags(t *testing.T) {
	got := normalizeFlags([]string{"-iquote", "dir", "-I", "x", "--linemarkers", "-linemarkers"})
	assert.Equal(t, []string{"--iquote", "dir", "-I", "x", "--linemarkers", "--linemarkers"}, got)
}
