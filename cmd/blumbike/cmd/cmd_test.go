package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/require"
)

func resetConfigFlags() {
	configGenerate = false
	configValidate = false
	configShow = false
	configFormat = "yaml"
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	cmd := NewRootCmdWithVersion(&out, "1.2.3 (abc1234) built on 2024-01-01")
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	require.Contains(t, out.String(), "1.2.3")
}

func TestVersionFlag(t *testing.T) {
	var out bytes.Buffer
	cmd := NewRootCmdWithVersion(&out, "9.9.9")
	cmd.SetArgs([]string{"--version"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	require.Contains(t, out.String(), "9.9.9")
}

func TestConfigGenerate(t *testing.T) {
	resetConfigFlags()
	var out bytes.Buffer
	cmd := NewRootCmd(&out)
	cmd.SetArgs([]string{"config", "--generate"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	got := out.String()
	require.Contains(t, got, "redis:")
	require.Contains(t, got, "listen: 0.0.0.0:8050")
	require.Contains(t, got, "legacy_trim: 300")
}

func TestConfigShowJSON(t *testing.T) {
	resetConfigFlags()
	var out bytes.Buffer
	cmd := NewRootCmd(&out)
	cmd.SetArgs([]string{"config", "--show", "--format", "json"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	var got map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Contains(t, got, "Redis")
}

func TestConfigBadFormat(t *testing.T) {
	resetConfigFlags()
	var out bytes.Buffer
	cmd := NewRootCmd(&out)
	cmd.SetArgs([]string{"config", "--show", "--format", "toml"})
	require.EqualError(t, cmd.ExecuteContext(context.Background()), "unsupported format: toml (use yaml or json)")
}

func TestMakeGradientText(t *testing.T) {
	// Short strings come back untouched
	require.Equal(t, "hi", makeGradientText(lipgloss.NewStyle(), "hi"))
	require.NotEmpty(t, makeGradientText(lipgloss.NewStyle(), "blumbike"))
}

func TestMakeGradientRamp(t *testing.T) {
	require.Len(t, makeGradientRamp(8), 8)
}
