package main

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCmdRegistersSubcommands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, sub := range root.Commands() {
		names = append(names, sub.Name())
	}
	for _, want := range []string{"chat", "list", "export", "delete", "rename", "pin"} {
		assert.Contains(t, names, want)
	}

	for _, flag := range []string{"config", "data-dir", "log-level", "api-type", "model", "temperature", "offline"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), "missing persistent flag %s", flag)
	}
}

func TestInitViperBindsRootFlags(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	root := newRootCmd()
	require.NoError(t, root.PersistentFlags().Set("log-level", "debug"))
	require.NoError(t, root.PersistentFlags().Set("data-dir", t.TempDir()))

	// PersistentPreRunE runs against the invoked subcommand, not the root
	sub, _, err := root.Find([]string{"list"})
	require.NoError(t, err)
	require.NoError(t, initViper(sub))

	assert.Equal(t, "debug", viper.GetString("log-level"))
}
