package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["migrate"])
	assert.True(t, names["sweep-payments"])
}

func TestSweepFlags(t *testing.T) {
	flag := sweepCmd.Flags().Lookup("older-than")
	require.NotNil(t, flag)
	assert.Equal(t, "0s", flag.DefValue)
	assert.NotNil(t, sweepCmd.Flags().Lookup("dry-run"))
}
