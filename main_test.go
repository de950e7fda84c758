package main

import (
	"testing"

	"github.com/fedinode/fedinode/models"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	require := require.New(t)

	for _, cmd := range models.Commands {
		got, err := parseCommand(string(cmd))
		require.NoError(err)
		require.Equal(cmd, got)
	}
	_, err := parseCommand("wall-old")
	require.Error(err)
}
