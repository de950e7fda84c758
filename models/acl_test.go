package models

import (
	"testing"

	"github.com/fedinode/fedinode/internal/snowflake"
	"github.com/stretchr/testify/require"
)

func TestParseACLField(t *testing.T) {
	tests := []struct {
		in      string
		want    []snowflake.ID
		wantErr bool
	}{
		{in: "", want: nil},
		{in: "<1>", want: []snowflake.ID{1}},
		{in: "<1><22> <333>", want: []snowflake.ID{1, 22, 333}},
		{in: "1", wantErr: true},
		{in: "<1", wantErr: true},
		{in: "<x>", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require := require.New(t)
			got, err := ParseACLField(tt.in)
			if tt.wantErr {
				require.Error(err)
				return
			}
			require.NoError(err)
			require.Equal(tt.want, got)
		})
	}
}

func TestItemIsPublic(t *testing.T) {
	t.Run("empty acl", func(t *testing.T) {
		require.True(t, (&Item{}).IsPublic())
	})
	t.Run("private flag", func(t *testing.T) {
		require.False(t, (&Item{Private: true}).IsPublic())
	})
	t.Run("allow list", func(t *testing.T) {
		require.False(t, (&Item{AllowCID: FormatACL(1, 2)}).IsPublic())
	})
	t.Run("malformed acl is public", func(t *testing.T) {
		require.True(t, (&Item{AllowCID: "<1><", DenyGID: "<2>"}).IsPublic())
	})
}

func TestFormatACL(t *testing.T) {
	require := require.New(t)
	s := FormatACL(7, 8)
	require.Equal("<7><8>", s)
	ids, err := ParseACLField(s)
	require.NoError(err)
	require.Equal([]snowflake.ID{7, 8}, ids)
}
