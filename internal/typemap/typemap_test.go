package typemap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNative_String(t *testing.T) {
	t.Parallel()
	tests := []struct {
		target string
		want   string
	}{
		{Java, "String"},
		{Python, "str"},
		{TypeScript, "string"},
		{JSP, "text"},
		{Postgres, "VARCHAR(255)"},
		{Oracle, "VARCHAR2(255)"},
		{MySQL, "VARCHAR(255)"},
		{SQLServer, "NVARCHAR(255)"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			t.Parallel()
			got, err := Native(tt.target, "string", 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNative_Length(t *testing.T) {
	t.Parallel()
	got, err := Native(Oracle, "string", 64)
	require.NoError(t, err)
	assert.Equal(t, "VARCHAR2(64)", got)

	got, err = Native(Postgres, "int", 64)
	require.NoError(t, err)
	assert.Equal(t, "INTEGER", got)
}

func TestNative_Aliases(t *testing.T) {
	t.Parallel()
	got, err := Native(Java, "Boolean", 0)
	require.NoError(t, err)
	assert.Equal(t, "Boolean", got)

	got, err = Native(MySQL, "timestamp", 0)
	require.NoError(t, err)
	assert.Equal(t, "DATETIME", got)
}

func TestNative_SQLFallback(t *testing.T) {
	t.Parallel()
	got, err := Native("sql/sqlite", "long", 0)
	require.NoError(t, err)
	assert.Equal(t, "BIGINT", got)
}

func TestNative_Errors(t *testing.T) {
	t.Parallel()
	_, err := Native(Java, "money", 0)
	require.ErrorIs(t, err, ErrUnknownType)

	_, err = Native("cobol", "string", 0)
	require.Error(t, err)
}

func TestEveryRowCoversEveryTarget(t *testing.T) {
	t.Parallel()
	for _, g := range Generics() {
		for _, target := range []string{Java, Python, TypeScript, JSP, Postgres, Oracle, MySQL, SQLServer} {
			_, err := Native(target, g, 0)
			assert.NoError(t, err, "%s/%s", g, target)
		}
	}
	assert.True(t, Known("uuid"))
	assert.False(t, Known("blob"))
}
