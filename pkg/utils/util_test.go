package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoinFlagName(t *testing.T) {
	assert.Equal(t, "addr", JoinFlagName("", "Addr"))
	assert.Equal(t, "database-addr", JoinFlagName("database", "addr"))
}

func TestRandomString(t *testing.T) {
	a, err := RandomString(32)
	assert.NoError(t, err)
	assert.Len(t, a, 32)
	assert.Regexp(t, "^[a-zA-Z0-9]+$", a)

	b, _ := RandomString(32)
	assert.NotEqual(t, a, b)
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "plain", want: "'plain'"},
		{in: "it's", want: `'it'"'"'s'`},
		{in: "", want: "''"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ShellQuote(tt.in))
	}
}
