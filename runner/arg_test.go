package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandLine(t *testing.T) {
	tests := []struct {
		name string
		args []Arg
		want string
	}{
		{
			name: "safe tokens stay bare",
			args: []Arg{Escaped("echo"), Escaped("test1"), Escaped("test2")},
			want: "echo test1 test2",
		},
		{
			name: "shell metacharacters are quoted",
			args: []Arg{Escaped("bash"), Escaped("-c"), Escaped("echo OK > /tmp/1")},
			want: "bash -c 'echo OK > /tmp/1'",
		},
		{
			name: "single quotes survive",
			args: []Arg{Escaped("echo"), Escaped("it's")},
			want: `echo 'it'"'"'s'`,
		},
		{
			name: "empty argument is kept as a token",
			args: []Arg{Escaped("printf"), Escaped("")},
			want: "printf ''",
		},
		{
			name: "raw arguments pass verbatim",
			args: []Arg{Raw("DEBIAN_FRONTEND=noninteractive"), Raw("apt-get"), Raw("dist-upgrade"), Raw("--yes")},
			want: "DEBIAN_FRONTEND=noninteractive apt-get dist-upgrade --yes",
		},
		{
			name: "mixed kinds",
			args: []Arg{Escaped("cat"), Raw("/etc/*release"), Raw("|"), Escaped("grep"), Escaped("ID=")},
			want: "cat /etc/*release | grep ID=",
		},
		{
			name: "redacted value is transmitted",
			args: []Arg{Escaped("psql"), Escaped("--command"), Redacted("PASSWORD 's3cret'", "PASSWORD '<redacted>'")},
			want: `psql --command 'PASSWORD '"'"'s3cret'"'"''`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CommandLine(tt.args))
		})
	}
}

func TestFormatArgs(t *testing.T) {
	args := []Arg{
		Escaped("bash"),
		Raw("2>&1"),
		Redacted("hunter2", "<redacted>"),
	}
	assert.Equal(t, `["bash", raw("2>&1"), <redacted>]`, FormatArgs(args))
	assert.NotContains(t, FormatArgs(args), "hunter2")
}

func TestArgAccessors(t *testing.T) {
	assert.True(t, Raw("x").IsRaw())
	assert.False(t, Escaped("x").IsRaw())
	assert.False(t, Redacted("x", "y").IsRaw())
	assert.Equal(t, "x", Redacted("x", "y").Value())
}
