package flagx

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	vaultFlags := []string{"-d", "-driver", "-history"}

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"separate values", []string{"-d", "v.db", "-c", "conf.yaml", "-history", "3"}, []string{"-d", "v.db", "-history", "3"}},
		{"equals form", []string{"-driver=pgx", "-feed=:9090"}, []string{"-driver=pgx"}},
		{"order preserved", []string{"-history=1", "-d", "a.db", "-d", "b.db"}, []string{"-history=1", "-d", "a.db", "-d", "b.db"}},
		{"unknown flags and positionals dropped", []string{"-x", "1", "--y=2", "attach"}, []string{}},
		{"missing value at the end", []string{"-d"}, []string{"-d"}},
		{"dash token is not a value", []string{"-d", "-compress"}, []string{"-d"}},
		{"value may look like a flag after equals", []string{"-d=--odd.db"}, []string{"-d=--odd.db"}},
		{"empty", []string{}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, vaultFlags))
		})
	}
}

func TestFlagNames(t *testing.T) {
	fs := flag.NewFlagSet("t", flag.ContinueOnError)
	fs.String("d", "", "")
	fs.Bool("compress", false, "")

	assert.ElementsMatch(t, []string{"-d", "-compress"}, FlagNames(fs))
}

func TestConfigFileFlag(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "short", args: []string{"-c", "/path/short.json"}, want: "/path/short.json"},
		{name: "long", args: []string{"-config", "/path/long.yaml"}, want: "/path/long.yaml"},
		{name: "equals form", args: []string{"-config=/path/eq.toml"}, want: "/path/eq.toml"},
		{name: "unknown flags ignored", args: []string{"-x", "1", "-y", "2"}, want: ""},
		{name: "last wins", args: []string{"-c", "/path/1.json", "-config", "/path/2.json"}, want: "/path/2.json"},
		{name: "mixed with other flags", args: []string{"-d", "v.db", "-c", "cfg.json", "-compress"}, want: "cfg.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConfigFileFlag(tt.args))
		})
	}
}
