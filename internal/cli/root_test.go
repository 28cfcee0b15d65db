package cli

import "testing"

func TestIsValidFormat(t *testing.T) {
	cases := []struct {
		format string
		want   bool
	}{
		{"text", true},
		{"json", true},
		{"yaml", false},
		{"", false},
	}
	for _, c := range cases {
		if got := isValidFormat(c.format); got != c.want {
			t.Errorf("isValidFormat(%q) = %v, want %v", c.format, got, c.want)
		}
	}
}

func TestNewRootCommandRejectsBadFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "yaml", "inspect", "--bundle", "nowhere"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("Execute() with --format yaml: want error, got nil")
	}
}

func TestNewRootCommandRegistersEverySubcommand(t *testing.T) {
	cmd := NewRootCommand()
	want := []string{
		"run", "replay", "diff", "bundle", "verify-bundle",
		"inspect", "policy", "certify", "verify-cert", "sim",
	}
	for _, name := range want {
		if _, _, err := cmd.Find([]string{name}); err != nil {
			t.Errorf("command %q not registered: %v", name, err)
		}
	}
}
