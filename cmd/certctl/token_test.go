package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestTokenEncodeDecode(t *testing.T) {
	var out bytes.Buffer
	cmd := tokenCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"encode", "ada@example.com", "42", "--verify-base-url", "https://certs.example.org"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("encode: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || lines[1] != "https://certs.example.org/verify/"+lines[0] {
		t.Fatalf("unexpected output %q", out.String())
	}

	out.Reset()
	cmd = tokenCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"decode", lines[0]})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(out.String(), "ada@example.com") || !strings.Contains(out.String(), "42") {
		t.Fatalf("unexpected output %q", out.String())
	}

	cmd = tokenCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"decode", "%%%"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected malformed token to fail")
	}
}
