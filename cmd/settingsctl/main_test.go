package main

import (
	"path/filepath"
	"testing"
)

func TestParseKey(t *testing.T) {
	testCases := []struct {
		raw     string
		want    uint16
		wantErr bool
	}{
		{raw: "3", want: 3},
		{raw: "0x1f", want: 0x1f},
		{raw: "65535", want: 0xffff},
		{raw: "65536", wantErr: true},
		{raw: "-1", wantErr: true},
		{raw: "abc", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := parseKey(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Errorf("expected error for %q, got %d", tc.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseKey(%q) failed: %v", tc.raw, err)
			}
			if got != tc.want {
				t.Errorf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestCommandsRoundTrip(t *testing.T) {
	image := filepath.Join(t.TempDir(), "settings.img")
	args := func(extra ...string) []string {
		return append([]string{"-image", image}, extra...)
	}

	if err := writeCmd("set", args("-key", "7", "-value", "hello")); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := writeCmd("add", args("-key", "7", "-hex", "0a0b")); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := compactCmd(args()); err != nil {
		t.Fatalf("compact failed: %v", err)
	}
	if err := deleteCmd(args("-key", "7", "-index", "-1")); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := getCmd(args("-key", "7")); err == nil {
		t.Error("expected get after delete to fail")
	}
	if err := wipeCmd(args()); err != nil {
		t.Fatalf("wipe failed: %v", err)
	}
	if err := writeCmd("set", args("-key", "7", "-hex", "zz")); err == nil {
		t.Error("expected invalid hex to fail")
	}
}
