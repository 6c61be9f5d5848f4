package process

import (
	"reflect"
	"testing"
)

func TestSplitCommand(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"echo test", []string{"echo", "test"}},
		{"sh -c \"exit 1\"", []string{"sh", "-c", "exit 1"}},
		{"  echo   test  ", []string{"echo", "test"}},
		{"echo 'hello world'", []string{"echo", "hello world"}},
		{`echo "a\"b"`, []string{"echo", `a"b`}},
		{"bash", []string{"bash"}},
		{`foo\ bar`, []string{"foo bar"}},
	}
	for _, tc := range cases {
		got, err := SplitCommand(tc.in)
		if err != nil {
			t.Fatalf("SplitCommand(%q) error: %v", tc.in, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("SplitCommand(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestSplitCommandUnterminated(t *testing.T) {
	if _, err := SplitCommand("echo 'unterminated"); err == nil {
		t.Fatal("expected error for unterminated single quote")
	}
	if _, err := SplitCommand(`echo "unterminated`); err == nil {
		t.Fatal("expected error for unterminated double quote")
	}
}
