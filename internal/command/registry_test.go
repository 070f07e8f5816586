package command

import (
	"errors"
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"begin 3", []string{"begin", "3"}},
		{`say "hello world"`, []string{"say", "hello world"}},
		{"  baselines   7  0 ", []string{"baselines", "7", "0"}},
		{"", []string{}},
	}
	for _, tt := range tests {
		got, err := Tokenize(tt.line)
		if err != nil {
			t.Fatalf("Tokenize(%q): %v", tt.line, err)
		}
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Tokenize(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestRegistryExecute(t *testing.T) {
	r := NewRegistry[*[]string]()
	if err := r.Register("Begin", func(log *[]string, args []string) error {
		*log = append(*log, args...)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register("begin", nil); err == nil {
		t.Fatal("duplicate registration accepted")
	}

	var got []string
	if err := r.Execute(&got, "BEGIN 12"); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"BEGIN", "12"}) {
		t.Fatalf("args = %q", got)
	}

	if err := r.Execute(&got, "nosuch"); !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("err = %v", err)
	}
	if err := r.Execute(&got, "   "); !errors.Is(err, ErrEmptyCommand) {
		t.Fatalf("err = %v", err)
	}
	if !r.Has("BeGiN") || len(r.Names()) != 1 {
		t.Fatalf("Has/Names = %v", r.Names())
	}
}

func TestQuoteRoundTrip(t *testing.T) {
	for _, arg := range []string{"plain", "two words", `say "hi"`, `back\slash`, "玩家 一"} {
		line := "cmd " + Quote(arg)
		args, err := Tokenize(line)
		if err != nil {
			t.Fatalf("Tokenize(%q): %v", line, err)
		}
		if len(args) != 2 || args[1] != arg {
			t.Fatalf("Quote(%q) 还原为 %q", arg, args)
		}
	}
}
