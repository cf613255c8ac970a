package agent

import "testing"

func TestIsGreeting(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"hi", true},
		{"Hello", true},
		{"HEY!", true},
		{"good morning", true},
		{"Good Morning!!", true},
		{"  hello  ", true},
		{"thanks!", true},
		{"what's up?", true},
		{"hello, can you list my files", false},
		{"hi there, read go.mod", false},
		{"what files are here?", false},
		{"", false},
		{"goodbye", false},
	}

	for _, tt := range tests {
		if got := isGreeting(tt.input); got != tt.want {
			t.Errorf("isGreeting(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
