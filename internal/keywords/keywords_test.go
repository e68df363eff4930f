package keywords

import (
	"reflect"
	"testing"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "no violence terms",
			text: "O trânsito estava pesado hoje.",
			want: nil,
		},
		{
			name: "single hit",
			text: "Homem foi baleado na zona norte.",
			want: []string{"baleado"},
		},
		{
			name: "uppercase input",
			text: "HOMICÍDIO registrado no centro",
			want: []string{"homicídio"},
		},
		{
			name: "multiple hits in lexicon order",
			text: "Vítima foi morta a tiros; a Polícia Civil investiga o homicídio.",
			want: []string{"morta a tiros", "a tiros", "homicídio", "polícia civil"},
		},
		{
			name: "repeated term reported once",
			text: "tiroteio intenso, novo tiroteio na mesma rua",
			want: []string{"tiroteio"},
		},
		{
			name: "empty text",
			text: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Matches(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Matches(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestLexiconIsCopied(t *testing.T) {
	a := Lexicon()
	if len(a) == 0 {
		t.Fatal("Lexicon should not be empty")
	}
	a[0] = "mutated"
	b := Lexicon()
	if b[0] == "mutated" {
		t.Error("Lexicon() must return a copy, not the backing slice")
	}
}
