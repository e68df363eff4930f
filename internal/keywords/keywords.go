// Package keywords implements the coarse lexicon gate that decides whether
// an article is worth a language-model call. It is a cheap substring screen,
// not a classifier.
package keywords

import "strings"

// lexicon is the fixed Portuguese vocabulary indicating a violent death.
// Order matters only for deterministic output of Matches.
var lexicon = []string{
	// verbs and participles
	"assassinado",
	"assassinada",
	"assassinato",
	"matou",
	"mataram",
	"morto a tiros",
	"morta a tiros",
	"baleado",
	"baleada",
	"esfaqueado",
	"esfaqueada",
	"executado",
	"executada",
	"alvejado",
	"alvejada",
	"espancado",
	"espancada",
	"degolado",
	"linchado",
	// weapons and shots
	"arma de fogo",
	"revólver",
	"pistola",
	"espingarda",
	"faca",
	"facão",
	"disparos",
	"tiroteio",
	"bala perdida",
	"a tiros",
	"a facadas",
	// outcomes
	"homicídio",
	"homicídios",
	"feminicídio",
	"latrocínio",
	"chacina",
	"duplo homicídio",
	"corpo encontrado",
	"corpo foi encontrado",
	"cadáver",
	"óbito no local",
	"não resistiu aos ferimentos",
	// institutional context
	"instituto médico legal",
	"perícia",
	"delegacia de homicídios",
	"polícia militar",
	"polícia civil",
	"boletim de ocorrência",
}

// Matches lowercases text once and returns the lexicon terms present in it,
// deduplicated, in lexicon order. An empty result means the article should
// skip extraction entirely.
func Matches(text string) []string {
	if text == "" {
		return nil
	}
	lowered := strings.ToLower(text)

	var hits []string
	seen := make(map[string]struct{}, 8)
	for _, term := range lexicon {
		if _, ok := seen[term]; ok {
			continue
		}
		if strings.Contains(lowered, term) {
			hits = append(hits, term)
			seen[term] = struct{}{}
		}
	}
	return hits
}

// Lexicon returns a copy of the gate vocabulary, mostly for prompts and tests.
func Lexicon() []string {
	out := make([]string, len(lexicon))
	copy(out, lexicon)
	return out
}
