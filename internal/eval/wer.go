package eval

import (
	"strings"
	"unicode"
)

// Score holds word error counts for one or more transcripts.
type Score struct {
	Substitutions int `json:"substitutions" yaml:"substitutions"`
	Insertions    int `json:"insertions" yaml:"insertions"`
	Deletions     int `json:"deletions" yaml:"deletions"`
	RefWords      int `json:"ref_words" yaml:"ref_words"`
}

// Errors is the total edit count.
func (s Score) Errors() int { return s.Substitutions + s.Insertions + s.Deletions }

// WER is Errors / RefWords. An empty reference scores 0 when the hypothesis
// is also empty and 1 otherwise.
func (s Score) WER() float64 {
	if s.RefWords == 0 {
		if s.Insertions > 0 {
			return 1
		}
		return 0
	}
	return float64(s.Errors()) / float64(s.RefWords)
}

// Add sums two scores. Summing before dividing weights each sample by its
// reference length.
func (s Score) Add(o Score) Score {
	return Score{
		Substitutions: s.Substitutions + o.Substitutions,
		Insertions:    s.Insertions + o.Insertions,
		Deletions:     s.Deletions + o.Deletions,
		RefWords:      s.RefWords + o.RefWords,
	}
}

// Compare aligns hypothesis against reference word by word. Both sides are
// lowercased with punctuation and symbols ("$", "%") removed, so "$4.50" and
// "450" compare equal.
func Compare(reference, hypothesis string) Score {
	ref := Words(reference)
	hyp := Words(hypothesis)
	n, m := len(ref), len(hyp)

	// cost[i][j] is the edit distance between ref[:i] and hyp[:j].
	cost := make([][]int, n+1)
	for i := range cost {
		cost[i] = make([]int, m+1)
		cost[i][0] = i
	}
	for j := 1; j <= m; j++ {
		cost[0][j] = j
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			if ref[i-1] == hyp[j-1] {
				cost[i][j] = cost[i-1][j-1]
				continue
			}
			cost[i][j] = 1 + min(cost[i-1][j-1], cost[i-1][j], cost[i][j-1])
		}
	}

	s := Score{RefWords: n}
	for i, j := n, m; i > 0 || j > 0; {
		switch {
		case i > 0 && j > 0 && ref[i-1] == hyp[j-1]:
			i, j = i-1, j-1
		case i > 0 && j > 0 && cost[i][j] == cost[i-1][j-1]+1:
			s.Substitutions++
			i, j = i-1, j-1
		case i > 0 && cost[i][j] == cost[i-1][j]+1:
			s.Deletions++
			i--
		default:
			s.Insertions++
			j--
		}
	}
	return s
}

// Words normalizes text into comparable tokens.
func Words(s string) []string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
	return strings.Fields(s)
}
