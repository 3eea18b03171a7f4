// Package namematch compares personal names as written by traders, the payment provider and
// the trading platform. Two predicates are offered: SharesToken gates automatic payouts and
// Similar backs the admin-side review. They can disagree and callers pick one deliberately.
package namematch

import (
	"regexp"
	"sort"
	"strings"
)

// SimilarityThreshold is the minimum Ratio for Similar.
const SimilarityThreshold = 0.75

var honorificPattern = regexp.MustCompile(`(?i)^\s*(mr|mrs|ms|miss|dr)\.?\s+`)

// Normalize strips a leading honorific, lowercases, trims trailing periods and returns the
// distinct tokens in first-seen order.
func Normalize(name string) []string {
	name = honorificPattern.ReplaceAllString(name, "")

	seen := make(map[string]struct{})
	var tokens []string
	for _, field := range strings.Fields(name) {
		token := strings.TrimRight(strings.ToLower(field), ".")
		if token == "" {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		tokens = append(tokens, token)
	}
	return tokens
}

// canonical joins the sorted token set with single spaces.
func canonical(name string) string {
	tokens := Normalize(name)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// Ratio returns the Ratcliff/Obershelp similarity (2*M/T) of the canonical forms of a and b,
// in [0, 1]. Two empty names are identical.
func Ratio(a, b string) float64 {
	ra := []rune(canonical(a))
	rb := []rune(canonical(b))
	total := len(ra) + len(rb)
	if total == 0 {
		return 1.0
	}
	return 2.0 * float64(matchingCharacters(ra, rb)) / float64(total)
}

// Similar reports whether Ratio(a, b) reaches SimilarityThreshold.
func Similar(a, b string) bool {
	return Ratio(a, b) >= SimilarityThreshold
}

// SharesToken reports whether the names have at least one normalised token in common.
func SharesToken(a, b string) bool {
	left := make(map[string]struct{})
	for _, token := range Normalize(a) {
		left[token] = struct{}{}
	}
	for _, token := range Normalize(b) {
		if _, ok := left[token]; ok {
			return true
		}
	}
	return false
}

// matchingCharacters sums the sizes of the longest-common-substring blocks found by
// recursively splitting around each match.
func matchingCharacters(a, b []rune) int {
	type span struct{ alo, ahi, blo, bhi int }

	total := 0
	queue := []span{{0, len(a), 0, len(b)}}
	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		i, j, size := longestMatch(a, b, s.alo, s.ahi, s.blo, s.bhi)
		if size == 0 {
			continue
		}
		total += size
		if s.alo < i && s.blo < j {
			queue = append(queue, span{s.alo, i, s.blo, j})
		}
		if i+size < s.ahi && j+size < s.bhi {
			queue = append(queue, span{i + size, s.ahi, j + size, s.bhi})
		}
	}
	return total
}

// longestMatch finds the longest common block of a[alo:ahi] and b[blo:bhi], preferring the
// earliest start in a, then in b.
func longestMatch(a, b []rune, alo, ahi, blo, bhi int) (besti, bestj, bestsize int) {
	besti, bestj = alo, blo
	prev := make([]int, bhi-blo+1)
	for i := alo; i < ahi; i++ {
		cur := make([]int, bhi-blo+1)
		for j := blo; j < bhi; j++ {
			if a[i] != b[j] {
				continue
			}
			k := prev[j-blo] + 1
			cur[j-blo+1] = k
			if k > bestsize {
				besti, bestj, bestsize = i-k+1, j-k+1, k
			}
		}
		prev = cur
	}
	return besti, bestj, bestsize
}
