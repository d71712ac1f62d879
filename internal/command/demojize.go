package command

import (
	"sort"
	"strings"

	"github.com/kyokomi/emoji/v2"
)

// Demojizer rewrites emoji in text as readable word tokens surrounded by
// spaces, so "nice 👍" becomes "nice  thumbs up ".
type Demojizer struct {
	r *strings.Replacer
}

// NewDemojizer builds a Demojizer from the emoji name table. Longer emoji
// sequences are matched before their prefixes.
func NewDemojizer() *Demojizer {
	rev := emoji.RevCodeMap()

	keys := make([]string, 0, len(rev))
	for k, codes := range rev {
		if k == "" || len(codes) == 0 {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, k, " "+tokenName(rev[k])+" ")
	}
	return &Demojizer{r: strings.NewReplacer(pairs...)}
}

// Replace returns s with every known emoji replaced by its token. Leftover
// variation selectors and zero-width joiners are removed.
func (d *Demojizer) Replace(s string) string {
	out := d.r.Replace(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case '\ufe0f', '\ufe0e', '\u200d':
			return -1
		}
		return r
	}, out)
}

// tokenName picks the most descriptive alias and makes it speakable.
func tokenName(codes []string) string {
	best := ""
	for _, c := range codes {
		c = strings.Trim(c, ":")
		if len(c) > len(best) || (len(c) == len(best) && c < best) {
			best = c
		}
	}
	return strings.NewReplacer("_", " ", "-", " ").Replace(best)
}
