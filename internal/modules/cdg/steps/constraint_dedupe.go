package steps

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/yungbote/cognigraph-backend/internal/domain/cdg"
)

const (
	fingerprintTokens = 4
	nearDupJaccard    = 0.75
)

// Longest first so 不可以 is removed before 不.
var cueWords = []string{
	"不可以", "绝对不", "千万不", "如果可以",
	"不能", "不要", "不想", "不会", "不可", "尽量", "最好", "必须", "禁止", "无法", "只能", "避免", "避开", "希望", "一定",
	"不", "别", "我", "们", "的", "了", "请", "要",
}

var latinStopWords = map[string]struct{}{
	"no": {}, "not": {}, "cannot": {}, "can": {}, "don": {}, "must": {}, "please": {}, "avoid": {},
	"the": {}, "a": {}, "an": {}, "to": {}, "we": {}, "i": {}, "only": {}, "any": {}, "prefer": {},
}

var latinWordRe = regexp.MustCompile(`[a-z0-9]+`)

var safetyTopics = []struct {
	name string
	re   *regexp.Regexp
}{
	{"night", regexp.MustCompile(`(?i)(夜|晚上|深夜|night|late)`)},
	{"solo", regexp.MustCompile(`(?i)(独自|一个人|单独|alone|solo)`)},
	{"area", regexp.MustCompile(`(?i)(区域|地区|街区|偏僻|治安|area|district|neighbou?rhood)`)},
	{"theft", regexp.MustCompile(`(?i)(小偷|抢劫|扒手|theft|robbery|pickpocket)`)},
	{"traffic", regexp.MustCompile(`(?i)(交通|开车|驾驶|过马路|traffic|driving)`)},
}

// DedupeClassifiedConstraints returns an order-preserving subsequence with exact
// repeats, same-fingerprint items and near-duplicates removed. The first
// occurrence always survives.
func DedupeClassifiedConstraints(items []cdg.ConstraintClassified) []cdg.ConstraintClassified {
	if len(items) == 0 {
		return []cdg.ConstraintClassified{}
	}

	type kept struct {
		bucket string
		norm   string
		tokens map[string]struct{}
	}
	out := make([]cdg.ConstraintClassified, 0, len(items))
	seenText := map[string]struct{}{}
	seenPrint := map[string]struct{}{}
	var keptItems []kept

	for _, it := range items {
		norm := normKey(it.Text)
		if norm == "" {
			continue
		}
		if _, dup := seenText[norm]; dup {
			continue
		}
		seenText[norm] = struct{}{}

		bucket := constraintBucket(it)
		toks := constraintTokens(it.Text)
		fp := constraintFingerprint(it, bucket, toks, norm)
		if _, dup := seenPrint[fp]; dup {
			continue
		}

		set := tokenSet(toks)
		near := false
		for _, k := range keptItems {
			if k.bucket != bucket {
				continue
			}
			if strings.Contains(k.norm, norm) || strings.Contains(norm, k.norm) {
				near = true
				break
			}
			if jaccard(set, k.tokens) >= nearDupJaccard {
				near = true
				break
			}
		}
		if near {
			continue
		}

		seenPrint[fp] = struct{}{}
		keptItems = append(keptItems, kept{bucket: bucket, norm: norm, tokens: set})
		out = append(out, it)
	}
	return out
}

// constraintBucket is the top-level kind; near-duplicate checks never cross it.
func constraintBucket(it cdg.ConstraintClassified) string {
	family := strings.ToLower(strings.TrimSpace(it.Family))
	if family == cdg.ConstraintFamilyGeneric {
		kind := strings.ToLower(strings.TrimSpace(it.Kind))
		if kind == "" {
			kind = otherKind.name
		}
		return family + ":" + kind
	}
	if family == "" {
		return cdg.ConstraintFamilyGeneric + ":" + otherKind.name
	}
	return family
}

func constraintFingerprint(it cdg.ConstraintClassified, bucket string, toks []string, norm string) string {
	if bucket == cdg.ConstraintFamilyGeneric+":safety" {
		var topics []string
		for _, t := range safetyTopics {
			if t.re.MatchString(it.Text) {
				topics = append(topics, t.name)
			}
		}
		if len(topics) > 0 {
			sort.Strings(topics)
			return bucket + "|topic:" + strings.Join(topics, "+")
		}
	}
	if len(toks) == 0 {
		return bucket + "|" + norm
	}
	lead := toks
	if len(lead) > fingerprintTokens {
		lead = lead[:fingerprintTokens]
	}
	return bucket + "|" + strings.Join(lead, " ")
}

// constraintTokens yields latin words and CJK bigrams in text order, with cue
// and negation words removed first.
func constraintTokens(text string) []string {
	s := strings.ToLower(text)
	for _, w := range cueWords {
		s = strings.ReplaceAll(s, w, " ")
	}
	s = strings.ReplaceAll(s, "'", "")

	var (
		out  []string
		seen = map[string]struct{}{}
		run  []rune
	)
	add := func(tok string) {
		if tok == "" {
			return
		}
		if _, ok := seen[tok]; ok {
			return
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	flushCJK := func() {
		switch {
		case len(run) == 1:
			add(string(run))
		case len(run) > 1:
			for i := 0; i+1 < len(run); i++ {
				add(string(run[i : i+2]))
			}
		}
		run = run[:0]
	}
	var latin strings.Builder
	flushLatin := func() {
		for _, w := range latinWordRe.FindAllString(latin.String(), -1) {
			if _, stop := latinStopWords[w]; stop {
				continue
			}
			add(w)
		}
		latin.Reset()
	}
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			flushLatin()
			run = append(run, r)
			continue
		}
		flushCJK()
		latin.WriteRune(r)
	}
	flushCJK()
	flushLatin()
	return out
}

func tokenSet(toks []string) map[string]struct{} {
	out := make(map[string]struct{}, len(toks))
	for _, t := range toks {
		out[t] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
