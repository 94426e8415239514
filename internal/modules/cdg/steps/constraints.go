package steps

import (
	"math"
	"regexp"
	"strings"

	"github.com/yungbote/cognigraph-backend/internal/domain/cdg"
)

const (
	constraintTextMax     = 160
	constraintEvidenceMax = 220

	importanceMin = 0.35
	importanceMax = 0.98
)

// ClassifyInput is one constraint-like statement with optional caller hints.
type ClassifyInput struct {
	Text     string
	Evidence string
	// Importance is used as the base importance when set to a finite number.
	Importance *float64
	Hard       bool
}

var (
	labeledPrefixRe = regexp.MustCompile(`(?i)^\s*(约束|限制|注意|要求|禁忌|提醒|constraint|restriction|requirement|note)\s*[:：]\s*`)
	clauseSplitRe   = regexp.MustCompile(`[，,；;。.!！?？\n]+`)

	hardCueRe = regexp.MustCompile(`(?i)(不能|不可以|不可|禁止|必须|无法|只能|绝对不|千万不|不吃|不喝|忌口|忌|\bmust\b|\bcannot\b|can't|\bnever\b|\bonly\b)`)
	softCueRe = regexp.MustCompile(`(?i)(尽量|最好|希望|偏好|不太|如果可以|尽可能|prefer|ideally|rather|if possible)`)
	cueRe     = regexp.MustCompile(`(?i)(不能|不可以|不可|禁止|必须|无法|只能|不要|不想|不吃|不喝|别|避免|避开|不方便|忌|尽量|最好|\bmust\b|\bcannot\b|can't|don't|\bavoid\b|\bno\b|\bonly\b|prefer)`)

	healthRe = regexp.MustCompile(`(?i)(过敏|哮喘|糖尿病|心脏病|高血压|怀孕|孕妇|孕期|癫痫|药物|吃药|服药|allerg|asthma|diabet|pregnan|epilep|medication|heart condition)`)

	languageRe       = regexp.MustCompile(`(?i)(语言|英语|英文|中文|日语|韩语|法语|翻译|听不懂|不会说|说不了|沟通|language|english|chinese|translat|interpreter)`)
	languageStrongRe = regexp.MustCompile(`(?i)(听不懂|不会说|说不了|只会|只能说|只懂|完全不会|only speak|can't speak|cannot speak|no english)`)
)

type constraintKind struct {
	name       string
	re         *regexp.Regexp
	importance float64
	severity   string
	hardFloor  float64
}

// genericKinds are checked in order; the first match wins.
var genericKinds = []constraintKind{
	{"legal", regexp.MustCompile(`(?i)(签证|护照|法律|违法|合法|入境|出境|海关|许可证|visa|passport|legal|\blaw\b|customs|permit)`), 0.86, cdg.SeverityHigh, 0.9},
	{"safety", regexp.MustCompile(`(?i)(安全|危险|夜间|晚上|深夜|独自|一个人|治安|偏僻|抢劫|小偷|safety|\bsafe\b|danger|night|alone|\bsolo\b|robbery)`), 0.84, cdg.SeverityHigh, 0.88},
	{"mobility", regexp.MustCompile(`(?i)(轮椅|行动不便|腿脚|走不了|走不动|爬山|台阶|楼梯|无障碍|拐杖|wheelchair|mobility|stairs|crutch|\bhike\b)`), 0.78, cdg.SeverityHigh, 0.85},
	{"logistics", regexp.MustCompile(`(?i)(行李|转机|航班|签到|接送|时差|换乘|托运|预订|luggage|baggage|flight|transfer|layover|check-in|booking)`), 0.66, cdg.SeverityMedium, 0.75},
	{"diet", regexp.MustCompile(`(?i)(辣|海鲜|吃|喝|素食|吃素|清真|饮食|酒|牛肉|猪肉|乳糖|麸质|vegetarian|vegan|halal|kosher|spicy|seafood|\bdiet\b|gluten|lactose|alcohol)`), 0.7, cdg.SeverityMedium, 0.8},
	{"religion", regexp.MustCompile(`(?i)(宗教|祈祷|礼拜|斋月|教堂|清真寺|寺庙|安息日|religio|\bpray|church|mosque|temple|sabbath|ramadan)`), 0.76, cdg.SeverityHigh, 0.82},
}

var otherKind = constraintKind{name: "other", importance: 0.58, severity: cdg.SeverityMedium, hardFloor: 0.7}

// ClassifyConstraintText types a constraint-like statement. ok is false when the
// text carries no constraint signal at all.
func ClassifyConstraintText(in ClassifyInput) (cdg.ConstraintClassified, bool) {
	raw := strings.TrimSpace(in.Text)
	text := normalizeConstraintText(raw)
	if text == "" {
		return cdg.ConstraintClassified{}, false
	}

	evidence := strings.TrimSpace(in.Evidence)
	if evidence == "" {
		evidence = raw
	}
	out := cdg.ConstraintClassified{
		Text:     text,
		Evidence: clipRunes(evidence, constraintEvidenceMax),
	}
	hint, hasHint := importanceHint(in.Importance)

	switch {
	case healthRe.MatchString(text):
		imp := 0.95
		if hasHint {
			imp = hint
		}
		out.Family = cdg.ConstraintFamilyHealth
		out.Hard = true
		out.Severity = cdg.SeverityCritical
		out.Importance = clamp(imp, 0.95, importanceMax)
		return out, true

	case languageRe.MatchString(text):
		out.Family = cdg.ConstraintFamilyLanguage
		out.Hard = in.Hard || languageStrongRe.MatchString(text) || isHard(text, false)
		out.Severity = cdg.SeverityMedium
		if out.Hard {
			out.Severity = cdg.SeverityHigh
		}
		out.Importance = constraintImportance(0.74, 0.82, hint, hasHint, out.Hard)
		return out, true
	}

	kind, matched := matchGenericKind(text)
	if !matched {
		if !cueRe.MatchString(text) {
			return cdg.ConstraintClassified{}, false
		}
		kind = otherKind
	}
	out.Family = cdg.ConstraintFamilyGeneric
	out.Kind = kind.name
	out.Hard = isHard(text, in.Hard)
	out.Severity = kind.severity
	out.Importance = constraintImportance(kind.importance, kind.hardFloor, hint, hasHint, out.Hard)
	return out, true
}

func matchGenericKind(text string) (constraintKind, bool) {
	for _, k := range genericKinds {
		if k.re.MatchString(text) {
			return k, true
		}
	}
	return constraintKind{}, false
}

// isHard: a soft cue wins over a hard cue unless the caller asserted hardness.
func isHard(text string, hint bool) bool {
	if hint {
		return true
	}
	if !hardCueRe.MatchString(text) {
		return false
	}
	return !softCueRe.MatchString(text)
}

func importanceHint(v *float64) (float64, bool) {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0, false
	}
	return *v, true
}

func constraintImportance(base, floor, hint float64, hasHint, hard bool) float64 {
	imp := base
	if hasHint {
		imp = hint
	}
	if hard && imp < floor {
		imp = floor
	}
	return clamp(imp, importanceMin, importanceMax)
}

// normalizeConstraintText strips a labeled prefix, clips, and keeps the first
// clause carrying a constraint cue (or the whole text when none does).
func normalizeConstraintText(s string) string {
	s = strings.TrimSpace(s)
	for {
		next := labeledPrefixRe.ReplaceAllString(s, "")
		if next == s {
			break
		}
		s = strings.TrimSpace(next)
	}
	s = strings.TrimSpace(clipRunes(s, constraintTextMax))
	if s == "" {
		return ""
	}
	for _, clause := range clauseSplitRe.Split(s, -1) {
		clause = strings.TrimSpace(clause)
		if clause != "" && (cueRe.MatchString(clause) || healthRe.MatchString(clause)) {
			return clause
		}
	}
	return strings.TrimSpace(strings.Trim(s, "，,；;。.!！?？ "))
}
