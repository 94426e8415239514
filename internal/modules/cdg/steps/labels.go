package steps

import (
	"strings"

	"github.com/yungbote/cognigraph-backend/internal/domain/cdg"
)

var relationLabels = map[cdg.EdgeType]string{
	cdg.EdgeConstraint:    "约束",
	cdg.EdgeEnable:        "促成",
	cdg.EdgeDetermine:     "决定",
	cdg.EdgeConflictsWith: "冲突",
}

var familyLabels = map[string]string{
	"goal":        "目标",
	"destination": "目的地",
	"budget":      "预算",
	"duration":    "时长",
	"time":        "时间",
	"people":      "同行人",
	"lodging":     "住宿",
	"transport":   "交通",
	"activity":    "活动",
	"constraint":  "限制",
	"health":      "健康",
	"language":    "语言",
	"diet":        "饮食",
	"safety":      "安全",
	"preference":  "偏好",
	"risk":        "风险",
	"generic":     "通用",
	"other":       "其他",
}

func relationLabel(r cdg.EdgeType) string {
	if l, ok := relationLabels[r]; ok {
		return l
	}
	return relationLabels[cdg.EdgeDetermine]
}

func familyLabel(f string) string {
	f = strings.ToLower(strings.TrimSpace(f))
	if l, ok := familyLabels[f]; ok {
		return l
	}
	if f == "" {
		return familyLabels["other"]
	}
	return f
}

func conceptLabel(c cdg.ConceptItem) string {
	if t := strings.TrimSpace(c.Title); t != "" {
		return clipRunes(t, 40)
	}
	return familyLabel(c.Family)
}

func normFamily(f string) string {
	f = strings.ToLower(strings.TrimSpace(f))
	if f == "" {
		return "other"
	}
	return f
}
