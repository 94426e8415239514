package steps

import (
	"sort"
	"strings"

	"github.com/yungbote/cognigraph-backend/internal/domain/cdg"
)

func linkID(from, to string) string { return cdg.StableID("mlink", from, to) }

// pairKey is direction-free: a user link on (a,b) also blocks a system link on (b,a).
func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

func (lt LinkTuning) penalty(s cdg.MotifStatus) float64 {
	if p, ok := lt.StatusPenalty[string(s)]; ok {
		return p
	}
	return lt.OtherPenalty
}

// ReconcileMotifLinks derives links over the strongest motifs and merges them
// with persisted links. User links always win over system links on the same
// pair and are never evicted by the cap.
func ReconcileMotifLinks(motifs []cdg.ConceptMotif, base []cdg.MotifLink, opts Options) []cdg.MotifLink {
	t := opts.tuning()
	lt := t.Links
	now := opts.stamp()

	byID := make(map[string]cdg.ConceptMotif, len(motifs))
	window := make([]cdg.ConceptMotif, 0, len(motifs))
	for _, m := range motifs {
		if m.ID == "" {
			continue
		}
		if _, dup := byID[m.ID]; dup {
			continue
		}
		m.Status = cdg.NormalizeMotifStatus(string(m.Status))
		byID[m.ID] = m
		window = append(window, m)
	}
	sortMotifs(window)
	if len(window) > lt.MotifWindow {
		window = window[:lt.MotifWindow]
	}

	users, userPairs := reconcileUserLinks(base, byID, lt.Cap, now)

	priorSystem := map[string]cdg.MotifLink{}
	for _, b := range base {
		if cdg.NormalizeLinkSource(b.Source) != cdg.SourceSystem {
			continue
		}
		from, to := strings.TrimSpace(b.FromMotifID), strings.TrimSpace(b.ToMotifID)
		if _, ok := priorSystem[from+"|"+to]; !ok {
			priorSystem[from+"|"+to] = b
		}
	}

	candidates := autoLinkCandidates(window, lt)
	system := make([]cdg.MotifLink, 0, len(candidates))
	outDegree := map[string]int{}
	for _, c := range candidates {
		if len(users)+len(system) >= lt.Cap {
			break
		}
		if _, blocked := userPairs[pairKey(c.FromMotifID, c.ToMotifID)]; blocked {
			continue
		}
		if outDegree[c.FromMotifID] >= lt.MaxOutDegree {
			continue
		}
		outDegree[c.FromMotifID]++
		c.UpdatedAt = now
		if p, ok := priorSystem[c.FromMotifID+"|"+c.ToMotifID]; ok {
			pc := clamp01(p.Confidence)
			if pc > c.Confidence {
				c.Confidence = round6(pc)
			}
			if pc == c.Confidence && cdg.NormalizeLinkType(string(p.Type)) == c.Type && strings.TrimSpace(p.UpdatedAt) != "" {
				c.UpdatedAt = p.UpdatedAt
			}
		}
		system = append(system, c)
	}

	sortLinks(system)
	sortLinks(users)
	return append(system, users...)
}

// reconcileUserLinks keeps persisted user links whose endpoints still exist.
// A later entry for the same (from,to) replaces an earlier one.
func reconcileUserLinks(base []cdg.MotifLink, byID map[string]cdg.ConceptMotif, limit int, now string) ([]cdg.MotifLink, map[string]struct{}) {
	latest := map[string]cdg.MotifLink{}
	var order []string
	for _, b := range base {
		if cdg.NormalizeLinkSource(b.Source) != cdg.SourceUser {
			continue
		}
		from, to := strings.TrimSpace(b.FromMotifID), strings.TrimSpace(b.ToMotifID)
		if from == "" || to == "" || from == to {
			continue
		}
		if _, ok := byID[from]; !ok {
			continue
		}
		if _, ok := byID[to]; !ok {
			continue
		}
		key := from + "|" + to
		if _, seen := latest[key]; !seen {
			order = append(order, key)
		}
		updated := strings.TrimSpace(b.UpdatedAt)
		if updated == "" {
			updated = now
		}
		latest[key] = cdg.MotifLink{
			ID:          linkID(from, to),
			FromMotifID: from,
			ToMotifID:   to,
			Type:        cdg.NormalizeLinkType(string(b.Type)),
			Confidence:  round6(clamp01(b.Confidence)),
			Source:      cdg.SourceUser,
			UpdatedAt:   updated,
		}
	}

	users := make([]cdg.MotifLink, 0, len(order))
	for _, k := range order {
		users = append(users, latest[k])
	}
	sortLinks(users)
	if len(users) > limit {
		users = users[:limit]
	}
	pairs := make(map[string]struct{}, len(users))
	for _, u := range users {
		pairs[pairKey(u.FromMotifID, u.ToMotifID)] = struct{}{}
	}
	return users, pairs
}

// autoLinkCandidates classifies every window pair sharing a concept, directed
// from the stronger motif, sorted by confidence desc then id.
func autoLinkCandidates(window []cdg.ConceptMotif, lt LinkTuning) []cdg.MotifLink {
	var out []cdg.MotifLink
	for i := 0; i < len(window); i++ {
		for j := i + 1; j < len(window); j++ {
			from, to := window[i], window[j]
			if !shareConcept(from, to) {
				continue
			}
			// window is sorted, so i already precedes j on (confidence desc, id asc).
			conf := (from.Confidence + to.Confidence) / 2 * lt.penalty(from.Status) * lt.penalty(to.Status)
			out = append(out, cdg.MotifLink{
				ID:          linkID(from.ID, to.ID),
				FromMotifID: from.ID,
				ToMotifID:   to.ID,
				Type:        classifyLink(from, to),
				Confidence:  round6(clamp01(conf)),
				Source:      cdg.SourceSystem,
			})
		}
	}
	sortLinks(out)
	return out
}

func shareConcept(a, b cdg.ConceptMotif) bool {
	for _, id := range a.ConceptIDs {
		if containsString(b.ConceptIDs, id) {
			return true
		}
	}
	return false
}

func classifyLink(a, b cdg.ConceptMotif) cdg.LinkType {
	if a.Status == cdg.MotifDeprecated || b.Status == cdg.MotifDeprecated {
		return cdg.LinkConflicts
	}
	aHasB := containsString(a.ConceptIDs, b.AnchorConceptID)
	bHasA := containsString(b.ConceptIDs, a.AnchorConceptID)
	if aHasB == bHasA {
		return cdg.LinkSupports
	}
	container, other := a, b
	if bHasA {
		container, other = b, a
	}
	if len(container.ConceptIDs) > len(other.ConceptIDs) {
		return cdg.LinkRefines
	}
	return cdg.LinkDependsOn
}

func sortLinks(ls []cdg.MotifLink) {
	sort.SliceStable(ls, func(i, j int) bool {
		if ls[i].Confidence != ls[j].Confidence {
			return ls[i].Confidence > ls[j].Confidence
		}
		return ls[i].ID < ls[j].ID
	})
}
