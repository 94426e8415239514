package steps

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/cognigraph-backend/internal/domain/cdg"
)

const (
	motifTitleMax       = 120
	motifDescriptionMax = 240
)

type conceptIndex struct {
	byID   map[string]cdg.ConceptItem
	byNode map[string][]string
}

// indexConcepts keeps the first concept per id and maps every node to the
// sorted set of concepts that claim it.
func indexConcepts(concepts []cdg.ConceptItem) conceptIndex {
	idx := conceptIndex{
		byID:   make(map[string]cdg.ConceptItem, len(concepts)),
		byNode: map[string][]string{},
	}
	for _, c := range concepts {
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" {
			continue
		}
		if _, dup := idx.byID[c.ID]; dup {
			continue
		}
		idx.byID[c.ID] = c
		for _, nid := range c.NodeIDs {
			nid = strings.TrimSpace(nid)
			if nid == "" {
				continue
			}
			idx.byNode[nid] = append(idx.byNode[nid], c.ID)
		}
	}
	for nid, ids := range idx.byNode {
		idx.byNode[nid] = sortedUnique(ids)
	}
	return idx
}

func (idx conceptIndex) score(id string, def float64) float64 {
	c, ok := idx.byID[id]
	if !ok {
		return def
	}
	return score01(c.Score, def)
}

func (idx conceptIndex) family(id string) string {
	return normFamily(idx.byID[id].Family)
}

type pairAccumulator struct {
	templateKey string
	relation    cdg.EdgeType
	from, to    string
	count       int
	confSum     float64
	edgeIDs     []string
	nodeIDs     []string
}

// ReconcileMotifsWithGraph recomputes pair and triad motifs from the graph and
// concepts. Only title and description survive from base; confidence and
// support are always fresh.
func ReconcileMotifsWithGraph(g cdg.Graph, concepts []cdg.ConceptItem, base []cdg.ConceptMotif, opts Options) []cdg.ConceptMotif {
	t := opts.tuning()
	now := opts.stamp()
	idx := indexConcepts(concepts)

	accs := map[string]*pairAccumulator{}
	conflicts := conflictIndex{}
	for _, e := range g.Edges {
		from := strings.TrimSpace(e.From)
		to := strings.TrimSpace(e.To)
		if from == "" || to == "" {
			continue
		}
		rel := cdg.NormalizeEdgeType(string(e.Type))
		conf := score01(e.Confidence, t.Motifs.DefaultEdgeConfidence)
		edgeID := strings.TrimSpace(e.ID)
		if edgeID == "" {
			edgeID = cdg.StableID("e", from, to, string(rel))
		}

		for _, fc := range idx.byNode[from] {
			for _, tc := range idx.byNode[to] {
				if fc == tc {
					continue
				}
				if rel == cdg.EdgeConflictsWith {
					conflicts.add(fc, tc)
				}
				tk := string(rel) + ":" + idx.family(fc) + "->" + idx.family(tc)
				key := tk + "|" + fc + "|" + tc
				acc := accs[key]
				if acc == nil {
					acc = &pairAccumulator{templateKey: tk, relation: rel, from: fc, to: tc}
					accs[key] = acc
				}
				acc.count++
				acc.confSum += conf
				acc.edgeIDs = append(acc.edgeIDs, edgeID)
				acc.nodeIDs = append(acc.nodeIDs, from, to)
			}
		}
	}

	keys := make([]string, 0, len(accs))
	for k := range accs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]cdg.ConceptMotif, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, buildPairMotif(accs[k], idx, t))
	}
	motifs := append(pairs, buildTriadMotifs(pairs, idx, t)...)

	prior := make(map[string]cdg.ConceptMotif, len(base))
	for _, b := range base {
		if id := strings.TrimSpace(b.ID); id != "" {
			if _, dup := prior[id]; !dup {
				prior[id] = b
			}
		}
	}
	for i := range motifs {
		m := &motifs[i]
		p, hasPrior := prior[m.ID]
		if hasPrior {
			if s := strings.TrimSpace(p.Title); s != "" {
				m.Title = clipRunes(s, motifTitleMax)
			}
			if s := strings.TrimSpace(p.Description); s != "" {
				m.Description = clipRunes(s, motifDescriptionMax)
			}
		}
		var pp *cdg.ConceptMotif
		if hasPrior {
			pp = &p
		}
		m.Status = deriveMotifStatus(*m, pp, conflicts, t)
		m.UpdatedAt = now
		if hasPrior && unchangedMotif(p, *m) {
			m.UpdatedAt = p.UpdatedAt
		}
	}

	sortMotifs(motifs)
	if len(motifs) > t.Motifs.Cap {
		motifs = motifs[:t.Motifs.Cap]
	}
	return motifs
}

func buildPairMotif(acc *pairAccumulator, idx conceptIndex, t Tuning) cdg.ConceptMotif {
	w := t.Motifs
	avg := acc.confSum / float64(acc.count)
	conf := w.PairEdgeWeight*avg +
		w.PairFromWeight*idx.score(acc.from, w.DefaultConceptScore) +
		w.PairToWeight*idx.score(acc.to, w.DefaultConceptScore)

	from, to := idx.byID[acc.from], idx.byID[acc.to]
	rel := relationLabel(acc.relation)
	return cdg.ConceptMotif{
		ID:              cdg.StableID("motif", cdg.MotifPair, acc.templateKey, acc.from, acc.to),
		TemplateKey:     acc.templateKey,
		MotifType:       cdg.MotifPair,
		Relation:        acc.relation,
		ConceptIDs:      []string{acc.from, acc.to},
		AnchorConceptID: acc.to,
		Title:           clipRunes(familyLabel(from.Family)+rel+familyLabel(to.Family), motifTitleMax),
		Description: clipRunes(
			fmt.Sprintf("「%s」%s「%s」（%d 条依据）", conceptLabel(from), rel, conceptLabel(to), acc.count),
			motifDescriptionMax,
		),
		Confidence:     round6(clamp01(conf)),
		SupportEdgeIDs: sortedUnique(acc.edgeIDs),
		SupportNodeIDs: sortedUnique(acc.nodeIDs),
	}
}

// buildTriadMotifs combines the two strongest pair motifs converging on the
// same target with the same relation. A bucket of one never yields a triad.
func buildTriadMotifs(pairs []cdg.ConceptMotif, idx conceptIndex, t Tuning) []cdg.ConceptMotif {
	buckets := map[string][]cdg.ConceptMotif{}
	for _, p := range pairs {
		k := p.AnchorConceptID + "|" + string(p.Relation)
		buckets[k] = append(buckets[k], p)
	}
	keys := make([]string, 0, len(buckets))
	for k, ps := range buckets {
		if len(ps) >= 2 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := make([]cdg.ConceptMotif, 0, len(keys))
	for _, k := range keys {
		ps := buckets[k]
		sortMotifs(ps)
		a, b := ps[0], ps[1]
		srcA, srcB := a.ConceptIDs[0], b.ConceptIDs[0]
		if srcA == srcB {
			continue
		}
		def := t.Motifs.DefaultConceptScore
		sa, sb := idx.score(srcA, def), idx.score(srcB, def)
		if sb > sa || (sb == sa && srcB < srcA) {
			srcA, srcB = srcB, srcA
		}
		target := a.AnchorConceptID
		families := []string{idx.family(srcA), idx.family(srcB)}
		sort.Strings(families)
		tk := "triad:" + string(a.Relation) + ":" + strings.Join(families, "+") + "->" + idx.family(target)

		conf := (a.Confidence + b.Confidence + idx.score(target, def)) / 3
		ca, cb, ct := idx.byID[srcA], idx.byID[srcB], idx.byID[target]
		rel := relationLabel(a.Relation)
		out = append(out, cdg.ConceptMotif{
			ID:              cdg.StableID("motif", cdg.MotifTriad, tk, srcA, srcB, target),
			TemplateKey:     tk,
			MotifType:       cdg.MotifTriad,
			Relation:        a.Relation,
			ConceptIDs:      []string{srcA, srcB, target},
			AnchorConceptID: target,
			Title: clipRunes(
				familyLabel(ca.Family)+"+"+familyLabel(cb.Family)+"共同"+rel+familyLabel(ct.Family),
				motifTitleMax,
			),
			Description: clipRunes(
				fmt.Sprintf("「%s」与「%s」共同%s「%s」", conceptLabel(ca), conceptLabel(cb), rel, conceptLabel(ct)),
				motifDescriptionMax,
			),
			Confidence:     round6(clamp01(conf)),
			SupportEdgeIDs: sortedUnique(append(append([]string{}, a.SupportEdgeIDs...), b.SupportEdgeIDs...)),
			SupportNodeIDs: sortedUnique(append(append([]string{}, a.SupportNodeIDs...), b.SupportNodeIDs...)),
		})
	}
	return out
}

func unchangedMotif(prev, next cdg.ConceptMotif) bool {
	return strings.TrimSpace(prev.UpdatedAt) != "" &&
		prev.Confidence == next.Confidence &&
		cdg.NormalizeMotifStatus(string(prev.Status)) == next.Status &&
		sameStrings(prev.SupportEdgeIDs, next.SupportEdgeIDs) &&
		sameStrings(prev.SupportNodeIDs, next.SupportNodeIDs)
}

// sortMotifs orders by confidence desc, id asc.
func sortMotifs(ms []cdg.ConceptMotif) {
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].Confidence != ms[j].Confidence {
			return ms[i].Confidence > ms[j].Confidence
		}
		return ms[i].ID < ms[j].ID
	})
}
