package steps

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/cognigraph-backend/internal/domain/cdg"
)

const (
	contextTitleMax    = 80
	contextSummaryMax  = 240
	openQuestionMax    = 160
	globalContextTitle = "整体规划"
)

func contextID(key string) string { return cdg.StableID("ctx", key) }

func (ct ContextTuning) weight(s cdg.MotifStatus) float64 {
	if w, ok := ct.StatusWeight[string(s)]; ok {
		return w
	}
	return ct.OtherWeight
}

var contextStatusRank = map[cdg.ContextStatus]int{
	cdg.ContextConflicted: 0,
	cdg.ContextUncertain:  1,
	cdg.ContextActive:     2,
	cdg.ContextDisabled:   3,
}

func rankOf(s cdg.ContextStatus) int {
	if r, ok := contextStatusRank[s]; ok {
		return r
	}
	return len(contextStatusRank)
}

// ReconcileContextsWithGraph builds the global context and one context per
// leading destination concept, then splices in the persisted user flags.
// A context that was paused is always returned disabled.
func ReconcileContextsWithGraph(
	g cdg.Graph,
	concepts []cdg.ConceptItem,
	motifs []cdg.ConceptMotif,
	links []cdg.MotifLink,
	base []cdg.ContextItem,
	opts Options,
) []cdg.ContextItem {
	t := opts.tuning()
	ct := t.Contexts
	now := opts.stamp()
	idx := indexConcepts(concepts)

	pool := make([]cdg.ConceptMotif, 0, len(motifs))
	seen := map[string]struct{}{}
	for _, m := range motifs {
		m.Status = cdg.NormalizeMotifStatus(string(m.Status))
		if m.ID == "" || m.Status == cdg.MotifCancelled {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		pool = append(pool, m)
	}
	graphNodes := map[string]struct{}{}
	for _, n := range g.Nodes {
		graphNodes[n.ID] = struct{}{}
	}
	b := contextBuilder{idx: idx, motifs: pool, links: userConflictLinks(links), graphNodes: graphNodes, t: ct}

	allConcepts := make([]string, 0, len(idx.byID))
	for id := range idx.byID {
		allConcepts = append(allConcepts, id)
	}
	allConcepts = sortedUnique(allConcepts)
	fresh := []cdg.ContextItem{b.build(cdg.GlobalContextKey, globalContextTitle, allConcepts, b.touching(allConcepts), []string{cdg.GlobalContextKey}, ct.GlobalOpenQuestions, ct.GlobalDefaultConfidence)}

	// A destination context covers the motifs that include the destination;
	// its concept set is the union of their concepts.
	for _, dest := range leadingDestinations(idx, ct.MaxDestinations) {
		own := b.touching([]string{dest.ID})
		set := []string{dest.ID}
		for _, m := range own {
			set = append(set, m.ConceptIDs...)
		}
		def := ct.DestinationDefaultBase + ct.DestinationDefaultSpan*idx.score(dest.ID, 0)
		fresh = append(fresh, b.build(
			cdg.DestinationContextKey(dest),
			"目的地："+conceptLabel(dest),
			sortedUnique(set),
			own,
			[]string{cdg.FamilyDestination},
			ct.OpenQuestions,
			def,
		))
	}

	out := mergeContexts(fresh, base, now, ct)
	sort.SliceStable(out, func(i, j int) bool {
		x, y := out[i], out[j]
		if rx, ry := rankOf(x.Status), rankOf(y.Status); rx != ry {
			return rx < ry
		}
		if x.Confidence != y.Confidence {
			return x.Confidence > y.Confidence
		}
		if x.Title != y.Title {
			return x.Title < y.Title
		}
		return x.Key < y.Key
	})
	if len(out) > ct.Cap {
		out = out[:ct.Cap]
	}
	return out
}

func leadingDestinations(idx conceptIndex, limit int) []cdg.ConceptItem {
	var out []cdg.ConceptItem
	for _, c := range idx.byID {
		if normFamily(c.Family) == cdg.FamilyDestination {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := idx.score(out[i].ID, 0), idx.score(out[j].ID, 0)
		if si != sj {
			return si > sj
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func userConflictLinks(links []cdg.MotifLink) []cdg.MotifLink {
	var out []cdg.MotifLink
	for _, l := range links {
		if cdg.NormalizeLinkSource(l.Source) == cdg.SourceUser && cdg.NormalizeLinkType(string(l.Type)) == cdg.LinkConflicts {
			out = append(out, l)
		}
	}
	return out
}

type contextBuilder struct {
	idx        conceptIndex
	motifs     []cdg.ConceptMotif
	links      []cdg.MotifLink
	graphNodes map[string]struct{}
	t          ContextTuning
}

// touching returns the motifs that include at least one of ids.
func (b contextBuilder) touching(ids []string) []cdg.ConceptMotif {
	inSet := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		inSet[id] = struct{}{}
	}
	var out []cdg.ConceptMotif
	for _, m := range b.motifs {
		for _, id := range m.ConceptIDs {
			if _, ok := inSet[id]; ok {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

func (b contextBuilder) build(key, title string, conceptIDs []string, pool []cdg.ConceptMotif, tags []string, maxQuestions int, emptyConfidence float64) cdg.ContextItem {
	poolIDs := make(map[string]cdg.ConceptMotif, len(pool))
	for _, m := range pool {
		poolIDs[m.ID] = m
	}

	var hasDeprecated, hasUncertain, hasActive bool
	allDisabled := len(pool) > 0
	weighted := 0.0
	var motifIDs, nodeIDs, questions []string
	for _, m := range pool {
		switch m.Status {
		case cdg.MotifDeprecated:
			hasDeprecated = true
			questions = append(questions, "冲突待解："+m.Title)
		case cdg.MotifUncertain:
			hasUncertain = true
			questions = append(questions, "请确认："+m.Title)
		case cdg.MotifActive:
			hasActive = true
		}
		if m.Status != cdg.MotifDisabled {
			allDisabled = false
		}
		weighted += m.Confidence * b.t.weight(m.Status)
		motifIDs = append(motifIDs, m.ID)
		nodeIDs = append(nodeIDs, m.SupportNodeIDs...)
	}
	for _, l := range b.links {
		from, okFrom := poolIDs[l.FromMotifID]
		to, okTo := poolIDs[l.ToMotifID]
		if okFrom && okTo {
			hasDeprecated = true
			questions = append(questions, "冲突待解："+from.Title+" ↔ "+to.Title)
		}
	}
	families := append([]string{}, tags...)
	for _, id := range conceptIDs {
		families = append(families, b.idx.family(id))
		for _, nid := range b.idx.byID[id].NodeIDs {
			if _, ok := b.graphNodes[nid]; ok {
				nodeIDs = append(nodeIDs, nid)
			}
		}
	}

	status := cdg.ContextActive
	switch {
	case hasDeprecated:
		status = cdg.ContextConflicted
	case hasUncertain:
		status = cdg.ContextUncertain
	case hasActive:
		status = cdg.ContextActive
	case allDisabled:
		status = cdg.ContextDisabled
	}

	conf := emptyConfidence
	if len(pool) > 0 {
		conf = weighted / float64(len(pool))
	}
	questions = dedupeQuestions(questions, maxQuestions)

	return cdg.ContextItem{
		ID:            contextID(key),
		Key:           key,
		Title:         clipRunes(title, contextTitleMax),
		Summary:       clipRunes(contextSummary(len(conceptIDs), len(pool), len(questions), status), contextSummaryMax),
		Status:        status,
		Confidence:    round6(clamp01(conf)),
		ConceptIDs:    conceptIDs,
		MotifIDs:      sortedUnique(motifIDs),
		NodeIDs:       sortedUnique(nodeIDs),
		Tags:          sortedUnique(families),
		OpenQuestions: questions,
	}
}

func contextSummary(concepts, motifs, questions int, status cdg.ContextStatus) string {
	s := fmt.Sprintf("%d 个概念，%d 个关系模式", concepts, motifs)
	switch status {
	case cdg.ContextConflicted:
		s += "；存在冲突"
	case cdg.ContextUncertain:
		s += "；有待确认"
	case cdg.ContextDisabled:
		s += "；已停用"
	}
	if questions > 0 {
		s += fmt.Sprintf("；%d 个开放问题", questions)
	}
	return s
}

// dedupeQuestions keeps input order, drops normalized repeats and caps.
func dedupeQuestions(qs []string, limit int) []string {
	out := make([]string, 0, len(qs))
	seen := map[string]struct{}{}
	for _, q := range qs {
		q = clipRunes(strings.TrimSpace(q), openQuestionMax)
		k := normKey(q)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, q)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// mergeContexts splices persisted user-owned fields into the fresh contexts.
// Locked persisted contexts that are no longer derived are retained.
func mergeContexts(fresh, base []cdg.ContextItem, now string, ct ContextTuning) []cdg.ContextItem {
	prior := map[string]cdg.ContextItem{}
	var priorOrder []string
	for _, b := range base {
		key := strings.TrimSpace(b.Key)
		if key == "" {
			continue
		}
		if _, dup := prior[key]; dup {
			continue
		}
		b.Key = key
		prior[key] = b
		priorOrder = append(priorOrder, key)
	}

	out := make([]cdg.ContextItem, 0, len(fresh)+len(prior))
	derived := map[string]struct{}{}
	for _, c := range fresh {
		derived[c.Key] = struct{}{}
		p, ok := prior[c.Key]
		if !ok {
			c.UpdatedAt = now
			out = append(out, c)
			continue
		}
		c.Locked = p.Locked
		c.Paused = p.Paused
		if c.Paused {
			c.Status = cdg.ContextDisabled
		}
		if s := strings.TrimSpace(p.Title); s != "" {
			c.Title = clipRunes(s, contextTitleMax)
		}
		if s := strings.TrimSpace(p.Summary); s != "" {
			c.Summary = clipRunes(s, contextSummaryMax)
		}
		if len(c.OpenQuestions) == 0 && len(p.OpenQuestions) > 0 {
			limit := ct.OpenQuestions
			if c.Key == cdg.GlobalContextKey {
				limit = ct.GlobalOpenQuestions
			}
			c.OpenQuestions = dedupeQuestions(p.OpenQuestions, limit)
		}
		c.UpdatedAt = now
		if unchangedContext(p, c) {
			c.UpdatedAt = p.UpdatedAt
		}
		out = append(out, c)
	}
	for _, key := range priorOrder {
		p := prior[key]
		if _, ok := derived[key]; ok || !p.Locked {
			continue
		}
		out = append(out, retainedContext(p, ct))
	}
	return out
}

// retainedContext normalizes a persisted context that is kept only because it is locked.
func retainedContext(p cdg.ContextItem, ct ContextTuning) cdg.ContextItem {
	p.Status = cdg.NormalizeContextStatus(string(p.Status))
	if p.Paused {
		p.Status = cdg.ContextDisabled
	}
	if p.ID == "" {
		p.ID = contextID(p.Key)
	}
	p.Confidence = round6(score01(p.Confidence, ct.DestinationDefaultBase))
	p.Title = clipRunes(strings.TrimSpace(p.Title), contextTitleMax)
	p.Summary = clipRunes(strings.TrimSpace(p.Summary), contextSummaryMax)
	limit := ct.OpenQuestions
	if p.Key == cdg.GlobalContextKey {
		limit = ct.GlobalOpenQuestions
	}
	p.OpenQuestions = dedupeQuestions(p.OpenQuestions, limit)
	p.ConceptIDs = sortedUnique(p.ConceptIDs)
	p.MotifIDs = sortedUnique(p.MotifIDs)
	p.NodeIDs = sortedUnique(p.NodeIDs)
	p.Tags = sortedUnique(p.Tags)
	return p
}

func unchangedContext(prev, next cdg.ContextItem) bool {
	return strings.TrimSpace(prev.UpdatedAt) != "" &&
		prev.Status == next.Status &&
		prev.Confidence == next.Confidence &&
		prev.Locked == next.Locked &&
		prev.Paused == next.Paused &&
		sameStrings(prev.MotifIDs, next.MotifIDs) &&
		sameStrings(prev.ConceptIDs, next.ConceptIDs) &&
		sameStrings(prev.OpenQuestions, next.OpenQuestions)
}
