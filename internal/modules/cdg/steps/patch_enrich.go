package steps

import (
	"strings"
	"time"

	"github.com/yungbote/cognigraph-backend/internal/domain/cdg"
)

const (
	MotifFoundationNote = "motif_foundation:v1"
	claimMaxChars       = 72
)

// EnrichMeta attributes the revision entries written by enrichment.
type EnrichMeta struct {
	Reason string
	By     string
	// Now stamps revision entries; zero means the wall clock.
	Now time.Time
}

// revisionFields are the keys whose presence on an update warrants an audit entry.
var revisionFields = []string{"statement", "status", "confidence", "importance", "type", "layer", "strength", "severity"}

// EnrichPatchWithMotifFoundation fills motif-oriented node fields and an audit
// trail on node ops. It never rejects a patch and never mutates p. Running it
// twice adds nothing the first pass did not.
func EnrichPatchWithMotifFoundation(p cdg.Patch, meta EnrichMeta) cdg.Patch {
	out := p.Clone()
	by := strings.TrimSpace(meta.By)
	if by == "" {
		by = cdg.SourceSystem
	}
	at := Options{Now: meta.Now}.stamp()

	for i := range out.Ops {
		op := &out.Ops[i]
		kind := strings.ToLower(strings.TrimSpace(op.Op))
		creating := kind == cdg.OpAddNode
		if !creating && kind != cdg.OpUpdateNode {
			continue
		}
		if op.Node == nil {
			if !creating {
				continue
			}
			op.Node = cdg.NodeFields{}
		}
		n := op.Node

		if !n.Has("motifType") && (creating || n.Has("type") || n.Has("layer") || n.Has("strength")) {
			n["motifType"] = inferMotifType(n.String("type"), n.String("layer"), n.String("strength"))
		}
		if !n.Has("claim") {
			if stmt := n.String("statement"); stmt != "" {
				n["claim"] = trimToChars(stmt, claimMaxChars)
			}
		}
		if !n.Has("priority") {
			if imp, ok := n.Float("importance"); ok {
				n["priority"] = clamp01(imp)
			}
		}
		if n.Has("revisionHistory") {
			continue
		}
		action := ""
		switch {
		case creating:
			action = "created"
		case touchesRevisionFields(n):
			action = "updated"
		}
		if action != "" {
			n["revisionHistory"] = []cdg.Revision{{At: at, Action: action, By: by, Reason: strings.TrimSpace(meta.Reason)}}
		}
	}

	if !containsString(out.Notes, MotifFoundationNote) {
		out.Notes = append(out.Notes, MotifFoundationNote)
	}
	return out
}

func touchesRevisionFields(n cdg.NodeFields) bool {
	for _, k := range revisionFields {
		if n.Has(k) {
			return true
		}
	}
	return false
}

func inferMotifType(nodeType, layer, strength string) string {
	nt := cdg.NodeType(strings.ToLower(nodeType))
	layer = strings.ToLower(layer)
	switch {
	case nt == cdg.NodeGoal || layer == "intent":
		return "expectation"
	case layer == "risk":
		return "hypothesis"
	case nt == cdg.NodeConstraint && strings.EqualFold(strength, cdg.StrengthHard):
		return "hypothesis"
	case nt == cdg.NodePreference || layer == "preference" || nt == cdg.NodeBelief:
		return "belief"
	default:
		return "cognitive_step"
	}
}
