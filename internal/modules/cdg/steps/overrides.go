package steps

import (
	"strings"

	"github.com/yungbote/cognigraph-backend/internal/domain/cdg"
)

// ContextFlags is a partial update of a context's user-controlled flags.
type ContextFlags struct {
	Locked *bool
	Paused *bool
}

// ApplyContextFlags returns a copy of contexts with the flags of the context
// keyed key updated. ok is false when no context has that key. A paused
// context is disabled immediately; unpausing leaves the status to the next
// derivation.
func ApplyContextFlags(contexts []cdg.ContextItem, key string, flags ContextFlags, opts Options) ([]cdg.ContextItem, bool) {
	key = strings.TrimSpace(key)
	out := make([]cdg.ContextItem, len(contexts))
	copy(out, contexts)
	found := false
	for i := range out {
		if out[i].Key != key {
			continue
		}
		found = true
		if flags.Locked != nil {
			out[i].Locked = *flags.Locked
		}
		if flags.Paused != nil {
			out[i].Paused = *flags.Paused
		}
		if out[i].Paused {
			out[i].Status = cdg.ContextDisabled
		}
		out[i].UpdatedAt = opts.stamp()
	}
	return out, found
}

// WithUserLink records a user override for the directed pair from->to,
// replacing any earlier user entry for the same pair.
func WithUserLink(base []cdg.MotifLink, from, to string, typ cdg.LinkType, confidence float64, opts Options) []cdg.MotifLink {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	out := WithoutUserLink(base, from, to)
	return append(out, cdg.MotifLink{
		ID:          linkID(from, to),
		FromMotifID: from,
		ToMotifID:   to,
		Type:        cdg.NormalizeLinkType(string(typ)),
		Confidence:  round6(clamp01(confidence)),
		Source:      cdg.SourceUser,
		UpdatedAt:   opts.stamp(),
	})
}

// WithoutUserLink drops user overrides for from->to; system links are kept.
func WithoutUserLink(base []cdg.MotifLink, from, to string) []cdg.MotifLink {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	out := make([]cdg.MotifLink, 0, len(base)+1)
	for _, l := range base {
		if cdg.NormalizeLinkSource(l.Source) == cdg.SourceUser &&
			strings.TrimSpace(l.FromMotifID) == from &&
			strings.TrimSpace(l.ToMotifID) == to {
			continue
		}
		out = append(out, l)
	}
	return out
}
