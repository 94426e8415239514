package steps

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/cognigraph-backend/internal/domain/cdg"
	"github.com/yungbote/cognigraph-backend/internal/platform/logger"
)

const engineTuningEnv = "CDG_ENGINE_YAML"

//go:embed engine.yaml
var embeddedTuning []byte

type MotifTuning struct {
	Cap                   int     `yaml:"cap"`
	PairEdgeWeight        float64 `yaml:"pair_edge_weight"`
	PairFromWeight        float64 `yaml:"pair_from_weight"`
	PairToWeight          float64 `yaml:"pair_to_weight"`
	UncertainBelow        float64 `yaml:"uncertain_below"`
	DefaultEdgeConfidence float64 `yaml:"default_edge_confidence"`
	DefaultConceptScore   float64 `yaml:"default_concept_score"`
}

type LinkTuning struct {
	Cap           int                `yaml:"cap"`
	MotifWindow   int                `yaml:"motif_window"`
	MaxOutDegree  int                `yaml:"max_out_degree"`
	StatusPenalty map[string]float64 `yaml:"status_penalty"`
	OtherPenalty  float64            `yaml:"other_penalty"`
}

type ContextTuning struct {
	Cap                     int                `yaml:"cap"`
	MaxDestinations         int                `yaml:"max_destinations"`
	OpenQuestions           int                `yaml:"open_questions"`
	GlobalOpenQuestions     int                `yaml:"global_open_questions"`
	StatusWeight            map[string]float64 `yaml:"status_weight"`
	OtherWeight             float64            `yaml:"other_weight"`
	GlobalDefaultConfidence float64            `yaml:"global_default_confidence"`
	DestinationDefaultBase  float64            `yaml:"destination_default_base"`
	DestinationDefaultSpan  float64            `yaml:"destination_default_span"`
}

// Tuning holds every cap, weight and threshold used by the derivation steps.
type Tuning struct {
	Version  int           `yaml:"version"`
	Motifs   MotifTuning   `yaml:"motifs"`
	Links    LinkTuning    `yaml:"links"`
	Contexts ContextTuning `yaml:"contexts"`
}

func DefaultTuning() Tuning {
	return Tuning{
		Version: 1,
		Motifs: MotifTuning{
			Cap:                   240,
			PairEdgeWeight:        0.58,
			PairFromWeight:        0.20,
			PairToWeight:          0.22,
			UncertainBelow:        0.55,
			DefaultEdgeConfidence: cdg.DefaultEdgeConfidence,
			DefaultConceptScore:   cdg.DefaultConceptScore,
		},
		Links: LinkTuning{
			Cap:          220,
			MotifWindow:  140,
			MaxOutDegree: 3,
			StatusPenalty: map[string]float64{
				"active":     1.0,
				"uncertain":  0.84,
				"disabled":   0.66,
				"deprecated": 0.6,
			},
			OtherPenalty: 0.48,
		},
		Contexts: ContextTuning{
			Cap:                 80,
			MaxDestinations:     8,
			OpenQuestions:       4,
			GlobalOpenQuestions: 6,
			StatusWeight: map[string]float64{
				"active":    1.0,
				"uncertain": 0.82,
			},
			OtherWeight:             0.62,
			GlobalDefaultConfidence: 0.72,
			DestinationDefaultBase:  0.62,
			DestinationDefaultSpan:  0.10,
		},
	}
}

// ParseTuning overlays a YAML document on the defaults and validates the result.
func ParseTuning(data []byte) (Tuning, error) {
	t := DefaultTuning()
	// status maps merge key-by-key over the defaults.
	defaults := DefaultTuning()
	t.Links.StatusPenalty = nil
	t.Contexts.StatusWeight = nil
	if err := yaml.Unmarshal(data, &t); err != nil {
		return DefaultTuning(), fmt.Errorf("parse engine tuning: %w", err)
	}
	t.Links.StatusPenalty = mergeWeights(defaults.Links.StatusPenalty, t.Links.StatusPenalty)
	t.Contexts.StatusWeight = mergeWeights(defaults.Contexts.StatusWeight, t.Contexts.StatusWeight)
	if err := t.Validate(); err != nil {
		return DefaultTuning(), err
	}
	return t, nil
}

func mergeWeights(base, override map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

func (t Tuning) Validate() error {
	var errs []error
	positive := map[string]int{
		"motifs.cap":                t.Motifs.Cap,
		"links.cap":                 t.Links.Cap,
		"links.motif_window":        t.Links.MotifWindow,
		"links.max_out_degree":      t.Links.MaxOutDegree,
		"contexts.cap":              t.Contexts.Cap,
		"contexts.open_questions":   t.Contexts.OpenQuestions,
		"contexts.global_questions": t.Contexts.GlobalOpenQuestions,
	}
	for name, v := range positive {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0", name))
		}
	}
	if t.Contexts.MaxDestinations < 0 {
		errs = append(errs, errors.New("contexts.max_destinations must be >= 0"))
	}
	sum := t.Motifs.PairEdgeWeight + t.Motifs.PairFromWeight + t.Motifs.PairToWeight
	if sum < 0.999 || sum > 1.001 {
		errs = append(errs, fmt.Errorf("motif pair weights must sum to 1, got %.3f", sum))
	}
	unit := map[string]float64{
		"motifs.uncertain_below":             t.Motifs.UncertainBelow,
		"motifs.default_edge_confidence":     t.Motifs.DefaultEdgeConfidence,
		"motifs.default_concept_score":       t.Motifs.DefaultConceptScore,
		"links.other_penalty":                t.Links.OtherPenalty,
		"contexts.other_weight":              t.Contexts.OtherWeight,
		"contexts.global_default_confidence": t.Contexts.GlobalDefaultConfidence,
		"contexts.destination_default_base":  t.Contexts.DestinationDefaultBase,
		"contexts.destination_default_span":  t.Contexts.DestinationDefaultSpan,
	}
	for name, v := range unit {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0,1]", name))
		}
	}
	return errors.Join(errs...)
}

// LoadTuning reads CDG_ENGINE_YAML when set, else the embedded document.
// Any failure is logged and the compiled defaults are used.
func LoadTuning(log *logger.Logger) Tuning {
	data := embeddedTuning
	source := "embedded"
	if path := strings.TrimSpace(os.Getenv(engineTuningEnv)); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if log != nil {
				log.Warn("cdg engine: tuning file unreadable; using embedded", "path", path, "error", err)
			}
		} else {
			data = raw
			source = path
		}
	}
	t, err := ParseTuning(data)
	if err != nil {
		if log != nil {
			log.Warn("cdg engine: tuning invalid; using defaults", "source", source, "error", err)
		}
		return DefaultTuning()
	}
	if log != nil {
		log.Info("cdg engine: tuning loaded", "source", source, "motif_cap", t.Motifs.Cap, "link_cap", t.Links.Cap, "context_cap", t.Contexts.Cap)
	}
	return t
}
