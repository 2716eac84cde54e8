package inference

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	ReasonVerified         = "verified"
	ReasonFallbackSmallest = "fallback_smallest"
)

// ErrNoModels is returned when the runtime has nothing installed.
var ErrNoModels = errors.New("no models installed")

// Selection records which model was chosen and why.
type Selection struct {
	Model          string  `json:"model"`
	AllocatableGiB float64 `json:"allocatable_gib"`
	RequiredGiB    float64 `json:"required_gib"`
	Verified       bool    `json:"verified"`
	Reason         string  `json:"reason"`
}

type candidate struct {
	info        ModelInfo
	params      float64 // billions; 0 when unknown
	class       string
	requiredGiB float64
}

var paramPattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*([bm])\b`)

// parameterClass extracts the parameter count from declared metadata, falling
// back to the model tag ("llama3.2:3b"). It returns the tier key and the count
// in billions.
func parameterClass(m ModelInfo) (string, float64) {
	for _, src := range []string{m.Details.ParameterSize, tagOf(m.Name)} {
		match := paramPattern.FindStringSubmatch(src)
		if match == nil {
			continue
		}
		v, err := strconv.ParseFloat(match[1], 64)
		if err != nil || v <= 0 {
			continue
		}
		if strings.EqualFold(match[2], "m") {
			v /= 1000
		}
		return strconv.FormatFloat(v, 'f', -1, 64) + "b", v
	}
	return "", 0
}

func tagOf(name string) string {
	if i := strings.LastIndexByte(name, ':'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// requirementGiB looks the class up in tiers, otherwise scales the on-disk size.
func requirementGiB(m ModelInfo, class string, tiers map[string]float64, diskMultiplier float64) float64 {
	if need, ok := tiers[class]; ok && class != "" {
		return need
	}
	return float64(m.Size) / gib * diskMultiplier
}

func rankCandidates(models []ModelInfo, tiers map[string]float64, diskMultiplier, allocatable float64) []candidate {
	var out []candidate
	for _, m := range models {
		class, params := parameterClass(m)
		req := requirementGiB(m, class, tiers, diskMultiplier)
		if req > allocatable {
			continue
		}
		out = append(out, candidate{info: m, params: params, class: class, requiredGiB: req})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].params != out[j].params {
			return out[i].params > out[j].params
		}
		return out[i].info.Size > out[j].info.Size
	})
	return out
}

func smallest(models []ModelInfo) ModelInfo {
	best := models[0]
	for _, m := range models[1:] {
		if m.Size < best.Size {
			best = m
		}
	}
	return best
}

// SelectModel picks the largest installed model that fits in allocatable
// memory and answers a real generation request. When none does it falls back
// to the smallest installed model without verification.
func (m *Manager) SelectModel(ctx context.Context) (Selection, error) {
	models, err := m.client.Tags(ctx)
	if err != nil {
		return Selection{}, fmt.Errorf("list models: %w", err)
	}
	if len(models) == 0 {
		return Selection{}, ErrNoModels
	}

	allocatable := 0.0
	snap, err := m.memory.Snapshot(ctx)
	if err != nil {
		m.logger.Printf("memory probe failed, assuming nothing is allocatable: %v", err)
	} else {
		allocatable = AllocatableGiB(snap, m.cfg.SafetyMargin)
	}

	tiers := m.cfg.TierTable()
	for _, c := range rankCandidates(models, tiers, m.cfg.DiskMultiplier, allocatable) {
		if err := m.verify(ctx, c.info.Name); err != nil {
			m.logger.Printf("model %s failed verification: %v", c.info.Name, err)
			continue
		}
		return Selection{
			Model:          c.info.Name,
			AllocatableGiB: allocatable,
			RequiredGiB:    c.requiredGiB,
			Verified:       true,
			Reason:         ReasonVerified,
		}, nil
	}

	fallback := smallest(models)
	class, _ := parameterClass(fallback)
	return Selection{
		Model:          fallback.Name,
		AllocatableGiB: allocatable,
		RequiredGiB:    requirementGiB(fallback, class, tiers, m.cfg.DiskMultiplier),
		Reason:         ReasonFallbackSmallest,
	}, nil
}

func (m *Manager) verify(ctx context.Context, model string) error {
	vctx, cancel := withTimeout(ctx, m.cfg.VerifyTimeout)
	defer cancel()
	_, err := m.client.Generate(vctx, model, "hi", Options{MaxTokens: 1})
	return err
}
