// ABOUTME: Typed views over the council backend's stage payloads
// ABOUTME: Stage 1 answers, stage 2 peer rankings plus aggregate metadata, stage 3 chairman synthesis

// Package council decodes the stage payloads produced by an LLM council
// backend. The transcript stores these payloads as opaque JSON; only views
// that want to show them in detail decode them here.
package council

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ModelResponse is one model's answer. Stage 1 is a list of these; stage 3 is
// a single one from the chairman model.
type ModelResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
}

// Ranking is one model's evaluation of the anonymized stage 1 answers.
type Ranking struct {
	Model         string   `json:"model"`
	Ranking       string   `json:"ranking"`
	ParsedRanking []string `json:"parsed_ranking"`
}

// AggregateRank is a model's average position across all peer rankings.
type AggregateRank struct {
	Model         string  `json:"model"`
	AverageRank   float64 `json:"average_rank"`
	RankingsCount int     `json:"rankings_count"`
}

// Metadata accompanies stage 2.
type Metadata struct {
	LabelToModel      map[string]string `json:"label_to_model"`
	AggregateRankings []AggregateRank   `json:"aggregate_rankings"`
}

// DecodeStage1 decodes a stage 1 payload.
func DecodeStage1(raw json.RawMessage) ([]ModelResponse, error) {
	var out []ModelResponse
	if err := decode(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding stage1: %w", err)
	}
	return out, nil
}

// DecodeStage2 decodes a stage 2 payload.
func DecodeStage2(raw json.RawMessage) ([]Ranking, error) {
	var out []Ranking
	if err := decode(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding stage2: %w", err)
	}
	return out, nil
}

// DecodeStage3 decodes a stage 3 payload.
func DecodeStage3(raw json.RawMessage) (ModelResponse, error) {
	var out ModelResponse
	if err := decode(raw, &out); err != nil {
		return ModelResponse{}, fmt.Errorf("decoding stage3: %w", err)
	}
	return out, nil
}

// DecodeMetadata decodes stage 2 metadata. Aggregate rankings are returned
// best first.
func DecodeMetadata(raw json.RawMessage) (Metadata, error) {
	var out Metadata
	if err := decode(raw, &out); err != nil {
		return Metadata{}, fmt.Errorf("decoding metadata: %w", err)
	}
	sort.SliceStable(out.AggregateRankings, func(i, j int) bool {
		return out.AggregateRankings[i].AverageRank < out.AggregateRankings[j].AverageRank
	})
	return out, nil
}

// ModelForLabel resolves an anonymized label such as "Response A" to the
// model that wrote it, or returns the label unchanged.
func (m Metadata) ModelForLabel(label string) string {
	if model, ok := m.LabelToModel[label]; ok {
		return model
	}
	return label
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty payload")
	}
	return json.Unmarshal(raw, v)
}
