package council

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStage1(t *testing.T) {
	raw := json.RawMessage(`[{"model":"llama-3.3-70b-versatile","response":"Tea."},{"model":"gemma-7b-it","response":"Coffee."}]`)

	got, err := DecodeStage1(raw)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ModelResponse{Model: "gemma-7b-it", Response: "Coffee."}, got[1])
}

func TestDecodeStage2AndMetadata(t *testing.T) {
	stage2 := json.RawMessage(`[{"model":"a","ranking":"FINAL RANKING:\n1. Response B","parsed_ranking":["Response B","Response A"]}]`)
	meta := json.RawMessage(`{
		"label_to_model": {"Response A": "a", "Response B": "b"},
		"aggregate_rankings": [
			{"model": "a", "average_rank": 1.75, "rankings_count": 4},
			{"model": "b", "average_rank": 1.25, "rankings_count": 4}
		]
	}`)

	rankings, err := DecodeStage2(stage2)
	require.NoError(t, err)
	require.Len(t, rankings, 1)
	assert.Equal(t, []string{"Response B", "Response A"}, rankings[0].ParsedRanking)

	md, err := DecodeMetadata(meta)
	require.NoError(t, err)
	require.Len(t, md.AggregateRankings, 2)
	assert.Equal(t, "b", md.AggregateRankings[0].Model)
	assert.Equal(t, "b", md.ModelForLabel("Response B"))
	assert.Equal(t, "Response Z", md.ModelForLabel("Response Z"))
}

func TestDecodeStage3(t *testing.T) {
	got, err := DecodeStage3(json.RawMessage(`{"model":"chair","response":"**Tea** wins."}`))
	require.NoError(t, err)
	assert.Equal(t, "chair", got.Model)
	assert.Equal(t, "**Tea** wins.", got.Response)
}

func TestDecode_Errors(t *testing.T) {
	_, err := DecodeStage1(nil)
	require.Error(t, err)

	_, err = DecodeStage3(json.RawMessage(`[1,2]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage3")
}
