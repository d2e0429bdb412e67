package auction

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordKeyCountIgnoresSnippet(t *testing.T) {
	t.Parallel()

	rec := Record{
		AssetType:      Ptr("압류재산"),
		AppraisalPrice: Ptr(288000000.0),
		BuildingAreaM2: Ptr(67.49),
		LandAreaM2:     Ptr(25.69),
		LandRight:      Ptr(false),
		RawTextSnippet: Ptr("감정가 288,000,000원"),
	}
	require.Equal(t, 5, rec.KeyCount())
	require.Zero(t, Record{}.KeyCount())
}

func TestResultFlattensRecordFields(t *testing.T) {
	t.Parallel()

	res := Result{
		Status:        StatusPending,
		Record:        Record{Round: Ptr(2)},
		Debug:         Debug{Source: SourceInvalid},
		Flags:         FlagSet{ShareOnly: true},
		ExtractedKeys: 1,
	}
	data, err := json.Marshal(res)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(data, &generic))
	require.InDelta(t, 2, generic["round"], 0)
	require.Nil(t, generic["address"])
	require.Nil(t, generic["case_key"])
	require.Nil(t, generic["error_code"])
	require.Equal(t, true, generic["flags"].(map[string]any)["share_only"])
}
