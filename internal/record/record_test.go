package record

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessStatusRank(t *testing.T) {
	assert.Less(t, ProcessStatus("").Rank(), ProcessPublished.Rank())
	assert.Less(t, ProcessPublished.Rank(), ProcessAwarded.Rank())
	assert.Less(t, ProcessAwarded.Rank(), ProcessContracted.Rank())
	assert.Less(t, ProcessContracted.Rank(), ProcessReceived.Rank())
}

func TestItemStatusConfirmed(t *testing.T) {
	assert.True(t, ItemReceived.Confirmed())
	assert.True(t, ItemDelivered.Confirmed())
	assert.False(t, ItemAwarded.Confirmed())
	assert.False(t, ItemDeserted.Confirmed())
	assert.False(t, ItemPublished.Confirmed())
}

func TestFieldsDropAbsentValues(t *testing.T) {
	zero := 0.0
	f := Fields{}.
		Str("name", "ACME").
		Str("fax", "").
		Str("phone", "   ").
		Num("total", nil).
		Num("qty", &zero).
		Bool("auction", nil).
		Time("published_at", nil).
		Time("award_at", &time.Time{})

	assert.Equal(t, Fields{"name": "ACME", "qty": 0.0}, f)
}

func TestFieldsTimeFormat(t *testing.T) {
	ts := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	f := Fields{}.Time("published_at", &ts)
	assert.Equal(t, "2024-03-15T00:00:00Z", f["published_at"])
}

func TestEntityFields(t *testing.T) {
	e := Entity{Code: "E1", Name: "Ministerio", Department: ""}
	assert.Equal(t, Fields{"code": "E1", "name": "Ministerio"}, e.Fields())
}

func TestProcessFieldsExcludeEngineOwnedAttributes(t *testing.T) {
	p := Process{
		ID:         "P-1",
		Purpose:    "Compra de equipos",
		Status:     ProcessAwarded,
		StagesSeen: []string{"FORM100"},
		TotalValue: Ptr(1500.0),
	}
	f := p.Fields()
	assert.Equal(t, Fields{"purpose": "Compra de equipos", "total_value": 1500.0}, f)
}

func TestItemDecodesStoredTimes(t *testing.T) {
	body := `{"process_id":"P-1","slug":"laptop_hp","status":"Received","final_reception_at":"2024-03-15T00:00:00Z","received_qty":0}`
	var it Item
	require.NoError(t, json.Unmarshal([]byte(body), &it))

	assert.Equal(t, "P-1_laptop_hp", it.Key())
	assert.Equal(t, ItemReceived, it.Status)
	require.NotNil(t, it.FinalReceiptAt)
	assert.Equal(t, 2024, it.FinalReceiptAt.Year())
	require.NotNil(t, it.ReceivedQty)
	assert.Equal(t, 0.0, *it.ReceivedQty)
	assert.Nil(t, it.AwardedQty)
}

func TestHasStage(t *testing.T) {
	p := Process{StagesSeen: []string{"FORM100", "FORM170"}}
	assert.True(t, p.HasStage("FORM170"))
	assert.False(t, p.HasStage("FORM500"))
}
