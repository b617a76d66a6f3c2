package intent

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromModelReply_Variants(t *testing.T) {
	r, err := FromModelReply(map[string]interface{}{
		"intent": "create_complaint",
		"reply":  "Baik, di mana lokasinya?",
		"fields": map[string]interface{}{"category": "lampu_jalan", "description": "lampu mati"},
	})
	require.NoError(t, err)
	c, ok := r.Intent.(CreateComplaint)
	require.True(t, ok)
	assert.Equal(t, "lampu_jalan", c.Category)
	assert.Empty(t, c.Address)
	assert.Equal(t, "Baik, di mana lokasinya?", r.Text)

	r, err = FromModelReply(map[string]interface{}{
		"intent":        "check_status",
		"reply":         "Sebentar",
		"tracking_code": "lap-20251201-001",
	})
	require.NoError(t, err)
	assert.Equal(t, CheckStatus{TrackingCode: "LAP-20251201-001"}, r.Intent)

	r, err = FromModelReply(map[string]interface{}{"intent": "confirmation", "reply": "", "fields": map[string]interface{}{"decision": "Confirm"}})
	require.NoError(t, err)
	assert.Equal(t, Confirmation{Value: ConfirmYes}, r.Intent)
}

func TestFromModelReply_InvalidFallsBackToUnknown(t *testing.T) {
	r, err := FromModelReply(map[string]interface{}{"intent": "cancel_case", "reply": "Dibatalkan"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingField))
	assert.Equal(t, KindUnknown, r.Intent.Kind())
	assert.Equal(t, "Dibatalkan", r.Text)

	r, err = FromModelReply(map[string]interface{}{"intent": "update_case", "reply": "x", "tracking_code": "ABC-1"})
	require.Error(t, err)
	assert.Equal(t, KindUnknown, r.Intent.Kind())

	_, err = FromModelReply(map[string]interface{}{"intent": "order_pizza", "reply": "x"})
	assert.Error(t, err)
}

func TestFromModelReply_TechnicalPayload(t *testing.T) {
	r, err := FromModelReply(map[string]interface{}{"intent": "unknown", "reply": "Maaf", "technical_error": true})
	require.NoError(t, err)
	assert.True(t, r.Technical)
	assert.Equal(t, KindUnknown, r.Intent.Kind())
}

func TestFieldsOmitEmpty(t *testing.T) {
	f := CancelCase{TrackingCode: "LAP-20251201-001"}.Fields()
	assert.Equal(t, map[string]string{"tracking_code": "LAP-20251201-001"}, f)
	assert.Equal(t, []string{"address", "category"}, SortedFieldNames(CreateComplaint{Category: "x", Address: "y"}))
}

func TestTrackingCodes(t *testing.T) {
	code, ok := FindTrackingCode("tolong cek lap-20251201-001 ya")
	require.True(t, ok)
	assert.Equal(t, "LAP-20251201-001", code)

	_, ok = FindTrackingCode("nomor saya 0812-3456-789")
	assert.False(t, ok)

	ct, ok := CaseTypeOf("LAY-20250101-010")
	require.True(t, ok)
	assert.Equal(t, CaseServiceRequest, ct)

	day := time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "LAP-20251201-007", FormatTrackingCode(CaseComplaint, day, 7))
	assert.True(t, IsTrackingCode("lay-20251201-1234"))
	assert.False(t, IsTrackingCode("LAP-2025-001"))
}

func TestKnowledgeDependent(t *testing.T) {
	assert.True(t, KindKnowledgeQuery.KnowledgeDependent())
	assert.False(t, KindCheckStatus.KnowledgeDependent())
	for _, k := range Kinds {
		_ = k.KnowledgeDependent()
	}
	assert.Len(t, Kinds, 13)
}
