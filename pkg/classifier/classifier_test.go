package classifier

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotsetgreg/wargabot/pkg/intent"
)

func TestClassify_Table(t *testing.T) {
	cases := []struct {
		in        string
		kind      intent.Kind
		skipModel bool
		field     string
		value     string
	}{
		{"Halo", intent.KindGreeting, true, "", ""},
		{"selamat pagi pak!", intent.KindGreeting, true, "", ""},
		{"Assalamualaikum", intent.KindGreeting, true, "", ""},
		{"iya", intent.KindConfirmation, true, "value", "confirm"},
		{"Ya betul.", intent.KindConfirmation, true, "value", "confirm"},
		{"tidak jadi", intent.KindConfirmation, true, "value", "reject"},
		{"makasih banyak ya", intent.KindSmallTalk, true, "signal", "thanks"},
		{"sampai jumpa", intent.KindFarewell, true, "", ""},
		{"cek LAP-20251201-001", intent.KindCheckStatus, true, "tracking_code", "LAP-20251201-001"},
		{"tolong batalkan lap-20251201-001 karena sudah diperbaiki", intent.KindCancelCase, true, "tracking_code", "LAP-20251201-001"},
		{"ganti keterangan LAY-20251130-004 jadi dua orang", intent.KindUpdateCase, false, "tracking_code", "LAY-20251130-004"},
		{"saya mau batalkan laporan", intent.KindCancelCase, false, "", ""},
		{"riwayat laporan saya", intent.KindHistory, true, "", ""},
		{"lampu jalan mati", intent.KindCreateComplaint, false, "category", "lampu_jalan"},
		{"sampah menumpuk di depan pasar baru", intent.KindCreateComplaint, false, "address", "depan pasar baru"},
		{"mau buat KTP baru", intent.KindCreateServiceRequest, false, "service_slug", "ktp"},
		{"apa syarat buat akta kelahiran?", intent.KindKnowledgeQuery, false, "service_slug", "akta-kelahiran"},
		{"jam buka kantor kecamatan", intent.KindKnowledgeQuery, false, "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			r := Classify(tc.in)
			require.True(t, r.Matched(), "expected a match")
			assert.Equal(t, tc.kind, r.Intent)
			assert.Equal(t, tc.skipModel, r.SkipModel)
			assert.Greater(t, r.Confidence, 0.0)
			assert.LessOrEqual(t, r.Confidence, 1.0)
			if tc.field != "" {
				assert.Equal(t, tc.value, r.Fields[tc.field])
			}
		})
	}
}

func TestClassify_NoMatchIsEmpty(t *testing.T) {
	for _, in := range []string{"", "   ", "jalan merdeka no 5", "Budi Santoso", "hmm"} {
		r := Classify(in)
		assert.False(t, r.Matched(), "input %q", in)
		assert.Equal(t, Result{}, r)
	}
}

func TestClassify_LengthGates(t *testing.T) {
	long := "iya " + strings.Repeat("kata ", 20)
	assert.NotEqual(t, intent.KindConfirmation, Classify(long).Intent)

	huge := strings.Repeat("lampu jalan mati ", 100)
	assert.False(t, Classify(huge).Matched())

	hugeWithCode := huge + " LAP-20251201-001"
	assert.Equal(t, intent.KindCheckStatus, Classify(hugeWithCode).Intent)
}

// Messages that match both the cancel and update keyword sets resolve to
// cancel. This pins the observed ordering so a change to it is deliberate.
func TestClassify_CancelBeatsUpdateOnOverlap(t *testing.T) {
	cancelWords := []string{"batalkan", "batal", "cancel", "pembatalan", "membatalkan"}
	updateWords := []string{"ubah", "ganti", "update", "revisi", "koreksi", "perbarui"}
	templates := []string{
		"%c saja, jangan %u",
		"%u laporan atau %c ya",
		"tolong %c %u tadi",
		"%u lalu %c",
	}

	for _, c := range cancelWords {
		for _, u := range updateWords {
			for _, tmpl := range templates {
				msg := strings.NewReplacer("%c", c, "%u", u).Replace(tmpl)
				require.True(t, cancelPattern.MatchString(Normalize(msg)), msg)
				require.True(t, updatePattern.MatchString(Normalize(msg)), msg)

				r := Classify(msg)
				assert.Equal(t, intent.KindCancelCase, r.Intent, msg)

				withCode := msg + " LAP-20251201-001"
				assert.Equal(t, intent.KindCancelCase, Classify(withCode).Intent, withCode)
			}
		}
	}
}

func TestClassify_Pure(t *testing.T) {
	a := Classify("lampu jalan mati di jalan merdeka no 5")
	b := Classify("lampu jalan mati di jalan merdeka no 5")
	assert.Equal(t, a, b)
	assert.Equal(t, "jalan merdeka no 5", a.Fields["address"])
}

func TestIsShortConfirmation(t *testing.T) {
	v, ok := IsShortConfirmation("Oke")
	require.True(t, ok)
	assert.Equal(t, intent.ConfirmYes, v)

	v, ok = IsShortConfirmation("bukan")
	require.True(t, ok)
	assert.Equal(t, intent.ConfirmNo, v)

	_, ok = IsShortConfirmation("mungkin nanti saya pikirkan")
	assert.False(t, ok)
}
