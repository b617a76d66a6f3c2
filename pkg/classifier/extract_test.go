package classifier

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractName(t *testing.T) {
	cases := map[string]string{
		"nama saya budi":                "Budi",
		"Perkenalkan, saya Siti Aminah": "Siti Aminah",
		"saya Andi":                     "Andi",
		"panggil saya Rina ya":          "Rina",
	}
	for in, want := range cases {
		got, ok := ExtractName(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"saya mau lapor", "saya tinggal di sini", "lampu jalan mati"} {
		_, ok := ExtractName(in)
		assert.False(t, ok, in)
	}
}

func TestNameFromReply(t *testing.T) {
	got, ok := NameFromReply("budi santoso")
	require.True(t, ok)
	assert.Equal(t, "Budi Santoso", got)

	for _, in := range []string{"iya", "halo", "lampu jalan mati", "ini nama saya yang sangat panjang sekali", "12345"} {
		_, ok := NameFromReply(in)
		assert.False(t, ok, in)
	}
}

func TestExtractAddress(t *testing.T) {
	addr, ok := ExtractAddress("lampunya di Jl. Sudirman No. 12 RT 03 RW 04")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(addr, "Jl. Sudirman No. 12"), addr)

	_, ok = ExtractAddress("lampu jalan mati")
	assert.False(t, ok)

	assert.True(t, LooksLikeAddress("jalan merdeka no 5"))
	assert.True(t, LooksLikeAddress("blok c 7"))
	assert.False(t, LooksLikeAddress("tidak tahu"))
}

func TestExtractPhone(t *testing.T) {
	got, ok := ExtractPhone("hubungi saya di +62 812-3456-7890")
	require.True(t, ok)
	assert.Equal(t, "081234567890", got)

	_, ok = ExtractPhone("nomor rumah 12")
	assert.False(t, ok)
}

func TestDetectSpam(t *testing.T) {
	cases := map[string]string{
		"":                                   "empty",
		strings.Repeat("a", 40):              "repeated_characters",
		strings.Repeat("promo ", 12):         "repeated_words",
		"daftar slot gacor sekarang":         "promotional",
		"http://a.b http://c.d http://e.f www.g.h": "link_flood",
	}
	for in, reason := range cases {
		spam, got := DetectSpam(in)
		assert.True(t, spam, in)
		assert.Equal(t, reason, got, in)
	}

	spam, _ := DetectSpam("lampu jalan mati di depan rumah saya, tolong dibantu")
	assert.False(t, spam)
	spam, _ = DetectSpam("halooo")
	assert.False(t, spam)
}
