// WargaBot - Citizen services assistant for chat channels
// License: MIT
//
// Copyright (c) 2026 WargaBot contributors

// Package classifier is the deterministic fast path: message text in,
// intent guess out. It performs no I/O.
package classifier

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dotsetgreg/wargabot/pkg/intent"
)

// Length gates, in runes. Short-reply patterns only make sense for short
// messages; very long messages only get the tracking-code scan.
const (
	ShortMessageRunes   = 40
	HistoryMessageRunes = 120
	MaxPatternRunes     = 1000
)

// Result is a fast classification. The zero Result means no match.
type Result struct {
	Intent     intent.Kind
	Confidence float64
	Fields     map[string]string
	SkipModel  bool
	Reason     string
}

func (r Result) Matched() bool {
	return r.Intent != ""
}

var (
	greetingPattern  = regexp.MustCompile(`^(halo+|hal+o|hai+|hi+|hello|hey|helo|pagi|siang|sore|malam|selamat (pagi|siang|sore|malam)( (pak|bu|kak|min|admin))?|assalamu'?alaikum( wr\.? ?wb\.?)?|permisi|p+)( (pak|bu|kak|min|admin))?$`)
	yesPattern       = regexp.MustCompile(`^(ya+|iya+|y|yes|yup|ok+|oke+|okay|betul|benar|bener|setuju|boleh|lanjut|lanjutkan|sip|siap|baik|ya betul|ya benar|iya benar|iya betul|benar sekali)( (pak|bu|kak|min))?$`)
	noPattern        = regexp.MustCompile(`^(tidak|tdk|gak|ga|nggak|ngga|enggak|engga|no|nope|bukan|jangan|salah|tidak jadi|gak jadi|ga jadi|nggak jadi|tidak usah|gak usah|ga usah)( (pak|bu|kak|min))?$`)
	thanksPattern    = regexp.MustCompile(`^(terima ?kasih|terimakasih|makasih|makasi|thanks|thank you|thx|tq|trims|tengkyu)( (banyak|ya|pak|bu|kak|min))*$`)
	farewellPattern  = regexp.MustCompile(`^(dadah|bye|bye bye|sampai jumpa|sampai jumpa lagi|selamat tinggal|sudah dulu|udah dulu|sudah itu saja|itu saja|cukup|cukup sekian|sekian)( (ya|pak|bu|kak|min|terima ?kasih|makasih))*$`)
	historyPattern   = regexp.MustCompile(`\b(riwayat|histori|history|daftar (laporan|pengajuan|permohonan)|(laporan|pengajuan|permohonan)(-(laporan|pengajuan|permohonan))? (saya|aku|ku)|semua laporan)\b`)
	cancelPattern    = regexp.MustCompile(`\b(batalkan|batalin|batal|membatalkan|dibatalkan|pembatalan|cancel|(tidak|gak|ga|nggak) jadi (lapor|mengajukan|ajukan))\b`)
	updatePattern    = regexp.MustCompile(`\b(ubah|ubahkan|mengubah|ganti|mengganti|perbarui|perbaharui|update|revisi|koreksi|ralat|tambah(kan)? (keterangan|info|informasi|foto))\b`)
	complaintVerbs   = regexp.MustCompile(`\b(mati|padam|rusak|berlubang|bolong|menumpuk|numpuk|tumpuk|tumbang|mampet|tersumbat|bocor|banjir|tergenang|macet|kotor|bau|lapor|melapor|laporkan|keluhan|mengeluh|aduan|pengaduan)\b`)
	serviceVerbs     = regexp.MustCompile(`\b(buat|bikin|membuat|urus|mengurus|ngurus|pengajuan|ajukan|mengajukan|mohon|permohonan|daftar|mendaftar|perpanjang|memperpanjang|cetak|ganti|penggantian)\b`)
	questionPattern  = regexp.MustCompile(`(\?|\b(apa|apakah|bagaimana|gimana|berapa|kapan|dimana|di mana|kemana|syarat|persyaratan|prosedur|cara|jam (buka|operasional|pelayanan|kerja)|biaya|tarif|alamat kantor|nomor telepon|kontak)\b)`)
	punctuationTrims = "!.,;:~ \t\r\n"
)

type categoryRule struct {
	slug    string
	pattern *regexp.Regexp
}

var complaintCategories = []categoryRule{
	{"lampu_jalan", regexp.MustCompile(`\b(lampu jalan|lampu pju|pju|penerangan jalan|lampu penerangan)\b`)},
	{"jalan_rusak", regexp.MustCompile(`\b(jalan (rusak|berlubang|bolong|retak)|aspal|lubang di jalan|jalan(nya)? (banyak )?lubang)\b`)},
	{"sampah", regexp.MustCompile(`\b(sampah|tps|pengangkutan sampah)\b`)},
	{"drainase", regexp.MustCompile(`\b(banjir|genangan|tergenang|got|selokan|drainase|saluran air)\b`)},
	{"pohon_tumbang", regexp.MustCompile(`\b(pohon (tumbang|roboh|patah)|dahan patah)\b`)},
	{"air_bersih", regexp.MustCompile(`\b(air (pdam )?(mati|tidak mengalir|gak ngalir|keruh)|pdam)\b`)},
	{"fasilitas_umum", regexp.MustCompile(`\b(taman|trotoar|halte|toilet umum|fasilitas umum)\b`)},
}

var serviceSlugs = []categoryRule{
	{"ktp", regexp.MustCompile(`\b(ktp|e-ktp|ektp|kartu tanda penduduk)\b`)},
	{"kartu-keluarga", regexp.MustCompile(`\b(kk|kartu keluarga)\b`)},
	{"akta-kelahiran", regexp.MustCompile(`\b(akta (kelahiran|lahir)|akte (kelahiran|lahir))\b`)},
	{"akta-kematian", regexp.MustCompile(`\b(akta kematian|akte kematian)\b`)},
	{"surat-pindah", regexp.MustCompile(`\b(surat pindah|pindah domisili|pindah datang)\b`)},
	{"surat-domisili", regexp.MustCompile(`\b(surat (keterangan )?domisili|domisili)\b`)},
	{"skck", regexp.MustCompile(`\b(skck|surat kelakuan baik)\b`)},
	{"izin-usaha", regexp.MustCompile(`\b(izin usaha|ijin usaha|nib|siup)\b`)},
}

// Classify runs the ordered pattern battery. The first match wins; cancel
// is checked before update.
func Classify(text string) Result {
	norm := Normalize(text)
	if norm == "" {
		return Result{}
	}
	runes := utf8.RuneCountInString(norm)

	if code, ok := intent.FindTrackingCode(text); ok {
		return classifyWithCode(norm, code)
	}
	if runes > MaxPatternRunes {
		return Result{}
	}

	if runes <= ShortMessageRunes {
		switch {
		case yesPattern.MatchString(norm):
			return Result{
				Intent:     intent.KindConfirmation,
				Confidence: 0.95,
				Fields:     map[string]string{"value": string(intent.ConfirmYes)},
				SkipModel:  true,
				Reason:     "explicit yes",
			}
		case noPattern.MatchString(norm):
			return Result{
				Intent:     intent.KindConfirmation,
				Confidence: 0.95,
				Fields:     map[string]string{"value": string(intent.ConfirmNo)},
				SkipModel:  true,
				Reason:     "explicit no",
			}
		case thanksPattern.MatchString(norm):
			return Result{
				Intent:     intent.KindSmallTalk,
				Confidence: 0.9,
				Fields:     map[string]string{"signal": "thanks"},
				SkipModel:  true,
				Reason:     "thanks",
			}
		case farewellPattern.MatchString(norm):
			return Result{
				Intent:     intent.KindFarewell,
				Confidence: 0.95,
				Fields:     map[string]string{},
				SkipModel:  true,
				Reason:     "farewell",
			}
		case greetingPattern.MatchString(norm):
			return Result{
				Intent:     intent.KindGreeting,
				Confidence: 0.95,
				Fields:     map[string]string{},
				SkipModel:  true,
				Reason:     "greeting",
			}
		}
	}

	if cancelPattern.MatchString(norm) {
		return Result{
			Intent:     intent.KindCancelCase,
			Confidence: 0.7,
			Fields:     map[string]string{},
			Reason:     "cancel keyword without tracking code",
		}
	}
	if updatePattern.MatchString(norm) && !serviceRequestLike(norm) {
		return Result{
			Intent:     intent.KindUpdateCase,
			Confidence: 0.6,
			Fields:     map[string]string{},
			Reason:     "update keyword without tracking code",
		}
	}

	if runes <= HistoryMessageRunes && historyPattern.MatchString(norm) {
		return Result{
			Intent:     intent.KindHistory,
			Confidence: 0.9,
			Fields:     map[string]string{},
			SkipModel:  true,
			Reason:     "history request",
		}
	}

	if category, ok := matchRule(complaintCategories, norm); ok && complaintVerbs.MatchString(norm) {
		fields := map[string]string{"category": category, "description": strings.TrimSpace(text)}
		if addr, ok := ExtractAddress(text); ok {
			fields["address"] = addr
		}
		return Result{
			Intent:     intent.KindCreateComplaint,
			Confidence: 0.75,
			Fields:     fields,
			Reason:     "complaint category " + category,
		}
	}

	if slug, ok := matchRule(serviceSlugs, norm); ok && serviceVerbs.MatchString(norm) && !questionPattern.MatchString(norm) {
		return Result{
			Intent:     intent.KindCreateServiceRequest,
			Confidence: 0.7,
			Fields:     map[string]string{"service_slug": slug, "description": strings.TrimSpace(text)},
			Reason:     "service " + slug,
		}
	}

	if questionPattern.MatchString(norm) {
		fields := map[string]string{"query": strings.TrimSpace(text)}
		if slug, ok := matchRule(serviceSlugs, norm); ok {
			fields["service_slug"] = slug
		}
		return Result{
			Intent:     intent.KindKnowledgeQuery,
			Confidence: 0.6,
			Fields:     fields,
			Reason:     "question",
		}
	}

	return Result{}
}

// classifyWithCode handles messages carrying a tracking code. These are
// always resolved without the model.
func classifyWithCode(norm, code string) Result {
	fields := map[string]string{"tracking_code": code}
	switch {
	case cancelPattern.MatchString(norm):
		return Result{Intent: intent.KindCancelCase, Confidence: 0.95, Fields: fields, SkipModel: true, Reason: "tracking code with cancel keyword"}
	case updatePattern.MatchString(norm):
		return Result{Intent: intent.KindUpdateCase, Confidence: 0.8, Fields: fields, Reason: "tracking code with update keyword"}
	default:
		return Result{Intent: intent.KindCheckStatus, Confidence: 0.99, Fields: fields, SkipModel: true, Reason: "tracking code"}
	}
}

func serviceRequestLike(norm string) bool {
	_, ok := matchRule(serviceSlugs, norm)
	return ok
}

func matchRule(rules []categoryRule, norm string) (string, bool) {
	for _, r := range rules {
		if r.pattern.MatchString(norm) {
			return r.slug, true
		}
	}
	return "", false
}

var spaceRun = regexp.MustCompile(`\s+`)

// Normalize lower-cases, collapses whitespace and trims edge punctuation.
func Normalize(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = spaceRun.ReplaceAllString(s, " ")
	return strings.Trim(s, punctuationTrims)
}

// IsShortConfirmation reports an explicit yes or no, for slot resolution.
func IsShortConfirmation(text string) (intent.ConfirmValue, bool) {
	norm := Normalize(text)
	if utf8.RuneCountInString(norm) > ShortMessageRunes {
		return "", false
	}
	switch {
	case yesPattern.MatchString(norm):
		return intent.ConfirmYes, true
	case noPattern.MatchString(norm):
		return intent.ConfirmNo, true
	}
	return "", false
}
