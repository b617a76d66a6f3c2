package agent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dotsetgreg/wargabot/pkg/cases"
)

var (
	// ErrSpamRejected marks a turn dropped by spam detection.
	ErrSpamRejected = errors.New("spam rejected")
	ErrInvalidInput = errors.New("invalid turn input")
)

const (
	fallbackTimeout     = "Maaf, permintaan Anda memerlukan waktu lebih lama dari biasanya. Silakan kirim ulang pesan Anda dalam beberapa saat."
	fallbackRateLimit   = "Maaf, layanan kami sedang sangat sibuk. Mohon tunggu sebentar lalu coba lagi."
	fallbackServiceDown = "Maaf, layanan kami sedang mengalami gangguan. Silakan coba lagi nanti."
	fallbackGeneric     = "Maaf, terjadi kendala teknis saat memproses pesan Anda. Silakan coba lagi nanti."
)

var fallbackCategories = []struct {
	hints []string
	text  string
}{
	{[]string{"timeout", "timed out", "deadline exceeded", "context canceled"}, fallbackTimeout},
	{[]string{"rate_limited", "rate limit", "too many requests", "429", "quota"}, fallbackRateLimit},
	{[]string{"unavailable", "connection refused", "no such host", "503", "502", "service down", "econnrefused"}, fallbackServiceDown},
}

// fallbackText picks the user-facing reply for an unexpected failure by
// matching the error text against known categories.
func fallbackText(err error) string {
	if err == nil {
		return fallbackGeneric
	}
	msg := strings.ToLower(err.Error())
	for _, c := range fallbackCategories {
		for _, h := range c.hints {
			if strings.Contains(msg, h) {
				return c.text
			}
		}
	}
	return fallbackGeneric
}

// caseDenial maps a case-service error to a polite refusal. ok reports
// whether the error is an expected denial rather than an outage.
func caseDenial(err error, code string) (text string, ok bool) {
	switch cases.Kind(err) {
	case cases.KindNotFound:
		return fmt.Sprintf("Maaf, nomor %s tidak kami temukan. Mohon periksa kembali nomor laporan atau permohonan Anda.", code), true
	case cases.KindNotOwner:
		return fmt.Sprintf("Maaf, %s tidak terdaftar atas nama Anda, sehingga detailnya tidak dapat kami tampilkan atau ubah.", code), true
	case cases.KindLocked:
		return fmt.Sprintf("Maaf, %s sudah selesai diproses atau ditutup sehingga tidak dapat diubah lagi.", code), true
	}
	return "Maaf, layanan pengaduan sedang tidak dapat diakses. Silakan coba lagi nanti.", false
}
