package agent

import (
	"fmt"
	"strings"

	"github.com/dotsetgreg/wargabot/pkg/cases"
)

func greetingReply(assistant, name string) string {
	hello := "Halo!"
	if name != "" {
		hello = "Halo " + name + "!"
	}
	return fmt.Sprintf("%s Saya %s, asisten layanan warga. Ada yang bisa saya bantu? Anda bisa melapor masalah di lingkungan, mengajukan layanan administrasi, atau menanyakan status laporan.", hello, assistant)
}

func askNameReply(assistant string, asked int) string {
	if asked > 0 {
		return "Mohon maaf, sebelum melanjutkan saya perlu tahu nama Anda. Silakan ketik nama Anda, contoh: \"Nama saya Budi\"."
	}
	return fmt.Sprintf("Halo, saya %s, asisten layanan warga. Boleh saya tahu nama Anda?", assistant)
}

func nameAckReply(name string) string {
	return fmt.Sprintf("Terima kasih, %s. Ada yang bisa saya bantu hari ini?", name)
}

func farewellReply(name string) string {
	if name == "" {
		return "Terima kasih telah menghubungi kami. Sampai jumpa!"
	}
	return fmt.Sprintf("Terima kasih, %s, telah menghubungi kami. Sampai jumpa!", name)
}

const (
	thanksReply          = "Sama-sama! Jika ada hal lain yang bisa kami bantu, silakan sampaikan."
	idleConfirmReply     = "Baik. Ada lagi yang bisa saya bantu?"
	askCancelConfirmFmt  = "Apakah Anda yakin ingin membatalkan %s? Balas \"ya\" untuk membatalkan atau \"tidak\" untuk mengurungkan."
	cancelAbortedReply   = "Baik, pembatalan tidak dilanjutkan."
	askLocationReply     = "Baik, laporan Anda kami catat. Mohon sebutkan lokasi kejadian (nama jalan dan nomor, RT/RW, atau patokan terdekat)."
	reaskLocationReply   = "Mohon maaf, saya belum menangkap lokasinya. Sebutkan nama jalan beserta nomor, RT/RW, atau patokan terdekat."
	complaintDroppedText = "Baik, laporan tidak dilanjutkan. Jika ingin melapor lagi, silakan sampaikan kapan saja."
	askPhoneReply        = "Untuk laporan ini petugas mungkin perlu menghubungi Anda. Boleh kami minta nomor HP yang bisa dihubungi? Balas \"lewati\" jika tidak ingin memberikan."
	reaskPhoneReply      = "Nomor HP belum terbaca. Mohon kirim nomor dengan format 08xxxxxxxxxx, atau balas \"lewati\"."
	askContactNameReply  = "Boleh kami tahu nama pelapor?"
	serviceDeclinedReply = "Baik, permohonan tidak dibuat. Jika membutuhkan bantuan lain, silakan sampaikan."
	noHistoryReply       = "Anda belum memiliki laporan atau permohonan yang tercatat."
	updateNeedsTextReply = "Silakan sampaikan informasi tambahan yang ingin Anda tambahkan pada %s."
)

func askAddressConfirmReply(address string) string {
	return fmt.Sprintf("Apakah lokasi kejadian di %s? Balas \"ya\" jika benar atau \"tidak\" untuk mengoreksi.", address)
}

func reaskConfirmReply(question string) string {
	return "Mohon jawab dengan \"ya\" atau \"tidak\". " + question
}

func offerServiceReply(slug string) string {
	return fmt.Sprintf("Apakah Anda ingin kami buatkan permohonan layanan %s sekarang? Balas \"ya\" atau \"tidak\".", humanize(slug))
}

func complaintCreatedReply(c cases.Case, photos int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Laporan Anda telah kami terima dengan nomor %s.", c.TrackingCode)
	if c.Address != "" {
		fmt.Fprintf(&sb, " Lokasi: %s.", c.Address)
	}
	if photos > 0 {
		fmt.Fprintf(&sb, " %d foto terlampir.", photos)
	}
	sb.WriteString(" Simpan nomor ini untuk mengecek status laporan.")
	return sb.String()
}

func serviceCreatedReply(c cases.Case) string {
	return fmt.Sprintf("Permohonan layanan %s telah dibuat dengan nomor %s. Petugas akan menghubungi Anda untuk langkah selanjutnya.", humanize(c.ServiceSlug), c.TrackingCode)
}

func statusReply(c cases.Case) string {
	var sb strings.Builder
	kind := "Laporan"
	if c.ServiceSlug != "" {
		kind = "Permohonan"
	}
	fmt.Fprintf(&sb, "%s %s: %s.", kind, c.TrackingCode, c.Status.Label())
	if c.Category != "" {
		fmt.Fprintf(&sb, " Kategori: %s.", humanize(c.Category))
	}
	if c.ServiceSlug != "" {
		fmt.Fprintf(&sb, " Layanan: %s.", humanize(c.ServiceSlug))
	}
	if c.Reason != "" {
		fmt.Fprintf(&sb, " Keterangan: %s.", c.Reason)
	}
	fmt.Fprintf(&sb, " Terakhir diperbarui %s.", c.UpdatedAt.Format("02-01-2006 15:04"))
	return sb.String()
}

func cancelledReply(c cases.Case) string {
	return fmt.Sprintf("%s telah dibatalkan.", c.TrackingCode)
}

func updatedReply(c cases.Case) string {
	return fmt.Sprintf("Informasi tambahan untuk %s telah kami simpan.", c.TrackingCode)
}

func historyReply(list []cases.Case) string {
	if len(list) == 0 {
		return noHistoryReply
	}
	var sb strings.Builder
	sb.WriteString("Berikut laporan dan permohonan Anda:")
	for _, c := range list {
		subject := c.Category
		if c.ServiceSlug != "" {
			subject = c.ServiceSlug
		}
		fmt.Fprintf(&sb, "\n- %s (%s): %s", c.TrackingCode, humanize(subject), c.Status.Label())
	}
	return sb.String()
}

func humanize(slug string) string {
	return strings.NewReplacer("_", " ", "-", " ").Replace(slug)
}
