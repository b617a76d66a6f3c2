package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dotsetgreg/wargabot/pkg/classifier"
	"github.com/dotsetgreg/wargabot/pkg/history"
	"github.com/dotsetgreg/wargabot/pkg/intent"
)

// ContextBuilder assembles the prompts sent through the planner.
type ContextBuilder struct {
	assistant string
	region    string
}

func NewContextBuilder(assistant, region string) *ContextBuilder {
	return &ContextBuilder{assistant: assistant, region: region}
}

// turnSchema constrains the structured reply of a full turn.
var turnSchema = mustSchema(map[string]interface{}{
	"type":     "object",
	"required": []string{"intent", "reply"},
	"properties": map[string]interface{}{
		"intent":   map[string]interface{}{"type": "string", "enum": intent.Kinds},
		"reply":    map[string]interface{}{"type": "string"},
		"guidance": map[string]interface{}{"type": "string"},
		"fields":   map[string]interface{}{"type": "object"},
	},
})

var confirmSchema = mustSchema(map[string]interface{}{
	"type":     "object",
	"required": []string{"decision"},
	"properties": map[string]interface{}{
		"decision": map[string]interface{}{
			"type": "string",
			"enum": []intent.ConfirmValue{intent.ConfirmYes, intent.ConfirmNo, intent.ConfirmUncertain},
		},
	},
})

func mustSchema(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func (cb *ContextBuilder) BuildSystemPrompt() string {
	kinds := make([]string, 0, len(intent.Kinds))
	for _, k := range intent.Kinds {
		kinds = append(kinds, string(k))
	}
	return fmt.Sprintf(`Anda adalah %s, asisten layanan warga Pemerintah %s.

Tugas Anda:
- Membantu warga melaporkan masalah lingkungan (pengaduan), mengajukan layanan administrasi, mengecek status, membatalkan atau menambah informasi laporan.
- Menjawab pertanyaan hanya berdasarkan KONTEKS PENGETAHUAN. Jika konteks kosong, jangan mengarang jam, biaya, kontak, atau lama proses.
- Gunakan bahasa Indonesia yang sopan dan ringkas, kecuali warga menulis dalam bahasa Inggris.

Balas HANYA dengan objek JSON:
{"intent": "<salah satu: %s>", "reply": "<jawaban untuk warga>", "guidance": "<langkah lanjutan opsional>", "fields": {"category": "", "address": "", "description": "", "service_slug": "", "tracking_code": "", "reason": "", "query": "", "name": ""}}`,
		cb.assistant, cb.region, strings.Join(kinds, ", "))
}

// TurnContext is everything known about the turn when the model is called.
type TurnContext struct {
	Name      string
	Message   string
	History   []history.Message
	Knowledge string
	Signals   Signals
	Fast      classifier.Result
}

func (cb *ContextBuilder) BuildPrompt(tc TurnContext) string {
	var sb strings.Builder

	if tc.Name != "" {
		fmt.Fprintf(&sb, "NAMA WARGA: %s\n\n", tc.Name)
	}

	sb.WriteString("RIWAYAT PERCAKAPAN:\n")
	if len(tc.History) == 0 {
		sb.WriteString("(belum ada)\n")
	}
	for _, m := range tc.History {
		who := "Warga"
		if m.Role == history.RoleAssistant {
			who = "Asisten"
		}
		fmt.Fprintf(&sb, "%s: %s\n", who, truncate(m.Content, 500))
	}

	sb.WriteString("\nKONTEKS PENGETAHUAN:\n")
	if strings.TrimSpace(tc.Knowledge) == "" {
		sb.WriteString("(kosong)\n")
	} else {
		sb.WriteString(strings.TrimSpace(tc.Knowledge))
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "\nSINYAL: bahasa=%s, sentimen=%s", tc.Signals.Language, tc.Signals.Sentiment)
	if tc.Signals.Urgent {
		sb.WriteString(", mendesak=ya")
	}
	sb.WriteString("\n")

	if tc.Fast.Matched() {
		fmt.Fprintf(&sb, "DUGAAN AWAL: intent=%s", tc.Fast.Intent)
		for _, k := range sortedKeys(tc.Fast.Fields) {
			fmt.Fprintf(&sb, ", %s=%s", k, truncate(tc.Fast.Fields[k], 200))
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "\nPESAN WARGA:\n%s\n", tc.Message)
	return sb.String()
}

func (cb *ContextBuilder) BuildConfirmationPrompt(question, answer string) (system, prompt string) {
	system = `Tentukan apakah jawaban warga menyetujui pertanyaan asisten. Balas HANYA JSON {"decision": "confirm" | "reject" | "uncertain"}.`
	prompt = fmt.Sprintf("PERTANYAAN ASISTEN:\n%s\n\nJAWABAN WARGA:\n%s\n", question, answer)
	return system, prompt
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
