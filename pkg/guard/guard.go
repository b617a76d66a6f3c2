// WargaBot - Citizen services assistant for chat channels
// License: MIT
//
// Copyright (c) 2026 WargaBot contributors

// Package guard catches replies that state concrete facts (hours, costs,
// contacts, deadlines) when no retrieved knowledge backed the prompt, and
// asks the model once more to answer without inventing them.
package guard

import (
	"context"
	"regexp"
	"strings"

	"github.com/dotsetgreg/wargabot/pkg/logger"
	"github.com/dotsetgreg/wargabot/pkg/planner"
)

// RefusalInstruction is appended to the prompt for the guarded retry.
const RefusalInstruction = `PENTING: Konteks pengetahuan untuk pertanyaan ini kosong. Jangan menyebutkan jam operasional, biaya, nomor telepon, alamat, email, tautan, atau lama proses yang tidak ada di konteks. Jika informasinya tidak tersedia, katakan dengan jujur bahwa Anda belum memiliki informasi tersebut dan sarankan warga menghubungi kantor pelayanan terkait.`

type rule struct {
	name    string
	pattern *regexp.Regexp
}

var riskyRules = []rule{
	{"hours", regexp.MustCompile(`(?i)\b(jam|pukul)\s*\d{1,2}([.:]\d{2})?\b`)},
	{"hours", regexp.MustCompile(`(?i)\b(senin|selasa|rabu|kamis|jumat|jum'at|sabtu|minggu)\s*(-|–|sampai|s/d|s\.d\.|hingga)\s*(senin|selasa|rabu|kamis|jumat|jum'at|sabtu|minggu)\b`)},
	{"hours", regexp.MustCompile(`(?i)\b(buka|tutup|beroperasi|melayani)\s+(setiap hari|tiap hari|24 jam|mulai)\b`)},
	{"cost", regexp.MustCompile(`(?i)\brp\.?\s*\d`)},
	{"cost", regexp.MustCompile(`(?i)\b\d{1,3}(\.\d{3})+\s*(rupiah|ribu)?\b`)},
	{"cost", regexp.MustCompile(`(?i)\b\d+\s*(ribu|juta)\s*(rupiah)?\b`)},
	{"cost", regexp.MustCompile(`(?i)\b(gratis|tidak dipungut biaya|tanpa biaya|biayanya)\b`)},
	{"contact", regexp.MustCompile(`(?:\+62|\b0)\d{2,4}[-\s]?\d{3,4}[-\s]?\d{3,5}\b`)},
	{"contact", regexp.MustCompile(`(?i)\b[\w.+-]+@[\w-]+\.[\w.]+\b`)},
	{"contact", regexp.MustCompile(`(?i)\b(https?://|www\.)\S+`)},
	{"contact", regexp.MustCompile(`(?i)\b(wa\.me|whatsapp\s*(ke|di)?\s*\d)`)},
	{"processing_time", regexp.MustCompile(`(?i)\b\d+\s*(hari kerja|jam kerja|minggu|hari)\b`)},
}

// Decision is the outcome of Assess.
type Decision struct {
	Risky   bool
	Reasons []string
}

// Assess reports whether reply (or guidance) asserts concrete facts that
// were not backed by knowledge in the prompt. With knowledge present
// nothing is risky.
func Assess(reply, guidance string, hasKnowledge bool) Decision {
	if hasKnowledge {
		return Decision{}
	}
	text := strings.TrimSpace(reply + "\n" + guidance)
	if text == "" {
		return Decision{}
	}

	var reasons []string
	seen := map[string]bool{}
	for _, r := range riskyRules {
		if seen[r.name] {
			continue
		}
		if r.pattern.MatchString(text) {
			seen[r.name] = true
			reasons = append(reasons, r.name)
		}
	}
	return Decision{Risky: len(reasons) > 0, Reasons: reasons}
}

// Executor is the slice of the planner the gate needs.
type Executor interface {
	Execute(ctx context.Context, call planner.Call) planner.Outcome
}

type Gate struct {
	exec Executor
}

func New(exec Executor) *Gate {
	return &Gate{exec: exec}
}

// Candidate is the reply under review.
type Candidate struct {
	Reply    string
	Guidance string
}

type Result struct {
	Reply    string
	Guidance string
	Decision Decision
	Retried  bool
	Replaced bool
}

// Review runs Assess and, when risky, exactly one retry of call with the
// refusal instruction appended. The candidate is replaced only by a
// successful retry with a non-empty reply.
func (g *Gate) Review(ctx context.Context, call planner.Call, cand Candidate, hasKnowledge bool) Result {
	res := Result{Reply: cand.Reply, Guidance: cand.Guidance}
	res.Decision = Assess(cand.Reply, cand.Guidance, hasKnowledge)
	if !res.Decision.Risky || g == nil || g.exec == nil {
		return res
	}

	retry := call
	retry.Purpose = "guard"
	retry.Prompt = strings.TrimRight(call.Prompt, "\n") + "\n\n" + RefusalInstruction
	res.Retried = true

	out := g.exec.Execute(ctx, retry)
	if !out.OK {
		logger.WarnCF("guard", "Guarded retry failed; keeping original reply", map[string]interface{}{
			"reasons": strings.Join(res.Decision.Reasons, ","),
			"reason":  out.Reason,
		})
		return res
	}

	reply, _ := out.Payload["reply"].(string)
	if strings.TrimSpace(reply) == "" {
		return res
	}
	if tech, _ := out.Payload["technical_error"].(bool); tech {
		return res
	}
	res.Reply = reply
	guidance, _ := out.Payload["guidance"].(string)
	res.Guidance = guidance
	res.Replaced = true
	logger.InfoCF("guard", "Replaced unsupported reply", map[string]interface{}{
		"reasons": strings.Join(res.Decision.Reasons, ","),
		"model":   out.Metrics.Model,
	})
	return res
}
