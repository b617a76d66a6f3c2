package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStructured_Ladder(t *testing.T) {
	cases := []struct {
		name      string
		in        string
		stage     Stage
		wantReply string
	}{
		{
			name:      "strict",
			in:        `{"intent":"greeting","reply":"Halo!"}`,
			stage:     StageStrict,
			wantReply: "Halo!",
		},
		{
			name:      "fenced",
			in:        "```json\n{\"intent\":\"greeting\",\"reply\":\"Halo!\"}\n```",
			stage:     StageStrict,
			wantReply: "Halo!",
		},
		{
			name:      "trailing comma",
			in:        `{"intent":"greeting","reply":"Halo!",}`,
			stage:     StageStrict,
			wantReply: "Halo!",
		},
		{
			name:      "truncated string",
			in:        `{"intent":"knowledge_query","reply":"Kantor buka jam 8`,
			stage:     StageClosed,
			wantReply: "Kantor buka jam 8",
		},
		{
			name:      "truncated after key",
			in:        `{"intent":"greeting","reply":"Halo","fields":{"name":"Budi","addr`,
			stage:     StageClosed,
			wantReply: "Halo",
		},
		{
			name:      "embedded object",
			in:        `Here you go: {"intent":"greeting","reply":"Halo"} hope it helps {oops}`,
			stage:     StageSubstring,
			wantReply: "Halo",
		},
		{
			name:      "regex fields",
			in:        `"intent": "greeting", "reply": "Halo \"warga\""`,
			stage:     StageRegex,
			wantReply: `Halo "warga"`,
		},
		{
			name:      "garbage",
			in:        `I cannot answer that.`,
			stage:     StageFallback,
			wantReply: TechnicalErrorReply,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			obj, stage := ParseStructured(tc.in, nil)
			require.NotNil(t, obj)
			assert.Equal(t, tc.stage, stage)
			assert.Equal(t, tc.wantReply, obj["reply"])
			assert.NotEmpty(t, obj["intent"])
		})
	}
}

func TestParseStructured_RequiredFieldsDriveLadder(t *testing.T) {
	// valid JSON but missing "decision" falls through to the fallback
	obj, stage := ParseStructured(`{"intent":"greeting","reply":"Halo"}`, []string{"decision"})
	assert.Equal(t, StageFallback, stage)
	assert.Equal(t, true, obj["technical_error"])

	obj, stage = ParseStructured(`{"decision":"confirm"}`, []string{"decision"})
	assert.Equal(t, StageStrict, stage)
	assert.Equal(t, "confirm", obj["decision"])
}

func TestCloseTruncated(t *testing.T) {
	assert.JSONEq(t, `{"a":[1,2]}`, closeTruncated(`{"a":[1,2`))
	assert.JSONEq(t, `{"a":"b\\"}`, closeTruncated(`{"a":"b\\`))
	assert.JSONEq(t, `{"a":null}`, closeTruncated(`{"a":`))
}
