package anyllm

import (
	"testing"

	"github.com/MrWong99/kioskvoice/pkg/provider/llm"
)

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New("", "m"); err == nil {
		t.Error("empty provider: error = nil, want error")
	}
	if _, err := New("openai", ""); err == nil {
		t.Error("empty model: error = nil, want error")
	}
	if _, err := New("nonesuch", "m"); err == nil {
		t.Error("unknown provider: error = nil, want error")
	}
}

func TestBuildParams(t *testing.T) {
	t.Parallel()
	p := &Provider{model: "qwen2.5"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "persona",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "버거 추천해 주세요"},
			{Role: llm.RoleAssistant, Content: "불고기버거를 추천합니다."},
		},
	})
	if params.Model != "qwen2.5" {
		t.Errorf("Model = %q, want qwen2.5", params.Model)
	}
	if len(params.Messages) != 3 {
		t.Fatalf("len(Messages) = %d, want 3", len(params.Messages))
	}
	if params.Messages[0].Role != "system" {
		t.Errorf("Messages[0].Role = %q, want system", params.Messages[0].Role)
	}
	if got := params.Messages[2].ContentString(); got != "불고기버거를 추천합니다." {
		t.Errorf("assistant content = %q", got)
	}
	if params.Temperature == nil || *params.Temperature != 0 {
		t.Errorf("Temperature = %v, want explicit 0", params.Temperature)
	}
	if params.MaxTokens != nil {
		t.Errorf("MaxTokens = %v, want nil", *params.MaxTokens)
	}
}
