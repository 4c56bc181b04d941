package inference

import (
	"context"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/require"
)

func TestNewGeminiClientValidation(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), "", "gemini-2.5-flash")
	require.Error(t, err)
}

func TestGeminiSystemInstructionJoinsPrompts(t *testing.T) {
	instruction := geminiSystemInstruction([]string{"eres un asistente", "responde en español"})
	require.NotNil(t, instruction)
	require.Len(t, instruction.Parts, 1)
	require.Equal(t, genai.Text("eres un asistente\n\nresponde en español"), instruction.Parts[0])
}

func TestGeminiSystemInstructionEmpty(t *testing.T) {
	require.Nil(t, geminiSystemInstruction(nil))
	require.Nil(t, geminiSystemInstruction([]string{"", "  "}))
}

func TestGeminiHistoryRoleMapping(t *testing.T) {
	history := geminiHistory([]ChatMessage{
		{Role: ChatRoleUser, Content: "hola"},
		{Role: ChatRoleAssistant, Content: "hola, ¿cómo estás?"},
		{Role: ChatRoleSystem, Content: "instrucción tardía"},
		{Role: ChatRoleUser, Content: "   "},
		{Role: ChatRoleUser, Content: "me siento mal"},
	})

	// The last message is the live turn, system and blank turns are skipped.
	require.Len(t, history, 2)
	require.Equal(t, "user", history[0].Role)
	require.Equal(t, genai.Text("hola"), history[0].Parts[0])
	require.Equal(t, "model", history[1].Role)
	require.Equal(t, genai.Text("hola, ¿cómo estás?"), history[1].Parts[0])
}

func TestGeminiHistorySingleMessage(t *testing.T) {
	require.Nil(t, geminiHistory([]ChatMessage{{Role: ChatRoleUser, Content: "hola"}}))
}
