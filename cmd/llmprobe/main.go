// Command llmprobe exercises the configured inference providers from the
// command line. Useful for checking API keys and model ids before deploying.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/serenai/emotion-ai-platform/internal/inference"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	fmt.Println("LLM Provider Probe")
	fmt.Println("==================")

	probeGroq(ctx)
	probeGemini(ctx)
}

func probeGroq(ctx context.Context) {
	apiKey := os.Getenv("GROQ_API_KEY")
	if apiKey == "" {
		fmt.Println("\n[1] Skipping Groq probe (GROQ_API_KEY not set)")
		return
	}

	fmt.Println("\n[1] Probing Groq...")
	client, err := inference.NewGroqClient(inference.GroqConfig{APIKey: apiKey})
	if err != nil {
		fmt.Printf("    failed to create Groq client: %v\n", err)
		return
	}

	gateway := inference.NewGateway(client, client, nil)
	start := time.Now()
	assessment, err := gateway.Classify(ctx, "Hoy me siento bastante ansioso por el trabajo", nil)
	elapsed := time.Since(start)
	if err != nil {
		fmt.Printf("    classification error: %v\n", err)
		return
	}
	fmt.Printf("    classification ok (%v)\n", elapsed.Round(time.Millisecond))
	fmt.Printf("    emotion=%s intensity=%d risk=%s\n", assessment.Emotion, assessment.Intensity, assessment.RiskLevel)

	start = time.Now()
	response, err := gateway.Respond(ctx, "Hoy me siento bastante ansioso por el trabajo", assessment, nil)
	elapsed = time.Since(start)
	if err != nil {
		fmt.Printf("    response error: %v\n", err)
		return
	}
	fmt.Printf("    response ok (%v):\n    %s\n", elapsed.Round(time.Millisecond), response)
}

func probeGemini(ctx context.Context) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		fmt.Println("\n[2] Skipping Gemini probe (GEMINI_API_KEY not set)")
		return
	}

	fmt.Println("\n[2] Probing Gemini...")
	client, err := inference.NewGeminiClient(ctx, apiKey, "gemini-2.5-flash")
	if err != nil {
		fmt.Printf("    failed to create Gemini client: %v\n", err)
		return
	}
	defer client.Close()

	start := time.Now()
	resp, err := client.Complete(ctx, inference.LLMRequest{
		System:      []string{"Eres un asistente de apoyo emocional. Responde brevemente."},
		Messages:    []inference.ChatMessage{{Role: inference.ChatRoleUser, Content: "Hola, ¿cómo estás?"}},
		MaxTokens:   200,
		Temperature: 0.7,
	})
	elapsed := time.Since(start)
	if err != nil {
		fmt.Printf("    Gemini error: %v\n", err)
		return
	}
	fmt.Printf("    Gemini response (%v):\n    %s\n", elapsed.Round(time.Millisecond), resp.Text)
	fmt.Printf("    tokens: in=%d out=%d\n", resp.Usage.InputTokens, resp.Usage.OutputTokens)
}
