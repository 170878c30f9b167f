package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const analyzerInstruction = `You review single messages exchanged between members of a matchmaking platform.
Decide whether the message is SAFE to deliver or UNSAFE (scam, solicitation, coercion, harassment,
sharing of financial or identity data, or attempts to move the conversation off the platform).
Reply with JSON only: {"verdict":"SAFE"|"UNSAFE","reason":"<short reason>"}.`

type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type GeminiConfig struct {
	APIKey         string
	ModelName      string
	MaxRetries     int
	RetryDelay     time.Duration
	AttemptTimeout time.Duration
}

// GeminiAnalyzer asks a Gemini model for a SAFE/UNSAFE verdict.
type GeminiAnalyzer struct {
	client         *genai.Client
	model          generator
	logger         *zap.Logger
	maxRetries     int
	retryDelay     time.Duration
	attemptTimeout time.Duration
}

func NewGeminiAnalyzer(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*GeminiAnalyzer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.ModelName == "" {
		cfg.ModelName = "gemini-1.5-flash"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.ModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(analyzerInstruction)},
	}
	model.ResponseMIMEType = "application/json"
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:     genai.Ptr[float32](0),
		MaxOutputTokens: genai.Ptr[int32](200),
	}

	a := newGeminiAnalyzer(model, cfg, logger)
	a.client = client
	return a, nil
}

func newGeminiAnalyzer(model generator, cfg GeminiConfig, logger *zap.Logger) *GeminiAnalyzer {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiAnalyzer{
		model:          model,
		logger:         logger,
		maxRetries:     cfg.MaxRetries,
		retryDelay:     cfg.RetryDelay,
		attemptTimeout: cfg.AttemptTimeout,
	}
}

func (a *GeminiAnalyzer) Close() error {
	if a == nil || a.client == nil {
		return nil
	}
	return a.client.Close()
}

// Analyze retries transient API failures up to maxRetries times, each attempt
// under its own deadline. A reply that cannot be parsed into a verdict is
// returned as ErrAmbiguous without retry.
func (a *GeminiAnalyzer) Analyze(ctx context.Context, text, hint string) (AnalysisResult, error) {
	prompt := buildAnalyzerPrompt(text, hint)

	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			a.logger.Warn("retrying analyzer request", zap.Int("attempt", attempt+1))
			select {
			case <-ctx.Done():
				return AnalysisResult{}, fmt.Errorf("%w: %v", ErrTransient, ctx.Err())
			case <-time.After(a.retryDelay):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, a.attemptTimeout)
		resp, err := a.model.GenerateContent(attemptCtx, genai.Text(prompt))
		cancel()
		if err != nil {
			lastErr = err
			a.logger.Warn("analyzer api error", zap.Error(err), zap.Int("attempt", attempt+1))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		return parseAnalysis(resp)
	}

	return AnalysisResult{}, fmt.Errorf("%w: analyzer failed: %v", ErrTransient, lastErr)
}

func buildAnalyzerPrompt(text, hint string) string {
	var b strings.Builder
	if hint != "" {
		b.WriteString("Context: ")
		b.WriteString(hint)
		b.WriteString("\n")
	}
	b.WriteString("Message:\n")
	b.WriteString(text)
	return b.String()
}

func parseAnalysis(resp *genai.GenerateContentResponse) (AnalysisResult, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return AnalysisResult{}, fmt.Errorf("%w: empty analyzer response", ErrAmbiguous)
	}
	part, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return AnalysisResult{}, fmt.Errorf("%w: unexpected analyzer part type", ErrAmbiguous)
	}

	clean := strings.TrimSpace(string(part))
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)

	var out struct {
		Verdict string `json:"verdict"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return AnalysisResult{}, fmt.Errorf("%w: parse analyzer response: %v", ErrAmbiguous, err)
	}

	switch strings.ToUpper(strings.TrimSpace(out.Verdict)) {
	case VerdictSafe:
		return AnalysisResult{Verdict: VerdictSafe, Reason: out.Reason}, nil
	case VerdictUnsafe:
		return AnalysisResult{Verdict: VerdictUnsafe, Reason: out.Reason}, nil
	default:
		return AnalysisResult{}, fmt.Errorf("%w: verdict %q", ErrAmbiguous, out.Verdict)
	}
}
