package delegate

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/ShayCichocki/rlm/internal/orchestrator"
	"github.com/ShayCichocki/rlm/pkg/models"
)

// DefaultMaxTokens bounds each reply when ClientConfig.MaxTokens is zero.
const DefaultMaxTokens = 4096

// ModelPricing contains pricing per 1M tokens for a model.
type ModelPricing struct {
	InputPerMillion  float64 // Cost per 1M input tokens
	OutputPerMillion float64 // Cost per 1M output tokens
}

// DefaultModelPricing contains pricing for known Claude models.
var DefaultModelPricing = map[string]ModelPricing{
	"claude-opus-4-5-20251101":   {InputPerMillion: 5.00, OutputPerMillion: 25.00},
	"claude-opus-4-1-20250805":   {InputPerMillion: 15.00, OutputPerMillion: 75.00},
	"claude-sonnet-4-5-20250929": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-sonnet-4-20250514":   {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-3-7-sonnet-20250219": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-haiku-4-5-20251001":  {InputPerMillion: 1.00, OutputPerMillion: 5.00},
	"claude-3-5-haiku-20241022":  {InputPerMillion: 0.80, OutputPerMillion: 4.00},
}

// Cost estimates the USD cost of a call. Unknown models cost nothing.
func Cost(model string, inputTokens, outputTokens int64) float64 {
	p, ok := DefaultModelPricing[baseModel(model)]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1_000_000*p.InputPerMillion + float64(outputTokens)/1_000_000*p.OutputPerMillion
}

// baseModel strips the Bedrock inference profile decoration.
func baseModel(model string) string {
	model = strings.TrimPrefix(model, "us.anthropic.")
	return strings.TrimSuffix(model, "-v1:0")
}

// ClientConfig contains configuration for an AnthropicDispatcher.
type ClientConfig struct {
	// Model is the Claude model to use (e.g., anthropic.ModelClaudeSonnet4_20250514).
	Model anthropic.Model
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY env var.
	APIKey string
	// UseAWSBedrock indicates whether to use AWS Bedrock instead of direct API.
	UseAWSBedrock bool
	// AWSRegion is the AWS region for Bedrock (e.g., "us-west-2").
	AWSRegion string
	// AWSProfile is the optional AWS profile name to use.
	AWSProfile string
	// MaxTokens bounds each reply.
	MaxTokens int
}

// messageCreator is the part of the SDK the dispatcher uses.
type messageCreator interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicDispatcher runs each task as one Messages API call.
type AnthropicDispatcher struct {
	messages  messageCreator
	model     anthropic.Model
	maxTokens int64
	logger    *slog.Logger
}

var _ orchestrator.Dispatcher = (*AnthropicDispatcher)(nil)

// NewAnthropicDispatcher creates a dispatcher backed by the Anthropic API or
// AWS Bedrock.
func NewAnthropicDispatcher(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*AnthropicDispatcher, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}

		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, &Error{Kind: KindConfig, Message: "ANTHROPIC_API_KEY environment variable is not set"}
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	client := anthropic.NewClient(opts...)

	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	if cfg.UseAWSBedrock {
		model = translateModelForBedrock(model)
	}

	return newAnthropicDispatcher(&client.Messages, model, cfg.MaxTokens, logger), nil
}

func newAnthropicDispatcher(messages messageCreator, model anthropic.Model, maxTokens int, logger *slog.Logger) *AnthropicDispatcher {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &AnthropicDispatcher{
		messages:  messages,
		model:     model,
		maxTokens: int64(maxTokens),
		logger:    logger,
	}
}

// translateModelForBedrock converts standard Anthropic model names to Bedrock inference profile format.
// Bedrock uses cross-region inference profiles: us.anthropic.{model}-v1:0
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	bedrockModels := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		anthropic.ModelClaudeOpus4_1_20250805:   "us.anthropic.claude-opus-4-1-20250805-v1:0",
		anthropic.ModelClaudeOpus4_5_20251101:   "us.anthropic.claude-opus-4-5-20251101-v1:0",
		anthropic.ModelClaude3_7Sonnet20250219:  "us.anthropic.claude-3-7-sonnet-20250219-v1:0",
		anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}

	if bedrockModel, ok := bedrockModels[model]; ok {
		return anthropic.Model(bedrockModel)
	}

	// Already in Bedrock format or a custom model.
	return model
}

// Model returns the configured model name.
func (d *AnthropicDispatcher) Model() anthropic.Model {
	return d.model
}

// Dispatch implements orchestrator.Dispatcher.
func (d *AnthropicDispatcher) Dispatch(ctx context.Context, req orchestrator.DispatchRequest) (models.Outcome, error) {
	resp, err := d.messages.New(ctx, anthropic.MessageNewParams{
		Model:     d.model,
		MaxTokens: d.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: SystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(BuildPrompt(req))),
		},
	})
	if err != nil {
		return models.Outcome{}, &Error{Kind: KindAPI, Message: "messages request failed", Err: err}
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}

	in, out := resp.Usage.InputTokens, resp.Usage.OutputTokens
	d.logger.Debug("messages response",
		"role", req.Task.Role,
		"depth", req.Task.Depth,
		"input_tokens", in,
		"output_tokens", out,
		"stop_reason", resp.StopReason,
	)

	outcome, err := ParseOutcome([]byte(text.String()))
	if err != nil {
		return models.Outcome{}, err
	}

	usage := map[string]any{
		"model":         string(d.model),
		"input_tokens":  in,
		"output_tokens": out,
	}
	switch outcome.Kind {
	case models.OutcomeResult:
		r := outcome.Result
		r.TokenCount = int(in + out)
		r.CostUSD = Cost(string(d.model), in, out)
		r.Metadata = withUsage(r.Metadata, usage)
	case models.OutcomeContinuation:
		// Continuations carry no counters; usage is kept in metadata only.
		c := outcome.Continuation
		c.Metadata = withUsage(c.Metadata, usage)
	}
	return outcome, nil
}

// String describes the dispatcher for status output.
func (d *AnthropicDispatcher) String() string {
	return fmt.Sprintf("anthropic(%s)", d.model)
}

func withUsage(meta, usage map[string]any) map[string]any {
	if meta == nil {
		meta = make(map[string]any, len(usage))
	}
	maps.Copy(meta, usage)
	return meta
}
