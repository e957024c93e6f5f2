package delegate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/rlm/internal/config"
	"github.com/ShayCichocki/rlm/internal/orchestrator"
)

// New returns the dispatcher selected by cfg.
func New(ctx context.Context, cfg config.DelegateConfig, logger *slog.Logger) (orchestrator.Dispatcher, error) {
	switch provider := cfg.ResolvedProvider(); provider {
	case config.ProviderOffline:
		return OfflineDispatcher{}, nil

	case config.ProviderAnthropic, config.ProviderBedrock:
		key := ""
		if provider == config.ProviderAnthropic {
			k, err := cfg.Key()
			if err != nil {
				return nil, &Error{Kind: KindConfig, Message: "anthropic provider selected", Err: err}
			}
			key = k
		}
		return NewAnthropicDispatcher(ctx, ClientConfig{
			Model:         anthropic.Model(cfg.Model),
			APIKey:        key,
			UseAWSBedrock: provider == config.ProviderBedrock,
			AWSRegion:     cfg.AWSRegion,
			AWSProfile:    cfg.AWSProfile,
			MaxTokens:     cfg.MaxTokens,
		}, logger)

	default:
		return nil, &Error{Kind: KindConfig, Message: fmt.Sprintf("unknown provider %q", provider)}
	}
}
