package orchestrator

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"agenttourney/internal/adapter"
	"agenttourney/internal/config"
)

// offlineStrategies maps a strategy name (config.Agent.Strategy) to a
// constructor. Tests and mock participants register entries here before
// building a tournament; buildAdapter fails with a configuration error
// for an unknown strategy, per spec §7.
type offlineStrategies = map[string]adapter.Strategy

// buildAdapter constructs the concrete Adapter for agentName per its
// configured provider. Construction errors here are configuration
// errors, per spec §7: raised before any match starts.
func buildAdapter(agentName string, agent config.Agent, limiter adapter.RateLimiter, strategies offlineStrategies) (adapter.Adapter, error) {
	switch agent.Provider {
	case "offline-deterministic":
		strategy, ok := strategies[agent.Strategy]
		if !ok {
			return nil, fmt.Errorf("agent %q: unknown offline strategy %q", agentName, agent.Strategy)
		}
		return adapter.NewOfflineAdapter(agentName, agent.ModelID, strategy), nil

	case "openai-compatible":
		return adapter.NewOpenAICompatibleAdapter(adapter.OpenAIConfig{
			APIKeyEnv: agent.APIKeyEnv,
			Model:     modelIDOrAgent(agent, agentName),
			BaseURL:   agent.BaseURL,
			Limiter:   limiter,
		})

	case "anthropic-style":
		return adapter.NewAnthropicAdapter(adapter.AnthropicConfig{
			APIKeyEnv: agent.APIKeyEnv,
			Model:     modelIDOrAgent(agent, agentName),
			BaseURL:   agent.BaseURL,
		})

	case "openrouter-routed":
		return adapter.NewRoutedAdapter(adapter.RoutedConfig{
			APIKeyEnv: agent.APIKeyEnv,
			Model:     modelIDOrAgent(agent, agentName),
			SiteURL:   agent.SiteURL,
			AppName:   agent.AppName,
			Limiter:   limiter,
		})

	default:
		return nil, fmt.Errorf("agent %q: unknown provider %q", agentName, agent.Provider)
	}
}

func modelIDOrAgent(agent config.Agent, agentName string) string {
	if agent.ModelID != "" {
		return agent.ModelID
	}
	return agentName
}

// BuildRateLimiter returns a RedisRateLimiter when addr is configured,
// otherwise a no-op pass-through — purely additive per SPEC_FULL.md §4.4.
// Exported so the CLI entrypoint can build the Options.Limiter value
// without reaching into the adapter package's Redis wiring itself.
func BuildRateLimiter(addr, password string, db int) adapter.RateLimiter {
	if addr == "" {
		return adapter.NoopRateLimiter{}
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	return adapter.NewRedisRateLimiter(client, 1, ratePerSecondWindow)
}

// ratePerSecondWindow is the fixed coordination window for the shared
// cross-match limiter: a budget of one call per agent per second. Calls
// over budget wait one window and then proceed (see RedisRateLimiter.Wait),
// so concurrent calls are spaced out rather than strictly capped, matching
// the single-retry, no-backoff-library spirit of the adapter contract.
const ratePerSecondWindow = time.Second
