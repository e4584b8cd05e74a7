package adapter

// openRouterBaseURL is the fixed base URL for the routed (OpenRouter-style)
// adapter.
const openRouterBaseURL = "https://openrouter.ai/api/v1"

// RoutedConfig configures a routed (OpenRouter-style) adapter: an
// OpenAI-compatible back-end with a fixed base URL and optional
// attribution headers.
type RoutedConfig struct {
	APIKeyEnv string
	Model     string
	SiteURL   string // sent as HTTP-Referer
	AppName   string // sent as X-Title
	Limiter   RateLimiter
}

// NewRoutedAdapter builds an OpenAI-compatible adapter pinned to the
// OpenRouter base URL with attribution headers, per spec §4.4(4).
func NewRoutedAdapter(cfg RoutedConfig) (*OpenAICompatibleAdapter, error) {
	return NewOpenAICompatibleAdapter(OpenAIConfig{
		APIKeyEnv: cfg.APIKeyEnv,
		Model:     cfg.Model,
		BaseURL:   openRouterBaseURL,
		DefaultHeaders: map[string]string{
			"HTTP-Referer": cfg.SiteURL,
			"X-Title":      cfg.AppName,
		},
		Limiter: cfg.Limiter,
	})
}
