package llm

// DeepSeek uses OpenAI-compatible API with custom base URL
func NewDeepSeekProvider(apiKey string, cfg *ProviderConfig) *OpenAIProvider {
	return newCompatibleProvider("DeepSeek", apiKey, "https://api.deepseek.com", cfg)
}
