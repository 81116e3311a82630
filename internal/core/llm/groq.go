package llm

// Groq uses OpenAI-compatible API with custom base URL
func NewGroqProvider(apiKey string, cfg *ProviderConfig) *OpenAIProvider {
	return newCompatibleProvider("Groq", apiKey, "https://api.groq.com/openai/v1", cfg)
}
