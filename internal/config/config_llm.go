package config

// LLMConfig configures C12's provider selection and credentials.
type LLMConfig struct {
	// DefaultProvider names the provider used when a turn doesn't pin one.
	DefaultProvider string `yaml:"default_provider"`

	Anthropic  LLMProviderConfig `yaml:"anthropic"`
	OpenAI     LLMProviderConfig `yaml:"openai"`
	Google     LLMProviderConfig `yaml:"google"`
	Bedrock    LLMProviderConfig `yaml:"bedrock"`
	Azure      LLMProviderConfig `yaml:"azure"`
	Ollama     LLMProviderConfig `yaml:"ollama"`
	OpenRouter LLMProviderConfig `yaml:"openrouter"`
	Copilot    LLMProviderConfig `yaml:"copilot"`
}

// LLMProviderConfig holds one provider's credentials and connection details.
type LLMProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// Region/Profile are Bedrock-specific; ignored by other providers.
	Region  string `yaml:"region"`
	Profile string `yaml:"profile"`
}
