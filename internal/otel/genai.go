package otel

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for LLM calls, following the OTel gen_ai conventions.
var (
	GenAISystem       = attribute.Key("gen_ai.system")        // e.g. "openai", "anthropic"
	GenAIRequestModel = attribute.Key("gen_ai.request.model") // e.g. "gpt-4o"

	GenAIRequestMaxTokens = attribute.Key("gen_ai.request.max_tokens")

	GenAIUsageInputTokens  = attribute.Key("gen_ai.usage.input_tokens")
	GenAIUsageOutputTokens = attribute.Key("gen_ai.usage.output_tokens")

	GenAIResponseFinishReason = attribute.Key("gen_ai.response.finish_reason")
	GenAIResponseID           = attribute.Key("gen_ai.response.id")
)
