package openai

import (
	"sync"

	"github.com/loreweave/backend/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

const defaultTimeoutMin = 5

// GraphOpenAIClient implements ai.GraphAIClient against any
// OpenAI-compatible API. It keeps separate clients for embeddings and
// chat so the two can point at different providers.
//
// A GraphOpenAIClient should be created using NewGraphOpenAIClient.
type GraphOpenAIClient struct {
	embeddingModel string
	summaryModel   string

	embeddingURL string
	embeddingKey string
	chatURL      string
	chatKey      string

	timeoutMin    int64
	embeddingLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// NewGraphOpenAIClientParams defines the configuration for creating a new
// GraphOpenAIClient.
//
// EmbeddingModel specifies the model used for embeddings, SummaryModel the
// model used for community summaries. EmbeddingURL/EmbeddingKey and
// ChatURL/ChatKey configure the two API endpoints independently.
type NewGraphOpenAIClientParams struct {
	EmbeddingModel string
	SummaryModel   string

	EmbeddingURL string
	EmbeddingKey string
	ChatURL      string
	ChatKey      string

	TimeoutMinutes        int64
	MaxConcurrentRequests int64
}

// NewGraphOpenAIClient creates a client configured with the provided
// parameters.
//
// Example:
//
//	params := openai.NewGraphOpenAIClientParams{
//		EmbeddingModel: "text-embedding-3-small",
//		SummaryModel:   "gpt-4o-mini",
//		EmbeddingKey:   os.Getenv("OPENAI_API_KEY"),
//		ChatKey:        os.Getenv("OPENAI_API_KEY"),
//	}
//	client := openai.NewGraphOpenAIClient(params)
func NewGraphOpenAIClient(
	params NewGraphOpenAIClientParams,
) *GraphOpenAIClient {
	timeout := params.TimeoutMinutes
	if timeout <= 0 {
		timeout = defaultTimeoutMin
	}
	concurrent := params.MaxConcurrentRequests
	if concurrent <= 0 {
		concurrent = 4
	}

	return &GraphOpenAIClient{
		embeddingModel: params.EmbeddingModel,
		summaryModel:   params.SummaryModel,

		chatURL:      params.ChatURL,
		chatKey:      params.ChatKey,
		embeddingURL: params.EmbeddingURL,
		embeddingKey: params.EmbeddingKey,

		timeoutMin:    timeout,
		embeddingLock: semaphore.NewWeighted(concurrent),

		ChatClient:      newOpenaiClient(params.ChatURL, params.ChatKey),
		EmbeddingClient: newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey),
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}
