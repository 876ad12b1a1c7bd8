package ollama

import (
	"net/http"
	"net/url"
	"sync"

	"github.com/loreweave/backend/pkg/ai"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"
)

const defaultTimeoutMin = 10

// GraphOllamaClient implements ai.GraphAIClient against a locally-hosted
// Ollama instance.
type GraphOllamaClient struct {
	embeddingModel string
	summaryModel   string

	reqLock    *semaphore.Weighted
	timeoutMin int64

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client

	Client *api.Client
}

// NewGraphOllamaClientParams contains configuration options for creating a
// new GraphOllamaClient.
type NewGraphOllamaClientParams struct {
	EmbeddingModel string
	SummaryModel   string

	BaseURL string
	ApiKey  string

	TimeoutMinutes        int64
	MaxConcurrentRequests int64
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone so original request isn't modified
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		// don't overwrite if already set
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewGraphOllamaClient creates a new Ollama-based AI client. It connects
// to the Ollama server at the given BaseURL (or the default if empty) and
// uses the configured models for summaries and embeddings.
func NewGraphOllamaClient(
	params NewGraphOllamaClientParams,
) (*GraphOllamaClient, error) {
	var (
		u   *url.URL
		err error
	)

	if params.BaseURL != "" {
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	httpClient := &http.Client{
		Transport: &headerTransport{
			headers: map[string]string{
				"Authorization": "Bearer " + params.ApiKey,
			},
			rt: http.DefaultTransport,
		},
	}

	timeout := params.TimeoutMinutes
	if timeout <= 0 {
		timeout = defaultTimeoutMin
	}
	concurrent := params.MaxConcurrentRequests
	if concurrent <= 0 {
		concurrent = 1
	}

	return &GraphOllamaClient{
		embeddingModel: params.EmbeddingModel,
		summaryModel:   params.SummaryModel,

		reqLock:    semaphore.NewWeighted(concurrent),
		timeoutMin: timeout,

		baseURL:    u,
		apiKey:     params.ApiKey,
		httpClient: httpClient,

		Client: api.NewClient(u, httpClient),
	}, nil
}
