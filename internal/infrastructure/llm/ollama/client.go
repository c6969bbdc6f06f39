package ollama

import (
	"net/http"
	"strings"
)

// DefaultTemperature keeps answers close to the retrieved platform text.
const DefaultTemperature = 0.3

type Client struct {
	baseURL     string
	chatModel   string
	embedModel  string
	temperature float64
	httpClient  *http.Client
}

type Options struct {
	ChatModel   string
	EmbedModel  string
	Temperature float64
	// HTTPClient defaults to a client without an overall timeout. Streaming
	// answers can run long, so deadlines come from the request context.
	HTTPClient *http.Client
}

func New(baseURL string, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = DefaultTemperature
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		chatModel:   opts.ChatModel,
		embedModel:  opts.EmbedModel,
		temperature: temperature,
		httpClient:  httpClient,
	}
}
