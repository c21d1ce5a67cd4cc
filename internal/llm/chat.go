package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// chatProvider implements Provider against any OpenAI-compatible chat
// completions endpoint (OpenAI, OpenRouter).
type chatProvider struct {
	name    string
	apiKey  string
	model   string
	baseURL string
	client  http.Client
}

// OpenAI-compatible request/response types.
type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	Temperature    float64       `json:"temperature"`
	Stream         bool          `json:"stream,omitempty"`
	ResponseFormat *responseFmt  `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFmt struct {
	Type string `json:"type"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			Reasoning string `json:"reasoning"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// streamChunk is one SSE data payload from a streaming completion.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			Reasoning string `json:"reasoning"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

func (p *chatProvider) Name() string {
	return p.name + "/" + p.model
}

func (p *chatProvider) buildRequest(prompt string, opts CompletionOpts, stream bool) chatRequest {
	model := p.model
	if opts.Model != "" {
		model = opts.Model
	}

	messages := make([]chatMessage, 0, 2)
	if opts.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: opts.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	req := chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
		Stream:      stream,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if strings.ToLower(opts.Format) == "json" {
		req.ResponseFormat = &responseFmt{Type: "json_object"}
	}
	return req
}

func (p *chatProvider) send(ctx context.Context, req chatRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	if p.name == "openrouter" {
		httpReq.Header.Set("HTTP-Referer", "https://github.com/hurttlocker/vitae")
		httpReq.Header.Set("X-Title", "Vitae")
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	return resp, nil
}

func (p *chatProvider) Complete(ctx context.Context, prompt string, opts CompletionOpts) (Response, error) {
	resp, err := p.send(ctx, p.buildRequest(prompt, opts, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s API error (status %d): %s", p.name, resp.StatusCode, string(respBody))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	if chatResp.Error != nil {
		return nil, fmt.Errorf("%s API error: %s", p.name, chatResp.Error.Message)
	}

	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from %s API", p.name)
	}

	msg := chatResp.Choices[0].Message
	content := strings.TrimSpace(msg.Content)
	if msg.Reasoning != "" {
		return ReasonedResponse{Content: content, Reasoning: strings.TrimSpace(msg.Reasoning)}, nil
	}
	return PlainResponse{Content: content}, nil
}

// Stream consumes a server-sent-event completion. Each "data: " line
// carries a JSON chunk whose deltas are appended in arrival order; the
// stream ends at the "[DONE]" sentinel. Lines that fail to parse are
// skipped rather than aborting the stream.
func (p *chatProvider) Stream(ctx context.Context, prompt string, opts CompletionOpts) (Response, error) {
	resp, err := p.send(ctx, p.buildRequest(prompt, opts, true))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s API error (status %d): %s", p.name, resp.StatusCode, string(respBody))
	}

	var content, reasoning strings.Builder

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue // malformed delta, keep going
		}
		if chunk.Error != nil {
			return nil, fmt.Errorf("%s API error: %s", p.name, chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		content.WriteString(delta.Content)
		reasoning.WriteString(delta.Reasoning)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading stream: %w", err)
	}

	text := strings.TrimSpace(content.String())
	if reasoning.Len() > 0 {
		return ReasonedResponse{Content: text, Reasoning: strings.TrimSpace(reasoning.String())}, nil
	}
	return PlainResponse{Content: text}, nil
}
