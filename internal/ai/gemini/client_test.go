package gemini

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/interviewpilot/internal/interview"
)

type fakeChatCreator struct {
	mu    sync.Mutex
	calls []chatCallRecord
	queue map[string][]fakeChatResponse
}

type chatCallRecord struct {
	model  string
	config *genai.GenerateContentConfig
	chat   *fakeChat
}

type fakeChatResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

type fakeChat struct {
	mu       sync.Mutex
	response fakeChatResponse
	messages []string
}

func (f *fakeChat) SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, part := range parts {
		f.messages = append(f.messages, part.Text)
	}
	return f.response.resp, f.response.err
}

func newFakeChatCreator() *fakeChatCreator {
	return &fakeChatCreator{queue: make(map[string][]fakeChatResponse)}
}

func (f *fakeChatCreator) enqueue(model string, resp *genai.GenerateContentResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue[model] = append(f.queue[model], fakeChatResponse{resp: resp, err: err})
}

func (f *fakeChatCreator) Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	responses := f.queue[model]
	if len(responses) == 0 {
		return nil, errors.New("unexpected call")
	}
	res := responses[0]
	f.queue[model] = responses[1:]
	chat := &fakeChat{response: res}
	f.calls = append(f.calls, chatCallRecord{model: model, config: config, chat: chat})
	return chat, nil
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func newTestGenerator(chats chatCreator) *Generator {
	return &Generator{
		chats:         chats,
		model:         "gemini-pro",
		maxQuotaDelay: 8 * time.Second,
		logger:        zap.NewNop(),
	}
}

func TestGeneratorSendsSystemInstruction(t *testing.T) {
	chats := newFakeChatCreator()
	chats.enqueue("gemini-pro", textResponse(`{"ok": true}`), nil)

	g := newTestGenerator(chats)
	output, err := g.GenerateContent(context.Background(), "system", "message")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if output != `{"ok": true}` {
		t.Fatalf("unexpected output: %q", output)
	}

	if len(chats.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(chats.calls))
	}
	call := chats.calls[0]
	if call.config == nil || call.config.SystemInstruction == nil {
		t.Fatalf("expected system instruction to be set")
	}
	if got := call.config.SystemInstruction.Parts[0].Text; got != "system" {
		t.Fatalf("unexpected system instruction: %q", got)
	}
	if call.config.ResponseMIMEType != "application/json" {
		t.Fatalf("expected json response type, got %q", call.config.ResponseMIMEType)
	}
	if len(call.chat.messages) != 1 || call.chat.messages[0] != "message" {
		t.Fatalf("unexpected chat message: %+v", call.chat.messages)
	}
}

func TestGeneratorDoesNotRetry(t *testing.T) {
	chats := newFakeChatCreator()
	chats.enqueue("gemini-pro", nil, genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"})
	chats.enqueue("gemini-pro", textResponse("unused"), nil)

	g := newTestGenerator(chats)
	_, err := g.GenerateContent(context.Background(), "sys", "msg")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, interview.ErrUpstreamRejected) {
		t.Fatalf("server errors must stay transient: %v", err)
	}
	if len(chats.calls) != 1 {
		t.Fatalf("expected single call, got %d", len(chats.calls))
	}
}

func TestGeneratorClassifiesErrors(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		rejected bool
	}{
		{name: "internal", err: genai.APIError{Code: http.StatusInternalServerError}, rejected: false},
		{name: "unavailable", err: genai.APIError{Code: http.StatusServiceUnavailable}, rejected: false},
		{name: "request timeout", err: genai.APIError{Code: http.StatusRequestTimeout}, rejected: false},
		{name: "bad request", err: genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"}, rejected: true},
		{name: "permission", err: genai.APIError{Code: http.StatusForbidden}, rejected: true},
		{name: "quota short", err: genai.APIError{Code: http.StatusTooManyRequests, Message: "Please retry in 2s"}, rejected: false},
		{name: "quota unknown delay", err: genai.APIError{Code: http.StatusTooManyRequests}, rejected: false},
		{
			name: "quota long message",
			err: genai.APIError{
				Code:    http.StatusTooManyRequests,
				Status:  "RESOURCE_EXHAUSTED",
				Message: "quota exhausted, retry after 60 seconds",
			},
			rejected: true,
		},
		{
			name: "quota long details",
			err: genai.APIError{
				Code:    http.StatusTooManyRequests,
				Details: []map[string]any{{"@type": "type.googleapis.com/google.rpc.RetryInfo", "retryDelay": "41s"}},
			},
			rejected: true,
		},
		{name: "network", err: errors.New("connection reset by peer"), rejected: false},
		{name: "deadline", err: context.DeadlineExceeded, rejected: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chats := newFakeChatCreator()
			chats.enqueue("gemini-pro", nil, tc.err)

			_, err := newTestGenerator(chats).GenerateContent(context.Background(), "sys", "msg")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, interview.ErrUpstreamRejected); got != tc.rejected {
				t.Fatalf("rejected = %v, want %v (err: %v)", got, tc.rejected, err)
			}
			if !errors.Is(err, tc.err) && !isAPIError(err) {
				t.Fatalf("original error lost: %v", err)
			}
		})
	}
}

func isAPIError(err error) bool {
	_, ok := asAPIError(err)
	return ok
}

func TestGeneratorEmptyResponse(t *testing.T) {
	chats := newFakeChatCreator()
	chats.enqueue("gemini-pro", &genai.GenerateContentResponse{}, nil)

	_, err := newTestGenerator(chats).GenerateContent(context.Background(), "sys", "msg")
	if err == nil {
		t.Fatal("expected error for empty response")
	}
	if errors.Is(err, interview.ErrUpstreamRejected) {
		t.Fatalf("empty response should be retried: %v", err)
	}
}

func TestGeneratorRejectsEmptyMessage(t *testing.T) {
	chats := newFakeChatCreator()
	_, err := newTestGenerator(chats).GenerateContent(context.Background(), "sys", "   ")
	if !errors.Is(err, interview.ErrUpstreamRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if len(chats.calls) != 0 {
		t.Fatalf("expected no calls")
	}
}

func TestRetryDelay(t *testing.T) {
	cases := []struct {
		message string
		want    time.Duration
		found   bool
	}{
		{message: "retry after 60 seconds", want: time.Minute, found: true},
		{message: "Please retry in 41.5s.", want: 41500 * time.Millisecond, found: true},
		{message: "retry in 250ms", want: 250 * time.Millisecond, found: true},
		{message: "quota exceeded", found: false},
	}
	for _, tc := range cases {
		got, found := retryDelay(genai.APIError{Message: tc.message})
		if found != tc.found || got != tc.want {
			t.Fatalf("retryDelay(%q) = %v, %v; want %v, %v", tc.message, got, found, tc.want, tc.found)
		}
	}
}
