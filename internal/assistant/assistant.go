package assistant

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"assistant/internal/domain"
	"assistant/internal/knowledge"
)

const systemInstruction = "You are a helpful personal assistant. Answer using the provided context when it is relevant. If the context does not contain the answer, say so instead of guessing."

// Orchestrator answers chat messages, optionally grounding them in the
// knowledge base: retrieve relevant chunks, fold them into the prompt under a
// token budget, and hand the result to the language model.
type Orchestrator struct {
	knowledge   *knowledge.Manager
	llm         domain.TextCompletionService
	counter     TokenCounter
	budget      int
	maxTokens   int
	temperature float32
	log         *zap.Logger
}

// Options configures an Orchestrator.
type Options struct {
	// ContextBudget caps the total prompt size in tokens. The system
	// instruction and the user message always fit; retrieved chunks are
	// dropped lowest-scoring first until the rest does too.
	ContextBudget int
	MaxTokens     int
	Temperature   float32
	Counter       TokenCounter
}

// Request is one chat turn. Pointer fields distinguish an explicit zero from
// an absent value; nil or zero-valued fields fall back to the configured
// defaults.
type Request struct {
	Message          string
	UseKnowledgeBase bool
	TopK             int
	Threshold        *float64
	MaxTokens        int
	Temperature      *float32
}

// Answer is the model's reply plus the provenance of the context it saw.
// Sources lists each retained chunk's source once, in rank order.
type Answer struct {
	Response string
	Sources  []string
	Model    string
}

// New wires an orchestrator. The knowledge manager may be nil when no
// knowledge base is configured; grounded requests then degrade to plain chat.
func New(km *knowledge.Manager, llm domain.TextCompletionService, opts Options, log *zap.Logger) (*Orchestrator, error) {
	if llm == nil {
		return nil, domain.E(domain.KindInvalidConfiguration, "completion service is missing")
	}
	if opts.ContextBudget <= 0 {
		opts.ContextBudget = 4096
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2048
	}
	if opts.Counter == nil {
		counter, err := NewTiktokenCounter()
		if err != nil {
			return nil, err
		}
		opts.Counter = counter
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		knowledge:   km,
		llm:         llm,
		counter:     opts.Counter,
		budget:      opts.ContextBudget,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		log:         log,
	}, nil
}

// Chat answers one message. With UseKnowledgeBase set, the knowledge base is
// searched first and the passing chunks are added to the prompt; without it,
// or when nothing passes the threshold, the model sees the message alone.
func (o *Orchestrator) Chat(ctx context.Context, req Request) (Answer, error) {
	if strings.TrimSpace(req.Message) == "" {
		return Answer{}, domain.E(domain.KindInvalidInput, "message is empty")
	}

	var results []domain.SearchResult
	if req.UseKnowledgeBase && o.knowledge != nil {
		params := o.knowledge.Defaults()
		if req.TopK > 0 {
			params.TopK = req.TopK
		}
		if req.Threshold != nil {
			params.Threshold = *req.Threshold
		}
		var err error
		results, err = o.knowledge.Search(ctx, req.Message, params)
		if err != nil {
			return Answer{}, err
		}
	}

	retained := o.fitToBudget(req.Message, results)
	prompt := buildPrompt(req.Message, retained)

	maxTokens := o.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	temperature := o.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	response, err := o.llm.Complete(ctx, domain.CompletionRequest{
		System:      systemInstruction,
		Prompt:      prompt,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return Answer{}, err
	}

	o.log.Info("chat answered",
		zap.Int("chunks_retrieved", len(results)),
		zap.Int("chunks_used", len(retained)),
		zap.String("model", o.llm.Model()))
	return Answer{
		Response: response,
		Sources:  sourcesOf(retained),
		Model:    o.llm.Model(),
	}, nil
}

// fitToBudget drops the lowest-scoring chunks until the assembled prompt fits
// the token budget. The system instruction and the user message are never
// truncated; in the worst case every chunk is dropped and the model sees the
// message alone.
func (o *Orchestrator) fitToBudget(message string, results []domain.SearchResult) []domain.SearchResult {
	fixed := o.counter(systemInstruction) + o.counter(message)
	retained := results
	for len(retained) > 0 {
		total := fixed
		for _, r := range retained {
			total += o.counter(contextBlock(r.Chunk))
		}
		if total <= o.budget {
			break
		}
		// results arrive in descending score order, so the last one is
		// always the cheapest to lose
		dropped := retained[len(retained)-1]
		retained = retained[:len(retained)-1]
		o.log.Debug("chunk dropped for token budget",
			zap.String("chunk_id", dropped.Chunk.ID),
			zap.Float64("score", dropped.Score))
	}
	return retained
}

func buildPrompt(message string, retained []domain.SearchResult) string {
	if len(retained) == 0 {
		return message
	}
	var b strings.Builder
	b.WriteString("Context:\n\n")
	for _, r := range retained {
		b.WriteString(contextBlock(r.Chunk))
		b.WriteString("\n\n")
	}
	b.WriteString("Question: ")
	b.WriteString(message)
	return b.String()
}

func contextBlock(ch domain.Chunk) string {
	return fmt.Sprintf("[Source: %s]\n%s", ch.Source, ch.Text)
}

func sourcesOf(retained []domain.SearchResult) []string {
	if len(retained) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(retained))
	sources := make([]string, 0, len(retained))
	for _, r := range retained {
		if _, ok := seen[r.Chunk.Source]; ok {
			continue
		}
		seen[r.Chunk.Source] = struct{}{}
		sources = append(sources, r.Chunk.Source)
	}
	return sources
}
