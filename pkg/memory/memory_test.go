package memory_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/aiga-lab/mnemosyne/pkg/domain/model"
	"github.com/aiga-lab/mnemosyne/pkg/domain/types"
	"github.com/aiga-lab/mnemosyne/pkg/memory"
	repomem "github.com/aiga-lab/mnemosyne/pkg/repository/memory"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"
)

// mockLLMSession is a mock gollem Session for testing
type mockLLMSession struct {
	generateContentFn func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error)
}

func (s *mockLLMSession) GenerateContent(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
	if s.generateContentFn != nil {
		return s.generateContentFn(ctx, input...)
	}
	return &gollem.Response{Texts: []string{"test response"}}, nil
}

func (s *mockLLMSession) GenerateStream(ctx context.Context, input ...gollem.Input) (<-chan *gollem.Response, error) {
	return nil, nil
}

func (s *mockLLMSession) Generate(ctx context.Context, input []gollem.Input, _ ...gollem.GenerateOption) (*gollem.Response, error) {
	return s.GenerateContent(ctx, input...)
}

func (s *mockLLMSession) Stream(ctx context.Context, input []gollem.Input, _ ...gollem.GenerateOption) (<-chan *gollem.Response, error) {
	return s.GenerateStream(ctx, input...)
}

func (s *mockLLMSession) History() (*gollem.History, error) {
	return nil, nil
}

func (s *mockLLMSession) AppendHistory(*gollem.History) error {
	return nil
}

func (s *mockLLMSession) CountToken(ctx context.Context, input ...gollem.Input) (int, error) {
	return 0, nil
}

// mockLLMClient is a mock gollem LLMClient for testing
type mockLLMClient struct {
	newSessionFn        func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error)
	generateEmbeddingFn func(ctx context.Context, dimension int, input []string) ([][]float64, error)
}

func (c *mockLLMClient) NewSession(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	if c.newSessionFn != nil {
		return c.newSessionFn(ctx, options...)
	}
	return &mockLLMSession{}, nil
}

func (c *mockLLMClient) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	if c.generateEmbeddingFn != nil {
		return c.generateEmbeddingFn(ctx, dimension, input)
	}
	result := make([][]float64, len(input))
	for i := range input {
		vec := make([]float64, dimension)
		vec[0] = 1
		result[i] = vec
	}
	return result, nil
}

// fixedEmbedder returns a constant vector for every input
type fixedEmbedder struct {
	vec []float32
}

func (e *fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out := make([]float32, len(e.vec))
	copy(out, e.vec)
	return out, nil
}

func axisEmbedding(axis int) []float32 {
	vec := make([]float32, model.EmbeddingDimension)
	vec[axis] = 1
	return vec
}

func TestEmbedder(t *testing.T) {
	t.Run("converts float64 vectors to float32", func(t *testing.T) {
		llm := &mockLLMClient{
			generateEmbeddingFn: func(ctx context.Context, dimension int, input []string) ([][]float64, error) {
				gt.Value(t, dimension).Equal(model.EmbeddingDimension)
				gt.Array(t, input).Length(1)
				vec := make([]float64, dimension)
				vec[0] = 0.25
				return [][]float64{vec}, nil
			},
		}

		emb, err := memory.NewEmbedder(llm).Embed(context.Background(), "hello")
		gt.NoError(t, err).Required()
		gt.Array(t, emb).Length(model.EmbeddingDimension)
		gt.Value(t, emb[0]).Equal(float32(0.25))
	})

	t.Run("rejects wrong dimension from provider", func(t *testing.T) {
		llm := &mockLLMClient{
			generateEmbeddingFn: func(ctx context.Context, dimension int, input []string) ([][]float64, error) {
				return [][]float64{make([]float64, 16)}, nil
			},
		}

		_, err := memory.NewEmbedder(llm).Embed(context.Background(), "hello")
		gt.Value(t, err).NotNil()
		gt.Bool(t, errors.Is(err, memory.ErrDimensionMismatch)).True()
	})
}

func TestSearch(t *testing.T) {
	newSearchEnv := func(t *testing.T) (*repomem.Memory, context.Context) {
		t.Helper()
		return repomem.New(), context.Background()
	}

	t.Run("filters strictly above threshold", func(t *testing.T) {
		repo, ctx := newSearchEnv(t)
		userID := types.UserID("u1")

		// identical direction: similarity 1.0
		_, err := repo.UserMemory().Put(ctx, &model.UserMemory{
			UserID:     userID,
			Kind:       types.MemoryKindFact,
			Content:    "exact",
			Importance: 0.5,
			Embedding:  axisEmbedding(0),
		})
		gt.NoError(t, err).Required()

		// ones at four axes vs axis 0: cosine exactly 0.5
		halfway := make([]float32, model.EmbeddingDimension)
		for i := 0; i < 4; i++ {
			halfway[i] = 1
		}
		_, err = repo.UserMemory().Put(ctx, &model.UserMemory{
			UserID:     userID,
			Kind:       types.MemoryKindFact,
			Content:    "at threshold",
			Importance: 0.5,
			Embedding:  halfway,
		})
		gt.NoError(t, err).Required()

		// orthogonal: similarity 0
		_, err = repo.UserMemory().Put(ctx, &model.UserMemory{
			UserID:     userID,
			Kind:       types.MemoryKindFact,
			Content:    "orthogonal",
			Importance: 0.5,
			Embedding:  axisEmbedding(9),
		})
		gt.NoError(t, err).Required()

		search := memory.NewSearch(repo, memory.WithUserMemoryThreshold(0.5))
		results, err := search.UserMemories(ctx, userID, nil, axisEmbedding(0), 10)
		gt.NoError(t, err).Required()

		// similarity exactly at the threshold must be excluded
		gt.Array(t, results).Length(1)
		gt.Value(t, results[0].Memory.Content).Equal("exact")
	})

	t.Run("empty result is not an error", func(t *testing.T) {
		repo, ctx := newSearchEnv(t)
		search := memory.NewSearch(repo)

		results, err := search.UserMemories(ctx, "nobody", nil, axisEmbedding(0), 10)
		gt.NoError(t, err).Required()
		gt.Array(t, results).Length(0)
	})

	t.Run("rejects dimension mismatch", func(t *testing.T) {
		repo, ctx := newSearchEnv(t)
		search := memory.NewSearch(repo)

		_, err := search.UserMemories(ctx, "u1", nil, []float32{0.1, 0.2}, 10)
		gt.Value(t, err).NotNil()
		gt.Bool(t, errors.Is(err, memory.ErrDimensionMismatch)).True()

		_, err = search.ConversationMemories(ctx, "u1", "c1", []float32{0.1}, 10)
		gt.Bool(t, errors.Is(err, memory.ErrDimensionMismatch)).True()

		_, err = search.Summaries(ctx, "u1", make([]float32, model.EmbeddingDimension+1), 10)
		gt.Bool(t, errors.Is(err, memory.ErrDimensionMismatch)).True()
	})

	t.Run("summaries use looser threshold", func(t *testing.T) {
		repo, ctx := newSearchEnv(t)
		userID := types.UserID("u1")

		// cosine vs axis 0 is 1/sqrt(2) ~ 0.707: above 0.6, below 0.71
		diagonal := make([]float32, model.EmbeddingDimension)
		diagonal[0] = 1
		diagonal[1] = 1

		_, err := repo.Summary().Upsert(ctx, &model.ConversationSummary{
			UserID:         userID,
			ConversationID: "past-conv",
			Summary:        "Planning a hiking trip",
			MessageCount:   4,
			Embedding:      diagonal,
		})
		gt.NoError(t, err).Required()

		search := memory.NewSearch(repo)
		results, err := search.Summaries(ctx, userID, axisEmbedding(0), 10)
		gt.NoError(t, err).Required()
		gt.Array(t, results).Length(1)

		strict := memory.NewSearch(repo, memory.WithSummaryThreshold(0.71))
		results, err = strict.Summaries(ctx, userID, axisEmbedding(0), 10)
		gt.NoError(t, err).Required()
		gt.Array(t, results).Length(0)
	})
}

func TestAssembler(t *testing.T) {
	seedConversation := func(t *testing.T, repo *repomem.Memory, userID types.UserID, convID types.ConversationID, contents ...string) {
		t.Helper()
		ctx := context.Background()
		for i, content := range contents {
			_, err := repo.ConversationMemory().Put(ctx, &model.ConversationMemory{
				UserID:         userID,
				ConversationID: convID,
				Content:        content,
				Role:           types.RoleUser,
				TurnNumber:     i + 1,
				Embedding:      axisEmbedding(0),
			})
			gt.NoError(t, err).Required()
		}
	}

	t.Run("orders tiers by precedence", func(t *testing.T) {
		repo := repomem.New()
		ctx := context.Background()
		userID := types.UserID("u1")
		convID := types.ConversationID("c1")

		seedConversation(t, repo, userID, convID, "we were discussing the trip dates")

		_, err := repo.UserMemory().Put(ctx, &model.UserMemory{
			UserID:     userID,
			Kind:       types.MemoryKindPreference,
			Content:    "prefers window seats",
			Importance: 0.5,
			Embedding:  axisEmbedding(0),
		})
		gt.NoError(t, err).Required()

		_, err = repo.Summary().Upsert(ctx, &model.ConversationSummary{
			UserID:         userID,
			ConversationID: "other-conv",
			Title:          "Flights",
			Summary:        "Compared airlines for a summer trip",
			MessageCount:   6,
			Embedding:      axisEmbedding(0),
		})
		gt.NoError(t, err).Required()

		assembler := memory.NewAssembler(
			memory.NewSearch(repo),
			&fixedEmbedder{vec: axisEmbedding(0)},
			memory.DefaultBudgets(),
		)

		assembled, err := assembler.Assemble(ctx, userID, convID, "when is the trip?")
		gt.NoError(t, err).Required()

		text := assembled.Text
		convPos := strings.Index(text, "trip dates")
		userPos := strings.Index(text, "window seats")
		sumPos := strings.Index(text, "Compared airlines")
		gt.Bool(t, convPos >= 0).True()
		gt.Bool(t, userPos > convPos).True()
		gt.Bool(t, sumPos > userPos).True()
		gt.Array(t, assembled.UserMemoryIDs).Length(1)
	})

	t.Run("drops summaries before conversation content", func(t *testing.T) {
		repo := repomem.New()
		ctx := context.Background()
		userID := types.UserID("u1")
		convID := types.ConversationID("c1")

		seedConversation(t, repo, userID, convID, "the deploy failed with a timeout on the second step")

		_, err := repo.Summary().Upsert(ctx, &model.ConversationSummary{
			UserID:         userID,
			ConversationID: "other-conv",
			Summary:        "A long unrelated discussion about database migrations and rollout strategy",
			MessageCount:   4,
			Embedding:      axisEmbedding(0),
		})
		gt.NoError(t, err).Required()

		budgets := memory.Budgets{
			Conversation: 200,
			UserMemory:   200,
			Summary:      200,
			Total:        120,
		}
		assembler := memory.NewAssembler(
			memory.NewSearch(repo),
			&fixedEmbedder{vec: axisEmbedding(0)},
			budgets,
		)

		assembled, err := assembler.Assemble(ctx, userID, convID, "what failed?")
		gt.NoError(t, err).Required()

		gt.Bool(t, len(assembled.Text) <= budgets.Total).True()
		gt.Bool(t, strings.Contains(assembled.Text, "deploy failed")).True()
		gt.Bool(t, strings.Contains(assembled.Text, "database migrations")).False()
	})

	t.Run("hard-truncates a single oversized conversation item", func(t *testing.T) {
		repo := repomem.New()
		ctx := context.Background()
		userID := types.UserID("u1")
		convID := types.ConversationID("c1")

		long := strings.Repeat("the error log says connection refused ", 20)
		seedConversation(t, repo, userID, convID, long)

		budgets := memory.Budgets{
			Conversation: 5000,
			UserMemory:   100,
			Summary:      100,
			Total:        200,
		}
		assembler := memory.NewAssembler(
			memory.NewSearch(repo),
			&fixedEmbedder{vec: axisEmbedding(0)},
			budgets,
		)

		assembled, err := assembler.Assemble(ctx, userID, convID, "what does the log say?")
		gt.NoError(t, err).Required()

		gt.Bool(t, len(assembled.Text) <= budgets.Total).True()
		gt.Bool(t, strings.Contains(assembled.Text, "...[truncated]")).True()
		gt.Bool(t, strings.Contains(assembled.Text, "connection refused")).True()
	})

	t.Run("access bookkeeping fires only for surfaced memories", func(t *testing.T) {
		repo := repomem.New()
		ctx := context.Background()
		userID := types.UserID("u1")

		surfaced, err := repo.UserMemory().Put(ctx, &model.UserMemory{
			UserID:     userID,
			Kind:       types.MemoryKindFact,
			Content:    "works at a bakery",
			Importance: 0.5,
			Embedding:  axisEmbedding(0),
		})
		gt.NoError(t, err).Required()

		buried, err := repo.UserMemory().Put(ctx, &model.UserMemory{
			UserID:     userID,
			Kind:       types.MemoryKindFact,
			Content:    "dislikes phone calls",
			Importance: 0.5,
			Embedding:  axisEmbedding(7),
		})
		gt.NoError(t, err).Required()

		assembler := memory.NewAssembler(
			memory.NewSearch(repo),
			&fixedEmbedder{vec: axisEmbedding(0)},
			memory.DefaultBudgets(),
		)

		assembled, err := assembler.Assemble(ctx, userID, "c1", "where do they work?")
		gt.NoError(t, err).Required()
		gt.Array(t, assembled.UserMemoryIDs).Length(1)
		gt.Value(t, assembled.UserMemoryIDs[0]).Equal(surfaced.ID)

		assembler.RecordSurfacedAccess(ctx, userID, assembled)

		accessed, err := repo.UserMemory().Get(ctx, userID, surfaced.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, accessed.AccessCount).Equal(1)

		untouched, err := repo.UserMemory().Get(ctx, userID, buried.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, untouched.AccessCount).Equal(0)
	})
}

func TestRecorder(t *testing.T) {
	t.Run("records both roles with next turn number", func(t *testing.T) {
		repo := repomem.New()
		ctx := context.Background()
		userID := types.UserID("u1")
		convID := types.ConversationID("c1")

		recorder := memory.NewRecorder(repo, &fixedEmbedder{vec: axisEmbedding(0)}, &mockLLMClient{})

		turn, err := recorder.Record(ctx, userID, convID, "hello there", "hi, how can I help?")
		gt.NoError(t, err).Required()
		gt.Value(t, turn).Equal(1)

		turn, err = recorder.Record(ctx, userID, convID, "what's the weather?", "sunny all day")
		gt.NoError(t, err).Required()
		gt.Value(t, turn).Equal(2)

		rows, err := repo.ConversationMemory().ListRecent(ctx, userID, convID, 10)
		gt.NoError(t, err).Required()
		gt.Array(t, rows).Length(4)
		gt.Value(t, rows[0].TurnNumber).Equal(2)

		stats, err := repo.ConversationMemory().Stats(ctx, userID, convID)
		gt.NoError(t, err).Required()
		gt.Value(t, stats.UserMessages).Equal(2)
		gt.Value(t, stats.AssistantMessages).Equal(2)
	})

	t.Run("extracts durable facts from user messages", func(t *testing.T) {
		repo := repomem.New()
		ctx := context.Background()
		userID := types.UserID("u1")

		recorder := memory.NewRecorder(repo, &fixedEmbedder{vec: axisEmbedding(0)}, &mockLLMClient{})

		_, err := recorder.Record(ctx, userID, "c1", "My name is Aiko. I live in Kyoto.", "nice to meet you")
		gt.NoError(t, err).Required()

		memories, err := repo.UserMemory().List(ctx, userID)
		gt.NoError(t, err).Required()
		gt.Bool(t, len(memories) >= 2).True()

		var found bool
		for _, m := range memories {
			gt.Value(t, m.Importance).Equal(0.8)
			if strings.Contains(m.Content, "my name is aiko") {
				found = true
			}
		}
		gt.Bool(t, found).True()
	})

	t.Run("refreshes summary every interval turns", func(t *testing.T) {
		repo := repomem.New()
		ctx := context.Background()
		userID := types.UserID("u1")
		convID := types.ConversationID("c1")

		var summaryRequests int
		llm := &mockLLMClient{
			newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
				return &mockLLMSession{
					generateContentFn: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
						summaryRequests++
						return &gollem.Response{
							Texts: []string{`{"title":"Trip planning","summary":"Discussed a plan.","key_topics":["travel"]}`},
						}, nil
					},
				}, nil
			},
		}

		recorder := memory.NewRecorder(repo, &fixedEmbedder{vec: axisEmbedding(0)}, llm,
			memory.WithSummaryInterval(2))

		for i := 0; i < 4; i++ {
			_, err := recorder.Record(ctx, userID, convID,
				fmt.Sprintf("question %d", i+1), fmt.Sprintf("answer %d", i+1))
			gt.NoError(t, err).Required()
		}

		gt.Value(t, summaryRequests).Equal(2)

		summary, err := repo.Summary().Get(ctx, userID, convID)
		gt.NoError(t, err).Required()
		gt.Value(t, summary.Title).Equal("Trip planning")
		gt.Array(t, summary.KeyTopics).Length(1)
		gt.Value(t, summary.MessageCount).Equal(8)
	})
}
