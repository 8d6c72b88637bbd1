package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aiga-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/aiga-lab/mnemosyne/pkg/domain/model"
	"github.com/aiga-lab/mnemosyne/pkg/domain/types"
	"github.com/aiga-lab/mnemosyne/pkg/repository/chromem"
	"github.com/aiga-lab/mnemosyne/pkg/repository/firestore"
	"github.com/aiga-lab/mnemosyne/pkg/repository/memory"
	"github.com/m-mizutani/gt"
)

func isNotFound(err error) bool {
	return errors.Is(err, memory.ErrNotFound) ||
		errors.Is(err, firestore.ErrNotFound) ||
		errors.Is(err, chromem.ErrNotFound)
}

// directionalEmbedding builds a unit-ish vector pointing mostly along axis
func directionalEmbedding(axis int, spread float32) []float32 {
	emb := make([]float32, model.EmbeddingDimension)
	emb[axis] = 1 - spread
	emb[(axis+1)%model.EmbeddingDimension] = spread
	return emb
}

func runRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	newUserID := func() types.UserID {
		return types.UserID(fmt.Sprintf("user-%d", time.Now().UnixNano()))
	}

	t.Run("UserMemory Put assigns ID and timestamps", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		userID := newUserID()

		created, err := repo.UserMemory().Put(ctx, &model.UserMemory{
			UserID:     userID,
			Kind:       types.MemoryKindPreference,
			Content:    "Prefers answers in Japanese",
			Importance: 0.8,
			Embedding:  directionalEmbedding(0, 0.1),
		})
		gt.NoError(t, err).Required()

		gt.String(t, string(created.ID)).NotEqual("")
		gt.Value(t, created.Kind).Equal(types.MemoryKindPreference)
		gt.Value(t, created.Importance).Equal(0.8)
		gt.Bool(t, created.CreatedAt.IsZero()).False()
	})

	t.Run("UserMemory Put defaults importance when unset", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		userID := newUserID()

		created, err := repo.UserMemory().Put(ctx, &model.UserMemory{
			UserID:    userID,
			Kind:      types.MemoryKindFact,
			Content:   "Allergic to peanuts",
			Embedding: directionalEmbedding(0, 0.1),
		})
		gt.NoError(t, err).Required()
		gt.Value(t, created.Importance).Equal(model.DefaultImportance)

		retrieved, err := repo.UserMemory().Get(ctx, userID, created.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, retrieved.Importance).Equal(model.DefaultImportance)
	})

	t.Run("UserMemory Put rejects invalid record", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.UserMemory().Put(ctx, &model.UserMemory{
			UserID: newUserID(),
			Kind:   types.MemoryKind("bogus"),
		})
		gt.Value(t, err).NotNil()
	})

	t.Run("UserMemory Get retrieves stored record", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		userID := newUserID()

		created, err := repo.UserMemory().Put(ctx, &model.UserMemory{
			UserID:     userID,
			Kind:       types.MemoryKindFact,
			Content:    "Works at a research lab in Osaka",
			Importance: 0.8,
			Embedding:  directionalEmbedding(1, 0.1),
		})
		gt.NoError(t, err).Required()

		retrieved, err := repo.UserMemory().Get(ctx, userID, created.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, retrieved.ID).Equal(created.ID)
		gt.Value(t, retrieved.Content).Equal("Works at a research lab in Osaka")
		gt.Array(t, retrieved.Embedding).Length(model.EmbeddingDimension)
	})

	t.Run("UserMemory Get returns error for unknown ID", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.UserMemory().Get(ctx, newUserID(), "non-existent-id")
		gt.Value(t, err).NotNil()
		gt.Bool(t, isNotFound(err)).True()
	})

	t.Run("UserMemory List returns newest first", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		userID := newUserID()

		m1, err := repo.UserMemory().Put(ctx, &model.UserMemory{
			UserID:     userID,
			Kind:       types.MemoryKindFact,
			Content:    "First fact",
			Importance: 0.5,
			Embedding:  directionalEmbedding(0, 0.1),
		})
		gt.NoError(t, err).Required()

		time.Sleep(10 * time.Millisecond)

		m2, err := repo.UserMemory().Put(ctx, &model.UserMemory{
			UserID:     userID,
			Kind:       types.MemoryKindFact,
			Content:    "Second fact",
			Importance: 0.5,
			Embedding:  directionalEmbedding(1, 0.1),
		})
		gt.NoError(t, err).Required()

		memories, err := repo.UserMemory().List(ctx, userID)
		gt.NoError(t, err).Required()
		gt.Array(t, memories).Length(2)
		gt.Value(t, memories[0].ID).Equal(m2.ID)
		gt.Value(t, memories[1].ID).Equal(m1.ID)
	})

	t.Run("UserMemory FindByEmbedding ranks by similarity", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		userID := newUserID()

		_, err := repo.UserMemory().Put(ctx, &model.UserMemory{
			UserID:     userID,
			Kind:       types.MemoryKindFact,
			Content:    "Close match",
			Importance: 0.5,
			Embedding:  directionalEmbedding(0, 0.1),
		})
		gt.NoError(t, err).Required()

		_, err = repo.UserMemory().Put(ctx, &model.UserMemory{
			UserID:     userID,
			Kind:       types.MemoryKindFact,
			Content:    "Far match",
			Importance: 0.5,
			Embedding:  directionalEmbedding(5, 0.1),
		})
		gt.NoError(t, err).Required()

		_, err = repo.UserMemory().Put(ctx, &model.UserMemory{
			UserID:     userID,
			Kind:       types.MemoryKindFact,
			Content:    "Exact match",
			Importance: 0.5,
			Embedding:  directionalEmbedding(0, 0),
		})
		gt.NoError(t, err).Required()

		results, err := repo.UserMemory().FindByEmbedding(ctx, userID, nil, directionalEmbedding(0, 0), 2)
		gt.NoError(t, err).Required()
		gt.Array(t, results).Length(2)
		gt.Value(t, results[0].Memory.Content).Equal("Exact match")
		gt.Value(t, results[1].Memory.Content).Equal("Close match")
		gt.Bool(t, results[0].Similarity >= results[1].Similarity).True()
	})

	t.Run("UserMemory FindByEmbedding filters by kind", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		userID := newUserID()

		_, err := repo.UserMemory().Put(ctx, &model.UserMemory{
			UserID:     userID,
			Kind:       types.MemoryKindPreference,
			Content:    "Likes terse output",
			Importance: 0.5,
			Embedding:  directionalEmbedding(0, 0.1),
		})
		gt.NoError(t, err).Required()

		_, err = repo.UserMemory().Put(ctx, &model.UserMemory{
			UserID:     userID,
			Kind:       types.MemoryKindFact,
			Content:    "Lives in Tokyo",
			Importance: 0.5,
			Embedding:  directionalEmbedding(0, 0.05),
		})
		gt.NoError(t, err).Required()

		results, err := repo.UserMemory().FindByEmbedding(ctx, userID,
			[]types.MemoryKind{types.MemoryKindPreference}, directionalEmbedding(0, 0), 10)
		gt.NoError(t, err).Required()
		gt.Array(t, results).Length(1)
		gt.Value(t, results[0].Memory.Kind).Equal(types.MemoryKindPreference)
	})

	t.Run("UserMemory RecordAccess bumps counters and caps importance", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		userID := newUserID()

		created, err := repo.UserMemory().Put(ctx, &model.UserMemory{
			UserID:     userID,
			Kind:       types.MemoryKindFact,
			Content:    "Has a golden retriever",
			Importance: 0.95,
			Embedding:  directionalEmbedding(2, 0.1),
		})
		gt.NoError(t, err).Required()

		gt.NoError(t, repo.UserMemory().RecordAccess(ctx, userID, created.ID)).Required()
		gt.NoError(t, repo.UserMemory().RecordAccess(ctx, userID, created.ID)).Required()

		updated, err := repo.UserMemory().Get(ctx, userID, created.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, updated.AccessCount).Equal(2)
		gt.Value(t, updated.Importance).Equal(model.MaxImportance)
	})

	t.Run("UserMemory RecordAccess fails for unknown ID", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		err := repo.UserMemory().RecordAccess(ctx, newUserID(), "non-existent-id")
		gt.Value(t, err).NotNil()
		gt.Bool(t, isNotFound(err)).True()
	})

	t.Run("ConversationMemory Put and ListRecent", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		userID := newUserID()
		convID := types.ConversationID("conv-1")

		for i := 1; i <= 3; i++ {
			_, err := repo.ConversationMemory().Put(ctx, &model.ConversationMemory{
				UserID:         userID,
				ConversationID: convID,
				Content:        fmt.Sprintf("turn %d", i),
				Role:           types.RoleUser,
				TurnNumber:     i,
				Embedding:      directionalEmbedding(i, 0.1),
			})
			gt.NoError(t, err).Required()
		}

		rows, err := repo.ConversationMemory().ListRecent(ctx, userID, convID, 2)
		gt.NoError(t, err).Required()
		gt.Array(t, rows).Length(2)
		gt.Value(t, rows[0].TurnNumber).Equal(3)
		gt.Value(t, rows[1].TurnNumber).Equal(2)
	})

	t.Run("ConversationMemory FindByEmbedding scopes to conversation", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		userID := newUserID()

		_, err := repo.ConversationMemory().Put(ctx, &model.ConversationMemory{
			UserID:         userID,
			ConversationID: "conv-a",
			Content:        "talking about kubernetes",
			Role:           types.RoleUser,
			TurnNumber:     1,
			Embedding:      directionalEmbedding(0, 0.1),
		})
		gt.NoError(t, err).Required()

		_, err = repo.ConversationMemory().Put(ctx, &model.ConversationMemory{
			UserID:         userID,
			ConversationID: "conv-b",
			Content:        "talking about cooking",
			Role:           types.RoleUser,
			TurnNumber:     1,
			Embedding:      directionalEmbedding(0, 0.05),
		})
		gt.NoError(t, err).Required()

		results, err := repo.ConversationMemory().FindByEmbedding(ctx, userID, "conv-a", directionalEmbedding(0, 0), 10)
		gt.NoError(t, err).Required()
		gt.Array(t, results).Length(1)
		gt.Value(t, results[0].Memory.Content).Equal("talking about kubernetes")
	})

	t.Run("ConversationMemory LastTurnNumber", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		userID := newUserID()
		convID := types.ConversationID("conv-turns")

		last, err := repo.ConversationMemory().LastTurnNumber(ctx, userID, convID)
		gt.NoError(t, err).Required()
		gt.Value(t, last).Equal(0)

		for i := 1; i <= 4; i++ {
			_, err := repo.ConversationMemory().Put(ctx, &model.ConversationMemory{
				UserID:         userID,
				ConversationID: convID,
				Content:        fmt.Sprintf("turn %d", i),
				Role:           types.RoleAssistant,
				TurnNumber:     i,
			})
			gt.NoError(t, err).Required()
		}

		last, err = repo.ConversationMemory().LastTurnNumber(ctx, userID, convID)
		gt.NoError(t, err).Required()
		gt.Value(t, last).Equal(4)
	})

	t.Run("ConversationMemory Stats counts roles", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		userID := newUserID()
		convID := types.ConversationID("conv-stats")

		roles := []types.Role{types.RoleUser, types.RoleAssistant, types.RoleUser}
		for i, role := range roles {
			_, err := repo.ConversationMemory().Put(ctx, &model.ConversationMemory{
				UserID:         userID,
				ConversationID: convID,
				Content:        fmt.Sprintf("message %d", i+1),
				Role:           role,
				TurnNumber:     i + 1,
			})
			gt.NoError(t, err).Required()
		}

		stats, err := repo.ConversationMemory().Stats(ctx, userID, convID)
		gt.NoError(t, err).Required()
		gt.Value(t, stats.TotalMessages).Equal(3)
		gt.Value(t, stats.UserMessages).Equal(2)
		gt.Value(t, stats.AssistantMessages).Equal(1)
	})

	t.Run("Summary Upsert creates then replaces preserving identity", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		userID := newUserID()
		convID := types.ConversationID("conv-sum")

		first, err := repo.Summary().Upsert(ctx, &model.ConversationSummary{
			UserID:         userID,
			ConversationID: convID,
			Summary:        "Talked about travel plans",
			MessageCount:   4,
			Embedding:      directionalEmbedding(0, 0.1),
		})
		gt.NoError(t, err).Required()
		gt.String(t, string(first.ID)).NotEqual("")
		gt.Bool(t, first.StartedAt.IsZero()).False()

		time.Sleep(10 * time.Millisecond)

		second, err := repo.Summary().Upsert(ctx, &model.ConversationSummary{
			UserID:         userID,
			ConversationID: convID,
			Summary:        "Talked about travel plans and budgets",
			MessageCount:   8,
			Embedding:      directionalEmbedding(0, 0.05),
		})
		gt.NoError(t, err).Required()
		gt.Value(t, second.ID).Equal(first.ID)
		gt.Value(t, second.StartedAt).Equal(first.StartedAt)
		gt.Value(t, second.MessageCount).Equal(8)

		retrieved, err := repo.Summary().Get(ctx, userID, convID)
		gt.NoError(t, err).Required()
		gt.Value(t, retrieved.Summary).Equal("Talked about travel plans and budgets")
	})

	t.Run("Summary Get returns error for unknown conversation", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Summary().Get(ctx, newUserID(), "no-such-conv")
		gt.Value(t, err).NotNil()
		gt.Bool(t, isNotFound(err)).True()
	})

	t.Run("Summary FindByEmbedding searches across conversations", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		userID := newUserID()

		_, err := repo.Summary().Upsert(ctx, &model.ConversationSummary{
			UserID:         userID,
			ConversationID: "conv-x",
			Summary:        "Debugging a flaky integration test",
			MessageCount:   6,
			Embedding:      directionalEmbedding(0, 0.05),
		})
		gt.NoError(t, err).Required()

		_, err = repo.Summary().Upsert(ctx, &model.ConversationSummary{
			UserID:         userID,
			ConversationID: "conv-y",
			Summary:        "Planning a birthday dinner",
			MessageCount:   3,
			Embedding:      directionalEmbedding(7, 0.05),
		})
		gt.NoError(t, err).Required()

		results, err := repo.Summary().FindByEmbedding(ctx, userID, directionalEmbedding(0, 0), 1)
		gt.NoError(t, err).Required()
		gt.Array(t, results).Length(1)
		gt.Value(t, results[0].Summary.ConversationID).Equal(types.ConversationID("conv-x"))
	})
}

func newFirestoreRepository(t *testing.T) interfaces.Repository {
	t.Helper()

	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID not set")
	}

	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")
	if databaseID == "" {
		t.Skip("TEST_FIRESTORE_DATABASE_ID not set")
	}

	ctx := context.Background()
	repo, err := firestore.New(ctx, projectID, databaseID)
	gt.NoError(t, err).Required()
	t.Cleanup(func() {
		gt.NoError(t, repo.Close())
	})
	return repo
}

func TestMemoryRepository(t *testing.T) {
	runRepositoryTest(t, func(t *testing.T) interfaces.Repository {
		return memory.New()
	})
}

func TestChromemRepository(t *testing.T) {
	runRepositoryTest(t, func(t *testing.T) interfaces.Repository {
		repo, err := chromem.New()
		gt.NoError(t, err).Required()
		return repo
	})
}

func TestFirestoreRepository(t *testing.T) {
	runRepositoryTest(t, newFirestoreRepository)
}

func TestChromemRepositoryReopen(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir()
	userID := types.UserID("reopen-user")
	conversationID := types.ConversationID("reopen-conv")

	repo, err := chromem.New(chromem.WithPersistentPath(path))
	gt.NoError(t, err).Required()

	mem, err := repo.UserMemory().Put(ctx, &model.UserMemory{
		UserID:     userID,
		Kind:       types.MemoryKindFact,
		Content:    "Lives in Osaka",
		Importance: 0.6,
		Embedding:  directionalEmbedding(0, 0.1),
	})
	gt.NoError(t, err).Required()

	_, err = repo.ConversationMemory().Put(ctx, &model.ConversationMemory{
		UserID:         userID,
		ConversationID: conversationID,
		Content:        "hello there",
		Role:           types.RoleUser,
		TurnNumber:     1,
		Embedding:      directionalEmbedding(1, 0.1),
	})
	gt.NoError(t, err).Required()

	_, err = repo.Summary().Upsert(ctx, &model.ConversationSummary{
		UserID:         userID,
		ConversationID: conversationID,
		Summary:        "greeting exchange",
		MessageCount:   1,
		Embedding:      directionalEmbedding(2, 0.1),
	})
	gt.NoError(t, err).Required()
	gt.NoError(t, repo.Close())

	reopened, err := chromem.New(chromem.WithPersistentPath(path))
	gt.NoError(t, err).Required()

	t.Run("turn numbers continue after restart", func(t *testing.T) {
		last, err := reopened.ConversationMemory().LastTurnNumber(ctx, userID, conversationID)
		gt.NoError(t, err).Required()
		gt.Value(t, last).Equal(1)
	})

	t.Run("lookups see pre-restart rows", func(t *testing.T) {
		got, err := reopened.UserMemory().Get(ctx, userID, mem.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.Content).Equal("Lives in Osaka")
		gt.Value(t, got.Importance).Equal(0.6)

		recent, err := reopened.ConversationMemory().ListRecent(ctx, userID, conversationID, 10)
		gt.NoError(t, err).Required()
		gt.Array(t, recent).Length(1)

		stats, err := reopened.ConversationMemory().Stats(ctx, userID, conversationID)
		gt.NoError(t, err).Required()
		gt.Value(t, stats.UserMessages).Equal(1)

		summary, err := reopened.Summary().Get(ctx, userID, conversationID)
		gt.NoError(t, err).Required()
		gt.Value(t, summary.Summary).Equal("greeting exchange")
	})

	t.Run("access bookkeeping works on pre-restart rows", func(t *testing.T) {
		gt.NoError(t, reopened.UserMemory().RecordAccess(ctx, userID, mem.ID)).Required()

		got, err := reopened.UserMemory().Get(ctx, userID, mem.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, got.AccessCount).Equal(1)
	})
}
