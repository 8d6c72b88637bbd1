package chromem

import (
	"context"
	"strings"

	"github.com/aiga-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/aiga-lab/mnemosyne/pkg/domain/model"
	"github.com/m-mizutani/goerr/v2"
	chromem "github.com/philippgille/chromem-go"
)

// Repository is an embedded vector store implementation of
// interfaces.Repository built on chromem-go. Vector search runs inside
// chromem; record bookkeeping (get, list, access counters) lives in a side
// index because chromem has no lookup API.
type Repository struct {
	db           *chromem.DB
	userMemory   *userMemoryRepository
	conversation *conversationMemoryRepository
	summary      *summaryRepository
}

var _ interfaces.Repository = &Repository{}

type Option func(*config)

type config struct {
	persistPath string
}

// WithPersistentPath stores collections on disk at path instead of keeping
// them only in memory
func WithPersistentPath(path string) Option {
	return func(c *config) {
		c.persistPath = path
	}
}

func New(opts ...Option) (*Repository, error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	var db *chromem.DB
	if cfg.persistPath != "" {
		var err error
		db, err = chromem.NewPersistentDB(cfg.persistPath, true)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to open persistent chromem db", goerr.V("path", cfg.persistPath))
		}
	} else {
		db = chromem.NewDB()
	}

	r := &Repository{
		db:           db,
		userMemory:   newUserMemoryRepository(db),
		conversation: newConversationMemoryRepository(db),
		summary:      newSummaryRepository(db),
	}

	if cfg.persistPath != "" {
		if err := r.rehydrate(context.Background()); err != nil {
			return nil, goerr.Wrap(err, "failed to rehydrate chromem repository", goerr.V("path", cfg.persistPath))
		}
	}

	return r, nil
}

// rehydrate rebuilds the side indexes from the collections chromem reloaded
// from disk. Without it, a reopened store can answer vector searches but
// loses lookups, turn counters and access bookkeeping for pre-restart rows.
func (r *Repository) rehydrate(ctx context.Context) error {
	for name, col := range r.db.ListCollections() {
		results, err := allDocuments(ctx, col)
		if err != nil {
			return goerr.Wrap(err, "failed to load collection documents", goerr.V("collection", name))
		}

		switch {
		case strings.HasPrefix(name, "user_memory_"):
			if err := r.userMemory.rehydrate(results); err != nil {
				return err
			}
		case strings.HasPrefix(name, "conversation_memory_"):
			if err := r.conversation.rehydrate(results); err != nil {
				return err
			}
		case strings.HasPrefix(name, "summary_"):
			if err := r.summary.rehydrate(results); err != nil {
				return err
			}
		}
	}
	return nil
}

// allDocuments reads every document of a collection. chromem has no listing
// API, so a full-size query against a fixed unit vector stands in for one.
func allDocuments(ctx context.Context, col *chromem.Collection) ([]chromem.Result, error) {
	n := col.Count()
	if n == 0 {
		return nil, nil
	}

	scan := make([]float32, model.EmbeddingDimension)
	scan[0] = 1

	results, err := col.QueryEmbedding(ctx, scan, n, nil, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to scan chromem collection")
	}
	return results, nil
}

func (r *Repository) UserMemory() interfaces.UserMemoryRepository {
	return r.userMemory
}

func (r *Repository) ConversationMemory() interfaces.ConversationMemoryRepository {
	return r.conversation
}

func (r *Repository) Summary() interfaces.SummaryRepository {
	return r.summary
}

func (r *Repository) Close() error {
	return nil
}

var ErrNotFound = goerr.New("not found")

// queryEmbedding wraps chromem's QueryEmbedding. chromem rejects queries
// asking for more results than the collection holds, so the limit is walked
// down until the query succeeds or the collection turns out to be empty.
func queryEmbedding(ctx context.Context, col *chromem.Collection, embedding []float32, limit int, where map[string]string) ([]chromem.Result, error) {
	for n := limit; n >= 1; n-- {
		results, err := col.QueryEmbedding(ctx, embedding, n, where, nil)
		if err == nil {
			return results, nil
		}
		if !isTooFewDocsError(err) {
			return nil, goerr.Wrap(err, "failed to query chromem collection")
		}
	}
	return nil, nil
}

func isTooFewDocsError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
