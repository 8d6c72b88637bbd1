package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/aiga-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/aiga-lab/mnemosyne/pkg/domain/model"
	"github.com/aiga-lab/mnemosyne/pkg/domain/types"
	"github.com/aiga-lab/mnemosyne/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Budgets are character budgets for the assembled context. Conversation
// content (tier 1) has the highest precedence; summaries (tier 3) are dropped
// first when the total budget is tight.
type Budgets struct {
	Conversation int
	UserMemory   int
	Summary      int
	Total        int
}

func DefaultBudgets() Budgets {
	return Budgets{
		Conversation: 2000,
		UserMemory:   1500,
		Summary:      1000,
		Total:        4000,
	}
}

func (b Budgets) Validate() error {
	if b.Conversation <= 0 || b.UserMemory <= 0 || b.Summary <= 0 || b.Total <= 0 {
		return goerr.New("context budgets must be positive", goerr.V("budgets", b))
	}
	return nil
}

// How many rows each tier search asks for before threshold filtering
const (
	assembleConversationLimit = 10
	assembleUserMemoryLimit   = 10
	assembleSummaryLimit      = 5
)

// truncationMarker is appended when a single conversation item had to be cut
// to fit the total budget
const truncationMarker = " ...[truncated]"

// AssembledContext is the merged memory context for one turn. UserMemoryIDs
// holds only the tier-2 ids whose content actually entered Text, so access
// bookkeeping fires for surfaced memories and nothing else.
type AssembledContext struct {
	Text          string
	UserMemoryIDs []model.MemoryID
}

// Empty reports whether no memory of any tier was surfaced
func (c *AssembledContext) Empty() bool {
	return c.Text == ""
}

// Assembler embeds the query once, runs the three tier searches concurrently
// and merges the results under the configured budgets.
type Assembler struct {
	search   *Search
	embedder Embedder
	budgets  Budgets
}

func NewAssembler(search *Search, embedder Embedder, budgets Budgets) *Assembler {
	return &Assembler{
		search:   search,
		embedder: embedder,
		budgets:  budgets,
	}
}

func (a *Assembler) Assemble(ctx context.Context, userID types.UserID, conversationID types.ConversationID, query string) (*AssembledContext, error) {
	embedding, err := a.embedder.Embed(ctx, query)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed query for context assembly")
	}

	var (
		convRows    []*interfaces.ScoredConversationMemory
		userRows    []*interfaces.ScoredUserMemory
		summaryRows []*interfaces.ScoredSummary
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		convRows, err = a.search.ConversationMemories(egCtx, userID, conversationID, embedding, assembleConversationLimit)
		return err
	})
	eg.Go(func() error {
		var err error
		userRows, err = a.search.UserMemories(egCtx, userID, nil, embedding, assembleUserMemoryLimit)
		return err
	})
	eg.Go(func() error {
		var err error
		summaryRows, err = a.search.Summaries(egCtx, userID, embedding, assembleSummaryLimit)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, goerr.Wrap(err, "failed to search memory tiers")
	}

	// similarity descending, ties by recency
	sort.SliceStable(convRows, func(i, j int) bool {
		if convRows[i].Similarity != convRows[j].Similarity {
			return convRows[i].Similarity > convRows[j].Similarity
		}
		return convRows[i].Memory.CreatedAt.After(convRows[j].Memory.CreatedAt)
	})
	sort.SliceStable(userRows, func(i, j int) bool {
		if userRows[i].Similarity != userRows[j].Similarity {
			return userRows[i].Similarity > userRows[j].Similarity
		}
		return userRows[i].Memory.UpdatedAt.After(userRows[j].Memory.UpdatedAt)
	})
	sort.SliceStable(summaryRows, func(i, j int) bool {
		if summaryRows[i].Similarity != summaryRows[j].Similarity {
			return summaryRows[i].Similarity > summaryRows[j].Similarity
		}
		return summaryRows[i].Summary.LastActivityAt.After(summaryRows[j].Summary.LastActivityAt)
	})

	logging.From(ctx).Debug("assembling memory context",
		"conversationRows", len(convRows),
		"userRows", len(userRows),
		"summaryRows", len(summaryRows),
	)

	w := newBudgetWriter(a.budgets.Total)

	// Tier 1: current conversation. Never dropped in favor of lower tiers;
	// if even the single best item exceeds the total budget it is cut with an
	// explicit marker instead.
	tierChars := 0
	for i, row := range convRows {
		line := fmt.Sprintf("- [%s] %s", row.Memory.Role, row.Memory.Content)
		if i == 0 && !w.fits(conversationHeader, line) {
			w.addTruncated(conversationHeader, line)
			break
		}
		if tierChars+len(line) > a.budgets.Conversation {
			break
		}
		if !w.add(conversationHeader, line) {
			break
		}
		tierChars += len(line)
	}

	// Tier 2: cross-conversation user memory
	var surfacedIDs []model.MemoryID
	tierChars = 0
	for _, row := range userRows {
		line := fmt.Sprintf("- (%s) %s", row.Memory.Kind, row.Memory.Content)
		if tierChars+len(line) > a.budgets.UserMemory {
			break
		}
		if !w.add(userMemoryHeader, line) {
			break
		}
		surfacedIDs = append(surfacedIDs, row.Memory.ID)
		tierChars += len(line)
	}

	// Tier 3: summaries of other conversations, first to go under pressure
	tierChars = 0
	for _, row := range summaryRows {
		if row.Summary.ConversationID == conversationID {
			continue
		}
		line := formatSummaryLine(row.Summary)
		if tierChars+len(line) > a.budgets.Summary {
			break
		}
		if !w.add(summaryHeader, line) {
			break
		}
		tierChars += len(line)
	}

	return &AssembledContext{
		Text:          w.String(),
		UserMemoryIDs: surfacedIDs,
	}, nil
}

const (
	conversationHeader = "Relevant messages in this conversation:"
	userMemoryHeader   = "What I know about the user:"
	summaryHeader      = "Related past conversations:"
)

// budgetWriter accumulates headed sections while never letting the rendered
// text exceed the total character budget. Headers and separators count.
type budgetWriter struct {
	total      int
	used       int
	lastHeader string
	b          strings.Builder
}

func newBudgetWriter(total int) *budgetWriter {
	return &budgetWriter{total: total}
}

// cost is the number of characters appending line (and its header, if the
// section changes) would add to the output
func (w *budgetWriter) cost(header, line string) int {
	c := len(line) + 1 // preceding newline
	if w.lastHeader != header {
		c += len(header)
		if w.used > 0 {
			c += 2 // blank line between sections
		}
	}
	return c
}

func (w *budgetWriter) fits(header, line string) bool {
	return w.used+w.cost(header, line) <= w.total
}

func (w *budgetWriter) add(header, line string) bool {
	if !w.fits(header, line) {
		return false
	}
	if w.lastHeader != header {
		if w.used > 0 {
			w.b.WriteString("\n\n")
			w.used += 2
		}
		w.b.WriteString(header)
		w.used += len(header)
		w.lastHeader = header
	}
	w.b.WriteString("\n")
	w.b.WriteString(line)
	w.used += len(line) + 1
	return true
}

// addTruncated force-fits a single oversized line by cutting it and appending
// an explicit marker
func (w *budgetWriter) addTruncated(header, line string) {
	overhead := w.cost(header, "") + len(truncationMarker)
	keep := w.total - w.used - overhead
	if keep < 0 {
		keep = 0
	}
	if keep > len(line) {
		keep = len(line)
	}
	w.add(header, line[:keep]+truncationMarker)
	// the marker itself may not fit the arithmetic above when the budget is
	// absurdly small; force the write in that case
	if w.lastHeader != header {
		w.b.WriteString(header + "\n" + line[:keep] + truncationMarker)
		w.used = w.total
		w.lastHeader = header
	}
}

func (w *budgetWriter) String() string {
	return w.b.String()
}

func formatSummaryLine(s *model.ConversationSummary) string {
	if s.Title != "" {
		return fmt.Sprintf("- %s: %s", s.Title, s.Summary)
	}
	return "- " + s.Summary
}

// RecordSurfacedAccess fires access bookkeeping for every user memory that
// entered the assembled context. Failures are logged, not fatal; the turn has
// already been answered by the time this runs.
func (a *Assembler) RecordSurfacedAccess(ctx context.Context, userID types.UserID, assembled *AssembledContext) {
	for _, id := range assembled.UserMemoryIDs {
		if err := a.search.RecordAccess(ctx, userID, id); err != nil {
			logging.From(ctx).Warn("failed to record memory access",
				"memoryID", id, "error", err)
		}
	}
}
