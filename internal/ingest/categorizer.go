package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"fintrack/internal/cache"
	"fintrack/internal/core"

	"github.com/google/uuid"
)

// Method records how a category was chosen.
type Method string

const (
	MethodExplicit Method = "explicit"
	MethodHistory  Method = "history"
	MethodKeyword  Method = "keyword"
	MethodFallback Method = "fallback"
)

const (
	DefaultFallbackExpense = "Uncategorized"
	DefaultFallbackIncome  = "Uncategorized Income"

	minKeywordRunes = 3
)

// ErrCategoryDirection reports a label naming a category of the other direction.
var ErrCategoryDirection = errors.New("category direction mismatch")

// Assignment is the categorizer's answer for one candidate.
type Assignment struct {
	CategoryID uuid.UUID
	Name       string
	Method     Method
	Keyword    string
}

// CategoryRepository is the store surface used by the categorizer.
type CategoryRepository interface {
	ListCategories(ctx context.Context, userID uuid.UUID) ([]core.Category, error)
	CreateCategory(ctx context.Context, c core.Category) error
	LastCategoryForDescription(ctx context.Context, userID uuid.UUID, description string, dir core.Direction) (*uuid.UUID, error)
}

type CategorizerConfig struct {
	Synonyms        *SynonymTable
	FallbackExpense string
	FallbackIncome  string
	CacheSize       int
	CacheTTL        time.Duration
}

// Categorizer assigns categories to candidates. Matching never fails; only
// store errors are returned.
type Categorizer struct {
	repo     CategoryRepository
	synonyms *SynonymTable
	fallback map[core.Direction]string
	cats     *cache.LRUCache[[]core.Category]
	now      func() time.Time
}

func NewCategorizer(repo CategoryRepository, cfg CategorizerConfig) *Categorizer {
	if cfg.FallbackExpense == "" {
		cfg.FallbackExpense = DefaultFallbackExpense
	}
	if cfg.FallbackIncome == "" {
		cfg.FallbackIncome = DefaultFallbackIncome
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &Categorizer{
		repo:     repo,
		synonyms: cfg.Synonyms,
		fallback: map[core.Direction]string{
			core.Expense: cfg.FallbackExpense,
			core.Income:  cfg.FallbackIncome,
		},
		cats: cache.NewLRUCache[[]core.Category](cfg.CacheSize, cfg.CacheTTL),
		now:  time.Now,
	}
}

// Cache exposes the per-user category cache for periodic cleanup.
func (c *Categorizer) Cache() *cache.LRUCache[[]core.Category] {
	return c.cats
}

// Invalidate drops the cached categories of a user.
func (c *Categorizer) Invalidate(userID uuid.UUID) {
	c.cats.Delete(userID.String())
}

// Categorize picks a category for description: the user's history first,
// then keywords, then the per-direction fallback.
func (c *Categorizer) Categorize(ctx context.Context, userID uuid.UUID, description string, dir core.Direction) (Assignment, error) {
	cats, err := c.categories(ctx, userID)
	if err != nil {
		return Assignment{}, err
	}

	hist, err := c.repo.LastCategoryForDescription(ctx, userID, description, dir)
	if err != nil {
		return Assignment{}, fmt.Errorf("historical category: %w", err)
	}
	if hist != nil {
		for _, cat := range cats {
			if cat.ID == *hist && cat.Type == dir {
				return Assignment{CategoryID: cat.ID, Name: cat.Name, Method: MethodHistory}, nil
			}
		}
	}

	if cat, kw, ok := MatchKeyword(cats, c.synonyms, description, dir); ok {
		return Assignment{CategoryID: cat.ID, Name: cat.Name, Method: MethodKeyword, Keyword: kw}, nil
	}

	cat, err := c.ensure(ctx, userID, c.fallback[dir], dir)
	if err != nil {
		return Assignment{}, fmt.Errorf("fallback category: %w", err)
	}
	return Assignment{CategoryID: cat.ID, Name: cat.Name, Method: MethodFallback}, nil
}

// Resolve maps an explicit category label to the user's category with that
// name, creating it with direction dir when absent. A label naming a
// category of the other direction fails with ErrCategoryDirection.
func (c *Categorizer) Resolve(ctx context.Context, userID uuid.UUID, label string, dir core.Direction) (Assignment, error) {
	cat, err := c.ensure(ctx, userID, strings.TrimSpace(label), dir)
	if err != nil {
		return Assignment{}, fmt.Errorf("resolve category %q: %w", label, err)
	}
	return Assignment{CategoryID: cat.ID, Name: cat.Name, Method: MethodExplicit}, nil
}

// MatchKeyword finds the category whose longest keyword occurs in
// description. Keywords are the category name plus its synonyms, compared
// case-insensitively; keywords shorter than three runes never match. Ties go
// to the category listed first.
func MatchKeyword(cats []core.Category, synonyms *SynonymTable, description string, dir core.Direction) (core.Category, string, bool) {
	text := strings.ToLower(description)

	var (
		best    core.Category
		bestKW  string
		bestLen int
	)
	for _, cat := range cats {
		if cat.Type != dir {
			continue
		}
		keywords := append([]string{cat.Name}, synonyms.Keywords(cat.Name)...)
		for _, kw := range keywords {
			n := utf8.RuneCountInString(kw)
			if n < minKeywordRunes || n <= bestLen {
				continue
			}
			if strings.Contains(text, strings.ToLower(kw)) {
				best, bestKW, bestLen = cat, kw, n
			}
		}
	}
	return best, bestKW, bestLen > 0
}

func (c *Categorizer) categories(ctx context.Context, userID uuid.UUID) ([]core.Category, error) {
	cats, err := c.cats.GetOrLoad(userID.String(), func() ([]core.Category, error) {
		return c.repo.ListCategories(ctx, userID)
	})
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

func (c *Categorizer) ensure(ctx context.Context, userID uuid.UUID, name string, dir core.Direction) (core.Category, error) {
	if cat, ok := c.lookup(ctx, userID, name); ok {
		return matchDirection(cat, dir)
	}

	cat := core.Category{ID: uuid.New(), UserID: userID, Name: name, Type: dir, CreatedAt: c.now()}
	createErr := c.repo.CreateCategory(ctx, cat)
	c.Invalidate(userID)
	if createErr == nil {
		slog.InfoContext(ctx, "Category created", "user_id", userID, "category", name, "type", dir)
		return cat, nil
	}

	// Another batch may have created it concurrently.
	if existing, ok := c.lookup(ctx, userID, name); ok {
		return matchDirection(existing, dir)
	}
	return core.Category{}, createErr
}

// Category names are unique per user regardless of direction, so a name
// taken by the other direction cannot be reused.
func matchDirection(cat core.Category, dir core.Direction) (core.Category, error) {
	if cat.Type != dir {
		return core.Category{}, fmt.Errorf("%w: %q is an %s category", ErrCategoryDirection, cat.Name, cat.Type)
	}
	return cat, nil
}

func (c *Categorizer) lookup(ctx context.Context, userID uuid.UUID, name string) (core.Category, bool) {
	cats, err := c.categories(ctx, userID)
	if err != nil {
		slog.WarnContext(ctx, "Category lookup failed", "user_id", userID, "error", err)
		return core.Category{}, false
	}
	for _, cat := range cats {
		if strings.EqualFold(cat.Name, name) {
			return cat, true
		}
	}
	return core.Category{}, false
}
