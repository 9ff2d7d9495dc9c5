// Package imageprompt picks a style template for an entity and composes the
// full text sent to the image model.
package imageprompt

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/aiakap/travel-planner-v1/internal/domain"
)

const (
	nameWeight   = 3
	styleWeight  = 2
	promptWeight = 1
)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {}, "into": {}, "our": {}, "your": {},
	"this": {}, "that": {}, "trip": {}, "day": {}, "days": {}, "are": {}, "was": {}, "will": {},
	"over": {}, "some": {}, "any": {}, "all": {}, "via": {}, "near": {}, "off": {}, "out": {},
}

// Selector chooses the template that best matches an entity's text.
type Selector struct {
	prompts domain.PromptTemplateRepository

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector builds a selector. rng breaks score ties; nil seeds from the clock.
func NewSelector(prompts domain.PromptTemplateRepository, rng *rand.Rand) *Selector {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return &Selector{prompts: prompts, rng: rng}
}

// Select returns the template to illustrate entity with. An explicit template
// wins when it exists and belongs to the entity's category; otherwise the
// category's templates are scored against the entity and the best one is
// returned, ties broken at random.
func (s *Selector) Select(ctx context.Context, entity domain.Entity, explicitID string) (*domain.ImagePromptTemplate, error) {
	kind := entity.Kind()

	if explicitID = strings.TrimSpace(explicitID); explicitID != "" {
		tpl, err := s.prompts.GetByID(ctx, explicitID)
		switch {
		case err == nil && tpl.Category == kind:
			return tpl, nil
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			return nil, err
		}
	}

	candidates, err := s.prompts.ListByCategory(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("list %s prompts: %w", kind, err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoPromptAvailable, kind)
	}

	terms := entityTerms(entity.Describe())
	best, bestScore := []int{}, -1
	for i := range candidates {
		score := Score(candidates[i], terms)
		switch {
		case score > bestScore:
			best, bestScore = append(best[:0], i), score
		case score == bestScore:
			best = append(best, i)
		}
	}

	pick := best[0]
	if len(best) > 1 {
		s.mu.Lock()
		pick = best[s.rng.IntN(len(best))]
		s.mu.Unlock()
	}
	tpl := candidates[pick]
	return &tpl, nil
}

// Score weighs template keywords found among the entity terms: name matches
// count most, then style, then the prompt body.
func Score(tpl domain.ImagePromptTemplate, terms map[string]struct{}) int {
	return nameWeight*overlap(tpl.Name, terms) +
		styleWeight*overlap(tpl.Style, terms) +
		promptWeight*overlap(tpl.Prompt, terms)
}

func overlap(text string, terms map[string]struct{}) int {
	n := 0
	for tok := range tokenSet(text) {
		if _, ok := terms[tok]; ok {
			n++
		}
	}
	return n
}

func entityTerms(d domain.Description) map[string]struct{} {
	parts := append([]string{d.Title, d.Summary, d.Subtype, d.Parent}, d.Locations...)
	return tokenSet(strings.Join(parts, " "))
}

func tokenSet(text string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if len([]rune(w)) < 3 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		set[singular(w)] = struct{}{}
	}
	return set
}

// singular folds the common English plural endings.
func singular(w string) string {
	switch {
	case strings.HasSuffix(w, "ies") && len(w) > 4:
		return strings.TrimSuffix(w, "ies") + "y"
	case strings.HasSuffix(w, "ches"), strings.HasSuffix(w, "shes"),
		strings.HasSuffix(w, "xes"), strings.HasSuffix(w, "sses"):
		return strings.TrimSuffix(w, "es")
	case strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") && len(w) > 3:
		return strings.TrimSuffix(w, "s")
	}
	return w
}
