package service

import (
	"container/list"
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/xponent/shopcore/internal/config"
	"github.com/xponent/shopcore/internal/domain"
	"github.com/xponent/shopcore/internal/logger"
)

// Price phrase grammar. Ranges are matched before single bounds so
// "between 20 and 50" does not leave a stray bare number behind.
var (
	rePriceBetween = regexp.MustCompile(`\bbetween\s+\$?(\d+(?:\.\d+)?)\s+and\s+\$?(\d+(?:\.\d+)?)`)
	rePriceRange   = regexp.MustCompile(`\$(\d+(?:\.\d+)?)\s*(?:-|to)\s*\$?(\d+(?:\.\d+)?)`)
	rePriceMax     = regexp.MustCompile(`\b(?:under|below|less than|up to|at most|cheaper than|max(?:imum)?(?: of)?)\s+\$?(\d+(?:\.\d+)?)`)
	rePriceMin     = regexp.MustCompile(`\b(?:over|above|more than|at least|starting (?:at|from)|min(?:imum)?(?: of)?)\s+\$?(\d+(?:\.\d+)?)`)
	rePriceBare    = regexp.MustCompile(`\$(\d+(?:\.\d+)?)`)

	reExclusion = regexp.MustCompile(`\b(?:no|not|without|except)\s+([a-z]+)`)

	reWord = regexp.MustCompile(`[a-z0-9]+`)
)

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "bag": true, "bags": true,
	"buy": true, "cheap": true, "find": true, "for": true, "get": true,
	"good": true, "i": true, "in": true, "is": true, "looking": true,
	"me": true, "my": true, "need": true, "nice": true, "of": true,
	"or": true, "please": true, "show": true, "some": true, "something": true,
	"that": true, "the": true, "to": true, "want": true, "with": true,
	"dollars": true, "bucks": true, "usd": true, "price": true, "priced": true,
}

// vocabulary holds the normalized extraction dictionaries.
type vocabulary struct {
	// terms ordered longest-first so multiword phrases win over substrings
	categories []string
	brands     []string
	colors     []string

	categoryCorrections map[string]string
	colorCorrections    map[string]string
	brandCorrections    map[string]string

	// correction keys in match order; map iteration order is not stable
	// across parses, and "tote bags" must be tried before "tote".
	categoryCorrectionKeys []string
	colorCorrectionKeys    []string
	brandCorrectionKeys    []string
}

func newVocabulary(cfg *config.VocabularyConfig) *vocabulary {
	v := &vocabulary{
		categories:          normalizeTerms(cfg.Categories),
		brands:              normalizeTerms(cfg.Brands),
		colors:              normalizeTerms(cfg.Colors),
		categoryCorrections: lowercaseMap(cfg.CategoryCorrections),
		colorCorrections:    lowercaseMap(cfg.ColorCorrections),
		brandCorrections:    lowercaseMap(cfg.BrandCorrections),
	}
	v.categoryCorrectionKeys = normalizeTerms(mapKeys(v.categoryCorrections))
	v.colorCorrectionKeys = normalizeTerms(mapKeys(v.colorCorrections))
	v.brandCorrectionKeys = normalizeTerms(mapKeys(v.brandCorrections))
	return v
}

func mapKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func normalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	// Longest first so "tote bags" matches before "tote".
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && len(out[j]) > len(out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func lowercaseMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = strings.ToLower(v)
	}
	return out
}

// cacheEntry is a parsed result with its insertion time.
type cacheEntry struct {
	key      string
	set      *domain.ConstraintSet
	cachedAt time.Time
}

// parseCache is a small LRU with TTL expiry for parsed queries.
type parseCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
	size    int
	ttl     time.Duration
}

func newParseCache(size int, ttl time.Duration) *parseCache {
	return &parseCache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		size:    size,
		ttl:     ttl,
	}
}

func (c *parseCache) get(key string) (*domain.ConstraintSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if c.ttl > 0 && time.Since(entry.cachedAt) > c.ttl {
		c.order.Remove(el)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	return entry.set, true
}

func (c *parseCache) put(key string, set *domain.ConstraintSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).set = set
		el.Value.(*cacheEntry).cachedAt = time.Now()
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&cacheEntry{key: key, set: set, cachedAt: time.Now()})
	c.entries[key] = el
	for c.order.Len() > c.size {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// QueryUnderstanding parses natural-language shopping queries into
// structured constraint sets. The rule layer (price grammar, vocabulary
// matching, exclusions) always runs; a remote NER model can optionally
// enrich the result but its failure never fails a parse.
type QueryUnderstanding struct {
	vocab     *vocabulary
	cache     *parseCache
	nerClient *resty.Client
}

// NewQueryUnderstanding creates the parser from config.
// Parameters:
//   - cfg: vocabulary, cache, and optional NER settings.
// Returns:
//   - *QueryUnderstanding: ready parser.
func NewQueryUnderstanding(cfg *config.QueryConfig) *QueryUnderstanding {
	q := &QueryUnderstanding{
		vocab: newVocabulary(&cfg.Vocabulary),
		cache: newParseCache(cfg.CacheSize, cfg.CacheTTL),
	}
	if cfg.NER.Enabled && cfg.NER.BaseURL != "" {
		timeout := cfg.NER.Timeout
		if timeout <= 0 {
			timeout = 3 * time.Second
		}
		q.nerClient = resty.New().
			SetBaseURL(cfg.NER.BaseURL).
			SetTimeout(timeout)
		if cfg.NER.APIKey != "" {
			q.nerClient.SetAuthToken(cfg.NER.APIKey)
		}
	}
	return q
}

// Parse extracts constraints from a raw query. An empty or unparseable
// query yields an empty constraint set, never an error.
// Parameters:
//   - ctx: request context, used only for the optional NER call.
//   - query: raw user text.
// Returns:
//   - *domain.ConstraintSet: parsed constraints plus the original query.
func (q *QueryUnderstanding) Parse(ctx context.Context, query string) *domain.ConstraintSet {
	normalized := strings.ToLower(strings.TrimSpace(query))
	if cached, ok := q.cache.get(normalized); ok {
		return cached
	}

	set := &domain.ConstraintSet{Query: query}
	text := normalized

	text = q.extractPrices(text, set)
	text = q.extractExclusions(text, set)
	text = q.extractVocab(text, set)
	q.extractKeywords(text, set)

	if q.nerClient != nil {
		q.enrichWithNER(ctx, normalized, set)
	}

	q.cache.put(normalized, set)
	return set
}

// extractPrices pulls price bounds out of the text and blanks the matched
// spans so later stages do not see the numbers as keywords.
func (q *QueryUnderstanding) extractPrices(text string, set *domain.ConstraintSet) string {
	consume := func(re *regexp.Regexp, handle func([]string)) {
		for {
			m := re.FindStringSubmatchIndex(text)
			if m == nil {
				return
			}
			groups := make([]string, 0, len(m)/2)
			for i := 0; i < len(m); i += 2 {
				if m[i] >= 0 {
					groups = append(groups, text[m[i]:m[i+1]])
				} else {
					groups = append(groups, "")
				}
			}
			handle(groups)
			text = text[:m[0]] + strings.Repeat(" ", m[1]-m[0]) + text[m[1]:]
		}
	}

	parse := func(s string) (float64, bool) {
		v, err := strconv.ParseFloat(s, 64)
		return v, err == nil && v > 0
	}

	consume(rePriceBetween, func(g []string) {
		lo, okLo := parse(g[1])
		hi, okHi := parse(g[2])
		if okLo && okHi {
			if lo > hi {
				lo, hi = hi, lo
			}
			set.Add(domain.PriceMin(lo))
			set.Add(domain.PriceMax(hi))
		}
	})
	consume(rePriceRange, func(g []string) {
		lo, okLo := parse(g[1])
		hi, okHi := parse(g[2])
		if okLo && okHi {
			if lo > hi {
				lo, hi = hi, lo
			}
			set.Add(domain.PriceMin(lo))
			set.Add(domain.PriceMax(hi))
		}
	})
	consume(rePriceMax, func(g []string) {
		if v, ok := parse(g[1]); ok {
			set.Add(domain.PriceMax(v))
		}
	})
	consume(rePriceMin, func(g []string) {
		if v, ok := parse(g[1]); ok {
			set.Add(domain.PriceMin(v))
		}
	})
	// A bare dollar amount with no comparator reads as a budget ceiling.
	consume(rePriceBare, func(g []string) {
		if v, ok := parse(g[1]); ok {
			if _, has := set.MaxPrice(); !has {
				set.Add(domain.PriceMax(v))
			}
		}
	})

	return text
}

func (q *QueryUnderstanding) extractExclusions(text string, set *domain.ConstraintSet) string {
	for {
		m := reExclusion.FindStringSubmatchIndex(text)
		if m == nil {
			return text
		}
		term := text[m[2]:m[3]]
		if !stopwords[term] {
			set.Add(domain.Exclusion(term))
		}
		text = text[:m[0]] + strings.Repeat(" ", m[1]-m[0]) + text[m[1]:]
	}
}

// extractVocab matches known categories, brands, and colors at word
// boundaries. Corrections run first so informal forms resolve to canonical
// vocabulary terms.
func (q *QueryUnderstanding) extractVocab(text string, set *domain.ConstraintSet) string {
	match := func(terms, correctionKeys []string, corrections map[string]string, add func(string)) {
		// Correction keys are match targets too; their value is what gets
		// recorded. Keys run longest-first so "tote bags" is tried before
		// "tote" and every parse resolves the same way.
		for _, informal := range correctionKeys {
			if replaced, ok := consumeTerm(text, informal); ok {
				add(corrections[informal])
				text = replaced
			}
		}
		for _, term := range terms {
			if replaced, ok := consumeTerm(text, term); ok {
				add(term)
				text = replaced
			}
		}
	}

	match(q.vocab.categories, q.vocab.categoryCorrectionKeys, q.vocab.categoryCorrections, func(s string) {
		set.Add(domain.Category(s))
	})
	match(q.vocab.brands, q.vocab.brandCorrectionKeys, q.vocab.brandCorrections, func(s string) {
		set.Add(domain.Brand(s))
	})
	match(q.vocab.colors, q.vocab.colorCorrectionKeys, q.vocab.colorCorrections, func(s string) {
		set.Add(domain.Color(s))
	})
	return text
}

// consumeTerm blanks the first word-boundary occurrence of term in text.
func consumeTerm(text, term string) (string, bool) {
	start := 0
	for {
		idx := strings.Index(text[start:], term)
		if idx < 0 {
			return text, false
		}
		idx += start
		end := idx + len(term)
		beforeOK := idx == 0 || !isWordChar(text[idx-1])
		afterOK := end == len(text) || !isWordChar(text[end])
		if beforeOK && afterOK {
			return text[:idx] + strings.Repeat(" ", len(term)) + text[end:], true
		}
		start = idx + 1
	}
}

func isWordChar(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}

func (q *QueryUnderstanding) extractKeywords(text string, set *domain.ConstraintSet) {
	for _, word := range reWord.FindAllString(text, -1) {
		if stopwords[word] || len(word) < 3 {
			continue
		}
		if _, err := strconv.Atoi(word); err == nil {
			continue
		}
		set.Add(domain.Keyword(word))
	}
}

type nerEntity struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

type nerResponse struct {
	Entities []nerEntity `json:"entities"`
}

// enrichWithNER asks the remote model for entities and merges anything the
// rule layer missed. Any failure is logged and swallowed.
func (q *QueryUnderstanding) enrichWithNER(ctx context.Context, query string, set *domain.ConstraintSet) {
	var result nerResponse
	resp, err := q.nerClient.R().
		SetContext(ctx).
		SetBody(map[string]string{"query": query}).
		SetResult(&result).
		Post("/extract")
	if err != nil {
		logger.CtxWarn(ctx, "NER enrichment failed: %v", err)
		return
	}
	if resp.IsError() {
		logger.CtxWarn(ctx, "NER enrichment returned %d", resp.StatusCode())
		return
	}

	for _, e := range result.Entities {
		text := strings.ToLower(strings.TrimSpace(e.Text))
		if text == "" {
			continue
		}
		switch strings.ToUpper(e.Label) {
		case "CATEGORY":
			if canonical, ok := q.vocab.categoryCorrections[text]; ok {
				text = canonical
			}
			set.Add(domain.Category(text))
		case "BRAND":
			if canonical, ok := q.vocab.brandCorrections[text]; ok {
				text = canonical
			}
			set.Add(domain.Brand(text))
		case "COLOR":
			if canonical, ok := q.vocab.colorCorrections[text]; ok {
				text = canonical
			}
			set.Add(domain.Color(text))
		}
	}
}
