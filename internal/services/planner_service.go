package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"recall/internal/models"
)

const (
	classifyTimeout = 5 * time.Second
	planTimeout     = 12 * time.Second

	maxSearchQueries = 3
	resultsPerQuery  = 10
	primerFactLimit  = 10
)

// deepKeywords flag messages that ask for analysis over the user's
// history rather than a quick lookup.
var deepKeywords = []string{"analyze", "explain", "understand", "learn", "insights", "patterns"}

// memorableKeywords flag first-person statements worth persisting
var memorableKeywords = []string{"i am", "i'm", "my ", "i like", "i work", "i live", "remember"}

// recentFactReader is the slice of FactService the planner needs
type recentFactReader interface {
	ListRecentFacts(ctx context.Context, userID string, limit int) ([]models.Fact, error)
}

// accessResolver computes per-app fact visibility
type accessResolver interface {
	AccessibleFacts(ctx context.Context, appID string) (AccessSet, error)
}

// ContextPlanner turns an incoming user message into engineered context
// through a classify, plan, retrieve, compose pipeline. The language
// model steers the pipeline but never gates it: every model call has a
// deterministic fallback.
type ContextPlanner struct {
	llm       TextGenerator
	retriever Retriever
	facts     recentFactReader
	access    accessResolver
}

// NewContextPlanner creates a planner over the given collaborators
func NewContextPlanner(llm TextGenerator, retriever Retriever, facts recentFactReader, access accessResolver) *ContextPlanner {
	return &ContextPlanner{
		llm:       llm,
		retriever: retriever,
		facts:     facts,
		access:    access,
	}
}

// BuildContext runs the full pipeline and returns the engineered context
// string plus the plan that produced it. The plan carries the save
// decision the orchestrator uses to schedule ingestion.
func (p *ContextPlanner) BuildContext(ctx context.Context, message, userID, appID string, isNewHint bool) (string, *models.ContextPlan, error) {
	isNew := isNewHint
	if !isNew {
		isNew = p.classifyConversation(ctx, message)
	}

	visible, err := p.access.AccessibleFacts(ctx, appID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to resolve access for app %s: %w", appID, err)
	}

	if isNew {
		primer, err := p.buildPrimer(ctx, message, userID, visible)
		if err != nil {
			return "", nil, err
		}
		return primer, primerPlan(message), nil
	}

	plan := p.planContext(ctx, message)

	results, err := p.retrieve(ctx, plan, message, userID, visible)
	if err != nil {
		return "", nil, err
	}

	return composeContext(plan.Strategy, results), plan, nil
}

// classifyConversation asks the model whether the message opens a new
// conversation. Any failure means the safer answer: continuing.
func (p *ContextPlanner) classifyConversation(ctx context.Context, message string) bool {
	cctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	prompt := fmt.Sprintf(`Classify whether this message starts a NEW conversation or CONTINUES an existing one.
A greeting, an introduction, or a topic opener is NEW. A follow-up, an answer, or a reference to prior discussion is CONTINUING.

Message: %q

Respond with exactly one word: NEW or CONTINUING`, message)

	response, err := p.llm.GenerateText(cctx, prompt, 10)
	if err != nil {
		log.Printf("⚠️  [PLANNER] Classification failed, treating as continuing: %v", err)
		return false
	}

	return strings.Contains(strings.ToUpper(response), "NEW")
}

// planContext asks the model for a retrieval plan and falls back to the
// keyword heuristic when the model is unavailable or returns garbage.
func (p *ContextPlanner) planContext(ctx context.Context, message string) *models.ContextPlan {
	pctx, cancel := context.WithTimeout(ctx, planTimeout)
	defer cancel()

	prompt := fmt.Sprintf(`You are a context planner for a memory system. Analyze the user's message and decide how to retrieve relevant memories.

Message: %q

Respond with JSON only:
{
  "context_strategy": "deep_understanding" or "relevant_context",
  "search_queries": ["up to 3 short search queries"],
  "should_save_memory": true or false,
  "memorable_content": "the fact worth remembering, or empty string"
}

Use "deep_understanding" when the user asks for analysis, patterns or insights about themselves. Set should_save_memory when the message states a durable personal fact.`, message)

	response, err := p.llm.GenerateText(pctx, prompt, 512)
	if err != nil {
		log.Printf("⚠️  [PLANNER] Plan generation failed, using heuristic plan: %v", err)
		return fallbackPlan(message)
	}

	var plan models.ContextPlan
	if err := json.Unmarshal([]byte(extractJSON(response)), &plan); err != nil {
		log.Printf("⚠️  [PLANNER] Plan response was not valid JSON, using heuristic plan: %v", err)
		return fallbackPlan(message)
	}

	if plan.Strategy != models.StrategyDeepUnderstanding && plan.Strategy != models.StrategyRelevantContext {
		plan.Strategy = models.StrategyRelevantContext
	}
	if len(plan.SearchQueries) == 0 {
		plan.SearchQueries = []string{message}
	}
	if len(plan.SearchQueries) > maxSearchQueries {
		plan.SearchQueries = plan.SearchQueries[:maxSearchQueries]
	}
	if plan.ShouldSaveMemory && plan.MemorableContent == "" {
		plan.MemorableContent = message
	}

	return &plan
}

// primerPlan is the plan for conversation openers. The primer path does
// no deep planning; the raw message is handed to background ingestion,
// whose memorability analysis makes the save decision.
func primerPlan(message string) *models.ContextPlan {
	return &models.ContextPlan{
		Strategy:         models.StrategyRelevantContext,
		SearchQueries:    []string{message},
		ShouldSaveMemory: true,
		MemorableContent: message,
	}
}

// fallbackPlan builds a deterministic plan from keyword heuristics
func fallbackPlan(message string) *models.ContextPlan {
	lower := strings.ToLower(message)

	strategy := models.StrategyRelevantContext
	for _, kw := range deepKeywords {
		if strings.Contains(lower, kw) {
			strategy = models.StrategyDeepUnderstanding
			break
		}
	}

	shouldSave := false
	for _, kw := range memorableKeywords {
		if strings.Contains(lower, kw) {
			shouldSave = true
			break
		}
	}

	plan := &models.ContextPlan{
		Strategy:         strategy,
		SearchQueries:    []string{message},
		ShouldSaveMemory: shouldSave,
	}
	if shouldSave {
		plan.MemorableContent = message
	}
	return plan
}

// retrieve runs the plan's queries against the retriever and merges the
// results, deduplicating by fact ID and keeping the best score.
func (p *ContextPlanner) retrieve(ctx context.Context, plan *models.ContextPlan, message, userID string, visible AccessSet) ([]SearchResult, error) {
	queries := plan.SearchQueries
	if len(queries) == 0 {
		queries = []string{message}
	}
	if len(queries) > maxSearchQueries {
		queries = queries[:maxSearchQueries]
	}

	seen := make(map[string]int) // fact ID -> index in merged
	var merged []SearchResult

	for _, query := range queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		results, err := p.retriever.Search(ctx, query, userID, resultsPerQuery, visible)
		if err != nil {
			return nil, fmt.Errorf("search for %q failed: %w", query, err)
		}

		for _, res := range results {
			if idx, ok := seen[res.FactID]; ok {
				if res.Score > merged[idx].Score {
					merged[idx].Score = res.Score
				}
				continue
			}
			seen[res.FactID] = len(merged)
			merged = append(merged, res)
		}
	}

	log.Printf("🔍 [PLANNER] Retrieved %d facts across %d queries for user %s", len(merged), len(queries), userID)
	return merged, nil
}

// buildPrimer composes the new-conversation primer: recent facts plus a
// shallow search seeded by the opening message.
func (p *ContextPlanner) buildPrimer(ctx context.Context, message, userID string, visible AccessSet) (string, error) {
	recent, err := p.facts.ListRecentFacts(ctx, userID, primerFactLimit)
	if err != nil {
		return "", fmt.Errorf("failed to load recent facts: %w", err)
	}

	var visibleRecent []models.Fact
	for _, fact := range recent {
		if visible.Allows(fact.ID) {
			visibleRecent = append(visibleRecent, fact)
		}
	}

	results, err := p.retriever.Search(ctx, message, userID, resultsPerQuery, visible)
	if err != nil {
		return "", fmt.Errorf("primer search failed: %w", err)
	}

	var b strings.Builder
	b.WriteString("--- User Primer ---\n")
	if len(visibleRecent) == 0 && len(results) == 0 {
		b.WriteString("No prior memories for this user yet.\n")
		return b.String(), nil
	}

	if len(visibleRecent) > 0 {
		b.WriteString("Recent memories:\n")
		for _, fact := range visibleRecent {
			b.WriteString("- " + fact.Content + "\n")
		}
	}
	if len(results) > 0 {
		b.WriteString("Related to this message:\n")
		for _, res := range results {
			b.WriteString("- " + res.Content + "\n")
		}
	}

	return b.String(), nil
}

// composeContext renders retrieval results as engineered context
func composeContext(strategy string, results []SearchResult) string {
	if len(results) == 0 {
		return "No relevant memories found for this message.\n"
	}

	var b strings.Builder
	if strategy == models.StrategyDeepUnderstanding {
		b.WriteString("--- Deep Context ---\n")
	} else {
		b.WriteString("--- Relevant Memories ---\n")
	}
	for _, res := range results {
		b.WriteString("- " + res.Content + "\n")
	}
	return b.String()
}

var jsonBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*\\n?```")
var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// extractJSON pulls a JSON object out of a model response that might be
// wrapped in markdown fences or surrounding prose.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "{") {
		return content
	}

	if matches := jsonBlockRe.FindStringSubmatch(content); len(matches) > 1 {
		return matches[1]
	}

	if match := jsonObjectRe.FindString(content); match != "" {
		return match
	}

	return content
}
