// Package summarize implements the extractive summarization baseline:
// sentence scoring by position/length/keyword-boost/content-density,
// top-K selection, fenced code-block extraction, and key-insight
// extraction from user messages. It requires no external model.
package summarize

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"ctxmemoryd/internal/model"
)

// Level selects how many sentences survive into the summary: a
// per-context summary keeps fewer than a hierarchical or meta-level
// rollup would.
type Level int

const (
	LevelContext Level = iota
	LevelHierarchical
	LevelMeta
)

func (l Level) topK() int {
	switch l {
	case LevelHierarchical:
		return 10
	case LevelMeta:
		return 12
	default:
		return 7
	}
}

const maxKeyInsights = 5

var (
	sentenceSplit     = regexp.MustCompile(`[.!?]+`)
	sentenceWithPunct = regexp.MustCompile(`[^.!?]+[.!?]+`)
	keywordBoost      = regexp.MustCompile(`(?i)important|key|significant|main|critical|crucial`)
	codeFence         = regexp.MustCompile("```(?:([\\w-]+)\n)?([\\s\\S]*?)```")
)

// Summarizer produces a Summary from a context's messages. Pluggable
// AI-backed implementations conform to the same interface and must
// return a summary struct even when truncating.
type Summarizer interface {
	Summarize(contextID string, messages []model.Message, level Level, version int) (model.Summary, error)
}

// Extractive is the default, model-free Summarizer.
type Extractive struct{}

// NewExtractive returns the default extractive summarizer.
func NewExtractive() *Extractive { return &Extractive{} }

type scoredSentence struct {
	index int
	text  string
	score float64
}

// Summarize runs the extractive algorithm: concatenate messages,
// split into sentences, score each, keep the top-K in original order,
// extract code blocks and key insights, and compose the final text.
func (e *Extractive) Summarize(contextID string, messages []model.Message, level Level, version int) (model.Summary, error) {
	if len(messages) == 0 {
		return model.Summary{}, fmt.Errorf("no messages to summarize")
	}

	var combined strings.Builder
	for _, m := range messages {
		combined.WriteString(string(m.Role))
		combined.WriteString(": ")
		combined.WriteString(m.Content)
		combined.WriteString("\n\n")
	}

	sentences := splitSentences(combined.String())
	scored := scoreSentences(sentences)

	k := level.topK()
	top := selectTopK(scored, k)
	sort.Slice(top, func(i, j int) bool { return top[i].index < top[j].index })

	extractParts := make([]string, 0, len(top))
	for _, s := range top {
		extractParts = append(extractParts, s.text)
	}
	extract := strings.Join(extractParts, ". ")

	codeBlocks := extractCodeBlocks(messages)
	keyInsights := extractKeyInsights(messages)

	text := fmt.Sprintf("Conversation with %d messages. Summary: %s", len(messages), extract)

	return model.Summary{
		ContextID:       contextID,
		CreatedAt:       model.NowMillis(),
		Text:            text,
		CodeBlocks:      codeBlocks,
		KeyInsights:     keyInsights,
		MessageCount:    len(messages),
		Version:         version,
		ImportanceScore: averageImportance(messages),
	}, nil
}

func splitSentences(text string) []string {
	raw := sentenceSplit.Split(text, -1)
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		s = strings.Join(strings.Fields(s), " ")
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func scoreSentences(sentences []string) []scoredSentence {
	total := len(sentences)
	out := make([]scoredSentence, 0, total)
	for i, s := range sentences {
		words := strings.Fields(s)
		wordCount := len(words)
		if wordCount == 0 {
			continue
		}

		position := 1 - float64(i)/float64(total)

		length := 0.5
		if wordCount > 5 && wordCount < 30 {
			length = 1.0
		}

		keywordBoostVal := 1.0
		if keywordBoost.MatchString(s) {
			keywordBoostVal = 1.5
		}

		nonWhitespace := 0
		for _, r := range s {
			if r != ' ' && r != '\t' && r != '\n' {
				nonWhitespace++
			}
		}
		contentDensity := float64(nonWhitespace) / float64(wordCount)

		score := position * length * keywordBoostVal * contentDensity
		out = append(out, scoredSentence{index: i, text: s, score: score})
	}
	return out
}

func selectTopK(scored []scoredSentence, k int) []scoredSentence {
	sorted := make([]scoredSentence, len(scored))
	copy(sorted, scored)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].score > sorted[j].score })
	if len(sorted) > k {
		sorted = sorted[:k]
	}
	return sorted
}

func extractCodeBlocks(messages []model.Message) []model.CodeBlock {
	var out []model.CodeBlock
	for _, m := range messages {
		matches := codeFence.FindAllStringSubmatch(m.Content, -1)
		for _, match := range matches {
			out = append(out, model.CodeBlock{
				Language:      match[1],
				Code:          strings.TrimRight(match[2], "\n"),
				Importance:    m.Importance,
				SourceContext: m.ContextID,
			})
		}
	}
	return out
}

func extractKeyInsights(messages []model.Message) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range messages {
		if m.Role != model.RoleUser {
			continue
		}
		for _, raw := range sentenceWithPunct.FindAllString(m.Content, -1) {
			if len(out) >= maxKeyInsights {
				return out
			}
			sentence := strings.TrimSpace(raw)
			if len(sentence) <= 10 {
				continue
			}
			if !strings.HasSuffix(sentence, "!") && !strings.HasSuffix(sentence, "?") {
				continue
			}
			if _, dup := seen[sentence]; dup {
				continue
			}
			seen[sentence] = struct{}{}
			out = append(out, sentence)
		}
	}
	return out
}

func averageImportance(messages []model.Message) float64 {
	if len(messages) == 0 {
		return 0
	}
	var sum float64
	for _, m := range messages {
		sum += m.Importance
	}
	return sum / float64(len(messages))
}
