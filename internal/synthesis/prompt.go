package synthesis

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sitegist/sitegist/internal/crawler"
)

// Well-known task selectors. Any other task name falls back to a generic
// instruction built from the name itself.
const (
	TaskSummarize          = "summarize"
	TaskExtractFacts       = "extract-facts"
	TaskStructuredAnalysis = "structured-analysis"
	TaskGenerateQA         = "generate-questions-and-answers"
)

const summarizeInstruction = `Summarize the following website content. Cover the site's purpose, its main topics, and the key facts a reader should take away. Write concise plain prose with no preamble.`

const extractFactsInstruction = `Extract the key facts from the following website content. Return one fact per line, each a short standalone statement that makes sense without the surrounding text. Only include concrete information actually present in the content, never outside knowledge or speculation.`

const structuredAnalysisInstruction = `Analyze the following website content. Structure the response under these headings:

Purpose: what the site exists to do
Main Topics: the subjects it covers
Key Information: the most important specifics
Audience: who the content is written for
Notable Observations: anything unusual or significant

Keep each section brief and grounded in the content.`

const generateQAInstruction = `Generate question and answer pairs from the following website content. Write each pair as a "Q:" line followed by an "A:" line. Cover the most important information; every answer must come from the content itself.`

const combineInstruction = `The numbered sections below are partial results produced by running the same task over consecutive parts of one website. Merge them into a single coherent response with no redundancy: keep every distinct piece of information, drop repeated points, and preserve the original ordering of topics.`

// pageDelimiter separates page blocks in the combined document. It is
// deliberately unlike anything extracted page text would contain.
const pageDelimiter = "\n\n===== PAGE BREAK =====\n\n"

// taskInstruction selects the prompt template for a task. Unknown tasks get
// a generic instruction using the task name as the verb.
func taskInstruction(task string) string {
	switch task {
	case TaskSummarize:
		return summarizeInstruction
	case TaskExtractFacts:
		return extractFactsInstruction
	case TaskStructuredAnalysis:
		return structuredAnalysisInstruction
	case TaskGenerateQA:
		return generateQAInstruction
	default:
		return fmt.Sprintf("%s the following website content. Base the response only on what the content actually says.", capitalize(task))
	}
}

// buildDocument renders crawled pages into one prompt-ready document. Each
// page contributes a short header so provenance survives chunking.
func buildDocument(pages []crawler.PageRecord) string {
	var sb strings.Builder
	for i, page := range pages {
		if i > 0 {
			sb.WriteString(pageDelimiter)
		}
		title := strings.TrimSpace(page.Title)
		if title == "" {
			title = "(untitled)"
		}
		sb.WriteString("Title: ")
		sb.WriteString(title)
		sb.WriteString("\nURL: ")
		sb.WriteString(page.URL)
		sb.WriteString("\n\n")
		sb.WriteString(strings.TrimSpace(page.Content))
	}
	return sb.String()
}

// buildChunkPrompt creates the full prompt for one chunk, including its
// position when the document was split.
func buildChunkPrompt(task, chunkText string, idx, total int) string {
	var sb strings.Builder
	sb.WriteString(taskInstruction(task))
	if total > 1 {
		fmt.Fprintf(&sb, "\n\nThis is part %d of %d of the full content; other parts are handled separately.", idx+1, total)
	}
	sb.WriteString("\n\n---\n")
	sb.WriteString(chunkText)
	sb.WriteString("\n---")
	return sb.String()
}

// buildCombinePrompt merges the ordered per-chunk outputs into one request.
func buildCombinePrompt(task string, outputs []string) string {
	var sb strings.Builder
	sb.WriteString(combineInstruction)
	fmt.Fprintf(&sb, "\n\nTask that produced the sections: %s", task)
	for i, out := range outputs {
		fmt.Fprintf(&sb, "\n\n--- Section %d ---\n", i+1)
		sb.WriteString(out)
	}
	return sb.String()
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
