// Package postprocess removes common LLM artifacts from translation output.
//
// It is applied to the raw text returned by the model before a result is
// accepted by the executor.
package postprocess

import (
	"regexp"
	"strings"
)

// LineBreak is the hard-break marker the document model allows through
// escaping. Leaked break tags are normalized to it rather than removed.
const LineBreak = "<br/>"

// Clean removes LLM artifacts from text in three phases and returns the
// trimmed result:
//  1. Thinking / reasoning block removal
//  2. Instruction echo removal (prompt leakage)
//  3. Leaked HTML tag removal
func Clean(text string) string {
	text = removeThinkingBlocks(text)
	text = removeInstructionEchoes(text)
	text = removeLeakedTags(text)
	return strings.TrimSpace(text)
}

// --- Phase 1: thinking blocks ---

// thinkingBlockRe matches complete <thinking>…</thinking> style blocks.
// Each tag variant is listed explicitly because Go's RE2 engine does not
// support backreferences.
// Flags: i = case-insensitive, s = dot matches newline.
var thinkingBlockRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
)

// truncatedThinkingRe matches an opened thinking tag whose closing tag is
// missing (the model was cut off mid-thought).
var truncatedThinkingRe = regexp.MustCompile(
	`(?is)(?:<thinking>|<think>|<reasoning>|<reflection>).*$`,
)

func removeThinkingBlocks(text string) string {
	text = thinkingBlockRe.ReplaceAllString(text, "")
	text = truncatedThinkingRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// --- Phase 2: instruction echoes ---

// echoPatterns match introductory phrases that LLMs sometimes prepend even
// when instructed not to.  Each pattern is anchored to the start of the string
// and requires a colon to reduce false positives on legitimate content.
var echoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^here(?:'s| is)(?: the)? (?:refined |polished |translated |korean |english )?(?:translation|text)\s*:`),
	regexp.MustCompile(`(?i)^(?:the )?(?:refined |polished )?(?:translation|translated text)\s*:`),
	regexp.MustCompile(`(?i)^(?:certainly|sure|of course)[,.]? here(?:'s| is)(?: the)? (?:refined |polished |translated )?(?:translation|text)\s*:`),
}

func removeInstructionEchoes(text string) string {
	for _, re := range echoPatterns {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] == 0 {
			text = strings.TrimSpace(text[loc[1]:])
		}
	}
	return text
}

// --- Phase 3: leaked tags ---

// leakedTagRe matches opening, closing and self-closing tags of HTML
// elements that can appear inside a paragraph. Angle-bracketed text that is
// not an HTML tag name (for example game-style "<상태창>") is left alone.
var leakedTagRe = regexp.MustCompile(
	`(?i)</?(?:p|span|div|em|strong|b|i|u|s|a|sup|sub|small|big|font|code|mark|ruby|rt|rp|h[1-6]|section|blockquote|li|ul|ol|html|body|head|title)(?:\s[^<>]*)?/?>`,
)

var breakTagRe = regexp.MustCompile(`(?i)<br\s*/?>`)

func removeLeakedTags(text string) string {
	text = breakTagRe.ReplaceAllString(text, LineBreak)
	return leakedTagRe.ReplaceAllString(text, "")
}

var codeFenceRe = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\n?(.*?)\\s*```$")

// StripCodeFence unwraps a response the model put inside a markdown code
// fence, as structured responses often are.
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if m := codeFenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}
