package summary

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/loreweave/backend/pkg/graph"
	"github.com/loreweave/backend/pkg/logger"
)

const summarySystemPrompt = `You are a lore archivist for a tabletop campaign world.
You are given a group of entities (characters, places, factions, items, events) that graph analysis has clustered together.
Write a short title naming the group and a summary explaining what binds its members together.
Base everything strictly on the provided entities. Do not invent names, events or relationships that are not present in the data.`

const promptHeader = `These entities form one cluster of the campaign's knowledge graph:

`

// tokenCounter returns a token counting function. When the tiktoken
// encoding is unavailable (offline environments) it falls back to a
// characters-per-token estimate rather than failing generation.
func tokenCounter() func(string) int {
	enc, err := tiktoken.GetEncoding("o200k_base")
	if err != nil {
		logger.Debug("[Summary] tiktoken encoding unavailable, estimating tokens", "err", err)
		return func(s string) int { return utf8.RuneCountInString(s)/4 + 1 }
	}
	return func(s string) int { return len(enc.Encode(s, nil, nil)) }
}

// buildPrompt renders the entity listing, cutting it off once the token
// budget is exhausted. Returns the prompt and how many entities were
// omitted.
func buildPrompt(entities []graph.Entity, budget int) (string, int) {
	count := tokenCounter()

	var b strings.Builder
	b.WriteString(promptHeader)
	used := count(promptHeader)

	omitted := 0
	for i, e := range entities {
		line := entityLine(e)
		cost := count(line)
		if used+cost > budget {
			omitted = len(entities) - i
			break
		}
		b.WriteString(line)
		used += cost
	}
	if omitted > 0 {
		fmt.Fprintf(&b, "\n(%d further entities omitted for length)\n", omitted)
	}
	return b.String(), omitted
}

func entityLine(e graph.Entity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- %s (%s)", e.Name, e.EntityType)
	if len(e.Content) > 0 {
		if raw, err := json.Marshal(e.Content); err == nil {
			b.WriteString(": ")
			b.Write(raw)
		}
	}
	b.WriteString("\n")
	return b.String()
}
