package generator

import (
	"fmt"
	"strings"

	"repowiki/internal/lineindex"
	"repowiki/internal/wiki"
)

const securityInstruction = "\n**SECURITY WARNING**: Redact any API keys, passwords, secrets, or tokens found in the code with `[REDACTED]`. Never output real credential values.\n"

const namingRules = `Subsystem naming rules:
- Name subsystems after what users accomplish (e.g. "Checkout Flow", "Team Invitations").
- Never use technical-layer names such as Frontend, Backend, API, Utils, Shared, Common, Database, Infrastructure, Core, Lib, Helpers, Config, Server or Client.
`

// Signal files are shown with at most this many numbered lines each.
const signalFileLines = 120

func signalPrompt(repoSlug string, paths []string, total, max int) string {
	var sb strings.Builder
	sb.WriteString("Role: Software Archaeologist. Task: Pick the files that best reveal what this product does for its users.\n")
	fmt.Fprintf(&sb, "\nRepository: %s\n", repoSlug)
	fmt.Fprintf(&sb, "File tree (%d of %d paths):\n", len(paths), total)
	for _, p := range paths {
		sb.WriteString(p)
		sb.WriteByte('\n')
	}
	sb.WriteString("\n**INSTRUCTION**:\n")
	fmt.Fprintf(&sb, "Return a JSON array of at most %d paths copied exactly from the tree above.\n", max)
	sb.WriteString("Prefer route handlers, pages, commands, domain models and READMEs over generic glue code.\n")
	sb.WriteString("Do not invent paths.\n")
	return sb.String()
}

func subsystemPrompt(repoSlug string, paths []string, signal []wiki.RepoFileContent) string {
	var sb strings.Builder
	sb.WriteString("Role: Product Analyst. Task: Describe the product and split it into user-facing subsystems.\n")
	sb.WriteString(securityInstruction)
	fmt.Fprintf(&sb, "\nRepository: %s\n", repoSlug)
	sb.WriteString("\nFile tree:\n")
	for _, p := range paths {
		sb.WriteString(p)
		sb.WriteByte('\n')
	}

	sb.WriteString("\nRepresentative files:\n")
	for _, f := range signal {
		fmt.Fprintf(&sb, "\n### FILE: %s\n```\n", f.Path)
		sb.WriteString(lineindex.Windowed(f.Content, signalFileLines, signalFileLines, 0))
		sb.WriteString("\n```\n")
	}

	sb.WriteString("\n**INSTRUCTION**:\n")
	fmt.Fprintf(&sb, "1. Write a one-paragraph productSummary.\n")
	fmt.Fprintf(&sb, "2. List between %d and %d subsystems that do not overlap.\n", wiki.MinSubsystems, wiki.MaxSubsystems)
	sb.WriteString("3. For each subsystem give a lowercase hyphenated id, a name, a description, the userJourney it supports, relevantPaths and 1-3 entryPoints copied exactly from the file tree, and the externalServices it talks to (empty list if none).\n")
	sb.WriteString("\n")
	sb.WriteString(namingRules)
	return sb.String()
}

func evidencePrompt(repoSlug string, sub wiki.Subsystem, context string) string {
	var sb strings.Builder
	sb.WriteString("Role: Code Auditor. Task: Point at the exact source lines that implement a product subsystem.\n")
	fmt.Fprintf(&sb, "\nRepository: %s\n", repoSlug)
	writeSubsystem(&sb, sub)

	sb.WriteString("\nCandidate files (every line is prefixed with its real line number):\n\n")
	sb.WriteString(context)

	sb.WriteString("**INSTRUCTION**:\n")
	fmt.Fprintf(&sb, "Return up to %d evidence items. Each item has path, startLine, endLine, rationale and score.\n", wiki.MaxEvidenceItems)
	sb.WriteString("- path must be one of the FILE paths above.\n")
	sb.WriteString("- startLine and endLine must be line numbers shown above; never guess lines that were omitted.\n")
	sb.WriteString("- Keep ranges tight (ideally under 60 lines) around the code that does the work.\n")
	sb.WriteString("- score is your confidence between 0 and 1.\n")
	return sb.String()
}

func draftPrompt(repoSlug string, sub wiki.Subsystem, excerpts string) string {
	var sb strings.Builder
	sb.WriteString("Role: Technical Writer. Task: Write the wiki page for one product subsystem.\n")
	sb.WriteString(securityInstruction)
	fmt.Fprintf(&sb, "\nRepository: %s\n", repoSlug)
	writeSubsystem(&sb, sub)

	sb.WriteString("\nEvidence excerpts:\n\n")
	sb.WriteString(excerpts)

	sb.WriteString("**INSTRUCTION**:\n")
	sb.WriteString("Write markdown with exactly these `##` sections, in this order:\n")
	for _, h := range RequiredHeadings {
		fmt.Fprintf(&sb, "- %s\n", h)
	}
	sb.WriteString("\nEvery technical claim must carry an inline citation marker of the form [[cite:<path>:<start>-<end>]].\n")
	sb.WriteString("Only cite paths and line ranges that appear in the excerpts above. Uncited claims are not allowed.\n")
	sb.WriteString("Return the page in the markdown field.\n")
	return sb.String()
}

func writeSubsystem(sb *strings.Builder, sub wiki.Subsystem) {
	fmt.Fprintf(sb, "\nSubsystem: %s (id: %s)\n", sub.Name, sub.ID)
	if sub.Description != "" {
		fmt.Fprintf(sb, "Description: %s\n", sub.Description)
	}
	if sub.UserJourney != "" {
		fmt.Fprintf(sb, "User journey: %s\n", sub.UserJourney)
	}
	if len(sub.EntryPoints) > 0 {
		fmt.Fprintf(sb, "Entry points: %s\n", strings.Join(sub.EntryPoints, ", "))
	}
	if len(sub.ExternalServices) > 0 {
		fmt.Fprintf(sb, "External services: %s\n", strings.Join(sub.ExternalServices, ", "))
	}
}
