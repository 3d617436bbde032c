package generator

import (
	"repowiki/internal/llm"
	"repowiki/internal/wiki"
)

func signalSchema(max int) *llm.Schema {
	return llm.Array(llm.String("A path copied exactly from the file tree."), 1, int64(max))
}

func subsystemSchema() *llm.Schema {
	paths := func(desc string, maxItems int64) *llm.Schema {
		return llm.Array(llm.String(desc), 0, maxItems)
	}
	item := llm.Object(
		llm.Field{Name: "id", Schema: llm.String("Lowercase hyphenated slug, unique in the list.")},
		llm.Field{Name: "name", Schema: llm.String("User-facing feature name.")},
		llm.Field{Name: "description", Schema: llm.String("What the subsystem does.")},
		llm.Field{Name: "userJourney", Schema: llm.String("The user journey it supports.")},
		llm.Field{Name: "relevantPaths", Schema: paths("Path from the file tree.", 0)},
		llm.Field{Name: "entryPoints", Schema: llm.Array(llm.String("Path from the file tree."), 1, 3)},
		llm.Field{Name: "externalServices", Schema: paths("External service name.", 0)},
	)
	return llm.Object(
		llm.Field{Name: "productSummary", Schema: llm.String("One paragraph describing the product.")},
		llm.Field{Name: "subsystems", Schema: llm.Array(item, wiki.MinSubsystems, wiki.MaxSubsystems)},
	)
}

func evidenceSchema() *llm.Schema {
	item := llm.Object(
		llm.Field{Name: "path", Schema: llm.String("One of the candidate FILE paths.")},
		llm.Field{Name: "startLine", Schema: llm.Integer("First cited line, 1-based.")},
		llm.Field{Name: "endLine", Schema: llm.Integer("Last cited line, inclusive.")},
		llm.Field{Name: "rationale", Schema: llm.String("Why these lines implement the subsystem.")},
		llm.Field{Name: "score", Schema: llm.Number("Confidence.", 0, 1)},
	)
	return llm.Object(
		llm.Field{Name: "evidence", Schema: llm.Array(item, 1, wiki.MaxEvidenceItems)},
	)
}

func draftSchema() *llm.Schema {
	return llm.Object(
		llm.Field{Name: "markdown", Schema: llm.String("The full wiki page in markdown.")},
	)
}
