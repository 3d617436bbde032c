package extractor

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

type languageSpec struct {
	name    string
	exts    []string
	grammar func() *sitter.Language
	query   string
}

var languages = []languageSpec{
	{
		name:    "go",
		exts:    []string{".go"},
		grammar: golang.GetLanguage,
		query: `
			(function_declaration) @func
			(method_declaration) @method
			(type_spec) @type
		`,
	},
	{
		name:    "python",
		exts:    []string{".py"},
		grammar: python.GetLanguage,
		query: `
			(function_definition) @func
			(class_definition) @class
		`,
	},
	{
		name:    "javascript",
		exts:    []string{".js", ".jsx", ".mjs", ".cjs"},
		grammar: javascript.GetLanguage,
		query: `
			(function_declaration) @func
			(class_declaration) @class
			(method_definition) @method
		`,
	},
	{
		name:    "typescript",
		exts:    []string{".ts"},
		grammar: typescript.GetLanguage,
		query:   tsQuery,
	},
	{
		name:    "tsx",
		exts:    []string{".tsx"},
		grammar: tsx.GetLanguage,
		query:   tsQuery,
	},
}

const tsQuery = `
	(function_declaration) @func
	(class_declaration) @class
	(method_definition) @method
	(interface_declaration) @interface
	(type_alias_declaration) @type
`

// symbol turns a captured declaration node into a Symbol.
func (l languageSpec) symbol(capture string, node *sitter.Node, src []byte) (Symbol, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return Symbol{}, false
	}
	rangeNode := node
	// A lone `type X struct{}` reads better with its `type` keyword line included.
	if l.name == "go" && capture == "type" {
		if parent := node.Parent(); parent != nil && parent.Type() == "type_declaration" && parent.NamedChildCount() == 1 {
			rangeNode = parent
		}
	}
	start, end := nodeRange(rangeNode)
	return Symbol{
		Name:      nameNode.Content(src),
		Kind:      capture,
		StartLine: start,
		EndLine:   end,
	}, true
}
