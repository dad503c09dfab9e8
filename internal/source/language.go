package source

import (
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
)

// Language identifies a supported source language
type Language string

const (
	LanguagePython     Language = "python"
	LanguageGo         Language = "go"
	LanguageJavaScript Language = "javascript"
	LanguageUnknown    Language = ""
)

// extensions maps file extensions to languages
var extensions = map[string]Language{
	".py":  LanguagePython,
	".pyi": LanguagePython,
	".go":  LanguageGo,
	".js":  LanguageJavaScript,
	".jsx": LanguageJavaScript,
	".mjs": LanguageJavaScript,
	".cjs": LanguageJavaScript,
}

// Detect returns the language for a path based on its extension
func Detect(path string) Language {
	return extensions[strings.ToLower(filepath.Ext(path))]
}

// ParseLanguage converts a user-supplied name ("py", "golang", ...) into a Language
func ParseLanguage(name string) Language {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "python", "py":
		return LanguagePython
	case "go", "golang":
		return LanguageGo
	case "javascript", "js", "node":
		return LanguageJavaScript
	}
	return LanguageUnknown
}

// Supported reports whether the language has a grammar
func (l Language) Supported() bool {
	return l.Grammar() != nil
}

// FenceTag is the markdown code-fence tag for the language
func (l Language) FenceTag() string {
	switch l {
	case LanguageGo:
		return "go"
	case LanguageJavaScript:
		return "javascript"
	default:
		return "python"
	}
}

// Title is the human-readable language name
func (l Language) Title() string {
	switch l {
	case LanguagePython:
		return "Python"
	case LanguageGo:
		return "Go"
	case LanguageJavaScript:
		return "JavaScript"
	}
	return "unknown"
}

func (l Language) sitterLanguage() *sitter.Language {
	switch l {
	case LanguagePython:
		return python.GetLanguage()
	case LanguageGo:
		return golang.GetLanguage()
	case LanguageJavaScript:
		return javascript.GetLanguage()
	}
	return nil
}

// Grammar describes which tree-sitter node types play which structural role
// in a language. Analyzers are written against these sets rather than
// against concrete grammars.
type Grammar struct {
	Functions   map[string]bool // function-like definitions
	Classes     map[string]bool
	Nesting     map[string]bool // statements that open a nesting level
	Branches    map[string]bool // decision points for cyclomatic complexity
	BoolOps     map[string]bool // binary node types that may carry && / || / and / or
	Terminators map[string]bool // statements after which a block is unreachable
	Blocks      map[string]bool // nodes whose named children are statements
	Calls       map[string]bool
	Imports     map[string]bool
	Comment     string
}

func set(types ...string) map[string]bool {
	m := make(map[string]bool, len(types))
	for _, t := range types {
		m[t] = true
	}
	return m
}

var grammars = map[Language]*Grammar{
	LanguagePython: {
		Functions:   set("function_definition"),
		Classes:     set("class_definition"),
		Nesting:     set("if_statement", "for_statement", "while_statement", "try_statement", "with_statement", "match_statement"),
		Branches:    set("if_statement", "elif_clause", "for_statement", "while_statement", "except_clause", "conditional_expression", "case_clause", "if_clause", "for_in_clause"),
		BoolOps:     set("boolean_operator"),
		Terminators: set("return_statement", "raise_statement", "break_statement", "continue_statement"),
		Blocks:      set("block", "module"),
		Calls:       set("call"),
		Imports:     set("import_statement", "import_from_statement"),
		Comment:     "comment",
	},
	LanguageGo: {
		Functions:   set("function_declaration", "method_declaration", "func_literal"),
		Classes:     set("type_spec"),
		Nesting:     set("if_statement", "for_statement", "expression_switch_statement", "type_switch_statement", "select_statement"),
		Branches:    set("if_statement", "for_statement", "expression_case", "type_case", "communication_case"),
		BoolOps:     set("binary_expression"),
		Terminators: set("return_statement", "break_statement", "continue_statement", "goto_statement"),
		Blocks:      set("block", "statement_list"),
		Calls:       set("call_expression"),
		Imports:     set("import_spec"),
		Comment:     "comment",
	},
	LanguageJavaScript: {
		Functions:   set("function_declaration", "function_expression", "function", "arrow_function", "method_definition", "generator_function_declaration"),
		Classes:     set("class_declaration"),
		Nesting:     set("if_statement", "for_statement", "for_in_statement", "while_statement", "do_statement", "try_statement", "switch_statement", "with_statement"),
		Branches:    set("if_statement", "for_statement", "for_in_statement", "while_statement", "do_statement", "catch_clause", "ternary_expression", "switch_case"),
		BoolOps:     set("binary_expression"),
		Terminators: set("return_statement", "throw_statement", "break_statement", "continue_statement"),
		Blocks:      set("statement_block", "program"),
		Calls:       set("call_expression", "new_expression"),
		Imports:     set("import_statement"),
		Comment:     "comment",
	},
}

// Grammar returns the structural description of the language, or nil
func (l Language) Grammar() *Grammar {
	return grammars[l]
}
