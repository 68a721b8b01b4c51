// Package asm converts organism programs to and from a small C-like text
// syntax. Grammar is defined as Go structs with tags.
package asm

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// AST node types, parsed from source and encoded by the assembler

// Program is the top-level AST node
type Program struct {
	Statements []*Statement `@@*`
}

// Statement is one instruction, or a block instruction with its body
type Statement struct {
	If     *If     `  @@`
	For    *For    `| @@`
	Nop    bool    `| @"nop"`
	Assign *Assign `| @@`
}

// If: if vA rel vB { ... }
type If struct {
	Pos   lexer.Position
	Left  string       `"if" @Reg`
	Rel   string       `@("<" | ">" | "==" | "!=")`
	Right string       `@Reg`
	Body  []*Statement `"{" @@* "}"`
}

// For: for (vA = vB; vA < vC; vA++) { ... }
type For struct {
	Pos  lexer.Position
	Var  string       `"for" "(" @Reg "="`
	From string       `@Reg ";"`
	Cond string       `@Reg "<"`
	To   string       `@Reg ";"`
	Inc  string       `@Reg "++" ")"`
	Body []*Statement `"{" @@* "}"`
}

// Assign: vA = <call | immediate | expression>
type Assign struct {
	Pos  lexer.Position
	Dst  string `@Reg "="`
	Call *Call  `( @@`
	Imm  *int   `| @Int`
	Expr *Expr  `| @@ )`
}

// Call: name(vB, vC)
type Call struct {
	Name string   `@Ident "("`
	Args []string `( @Reg ( "," @Reg )* )? ")"`
}

// Expr: vB, or vB op vC
type Expr struct {
	Left string  `@Reg`
	Rest *Binary `@@?`
}

// Binary is the operator half of an expression
type Binary struct {
	Op    string `@Op`
	Right string `@Reg`
}

var asmLexer = lexer.MustSimple([]lexer.SimpleRule{
	// Skip whitespace and comments
	{Name: "Whitespace", Pattern: `[\s]+`},
	{Name: "Comment", Pattern: `#[^\n]*`},

	// Registers before identifiers: v0, v1, ...
	{Name: "Reg", Pattern: `v[0-9]+`},
	{Name: "Int", Pattern: `-?[0-9]+`},

	// Longest operators first
	{Name: "Op", Pattern: `>>>|<<|>>|<=|==|!=|\+\+|[-+*/%&|^<>]`},
	{Name: "Punct", Pattern: `[(){};,=]`},

	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
})

// Parser is the program parser
var Parser = participle.MustBuild[Program](
	participle.Lexer(asmLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.UseLookahead(2),
)

// Parse parses program source into a Program AST
func Parse(filename, source string) (*Program, error) {
	return Parser.ParseString(filename, source)
}
