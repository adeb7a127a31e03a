package expr

import (
	"github.com/alecthomas/participle"
	"github.com/alecthomas/participle/lexer"
)

var (
	exprLexer = lexer.Must(lexer.Regexp(`(\s+)` +
		`|(?P<Keyword>(?i)\b(?:AND|OR|NOT|IS|NULL|TRUE|FALSE|IPREFIX|ISUFFIX|ICONTAINS|PREFIX|SUFFIX|CONTAINS)\b)` +
		`|(?P<Ident>[a-zA-Z_][a-zA-Z0-9_]*)` +
		`|(?P<String>"(?:[^\\"]|\\.)*"|'(?:[^\\']|\\.)*')` +
		`|(?P<Number>[-+]?(?:\d+(?:\.\d*)?|\.\d+)(?:[eE][-+]?\d+)?)` +
		`|(?P<Operator><=|>=|!=|<>|=|<|>|\(|\))`,
	))

	parser = participle.MustBuild(
		&expression{},
		participle.Lexer(exprLexer),
		participle.Unquote("String"),
		participle.CaseInsensitive("Keyword"),
	)
)

type (
	expression struct {
		Or []*andCondition `@@ { "OR" @@ }`
	}

	andCondition struct {
		And []*term `@@ { "AND" @@ }`
	}

	term struct {
		Not  bool        `[ @"NOT" ]`
		Cond *condition  `( @@`
		Expr *expression `| "(" @@ ")" )`
	}

	condition struct {
		Field string     `@Ident`
		Null  *nullCheck `( @@`
		Op    string     `| @( "<=" | ">=" | "!=" | "<>" | "=" | "<" | ">" | "IPREFIX" | "ISUFFIX" | "ICONTAINS" | "PREFIX" | "SUFFIX" | "CONTAINS" )`
		Value *operand   `  @@ )`
	}

	nullCheck struct {
		Not bool `"IS" [ @"NOT" ] "NULL"`
	}

	operand struct {
		Str    *string `  @String`
		Number *string `| @Number`
		Bool   *string `| @( "TRUE" | "FALSE" )`
		Null   bool    `| @"NULL"`
	}
)
