// Copyright 2019-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package filter

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
}

// lex splits an expression into parenthesis and whitespace-delimited
// words; keyword/operator recognition happens in the parser, following
// minicli's split between a dumb tokenizer and a grammar-aware consumer
// (src/minicli/input_lexer.go).
func lex(expr string) ([]token, error) {
	var toks []token
	var word strings.Builder

	flush := func() {
		if word.Len() > 0 {
			toks = append(toks, token{kind: tokIdent, text: word.String()})
			word.Reset()
		}
	}

	for _, r := range expr {
		switch {
		case r == '(':
			flush()
			toks = append(toks, token{kind: tokLParen, text: "("})
		case r == ')':
			flush()
			toks = append(toks, token{kind: tokRParen, text: ")"})
		case r == ' ' || r == '\t' || r == '\n':
			flush()
		default:
			word.WriteRune(r)
		}
	}
	flush()
	toks = append(toks, token{kind: tokEOF})

	return toks, nil
}

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "EOF"
	case tokIdent:
		return "ident"
	case tokLParen:
		return "("
	case tokRParen:
		return ")"
	default:
		return fmt.Sprintf("tokenKind(%d)", int(k))
	}
}
