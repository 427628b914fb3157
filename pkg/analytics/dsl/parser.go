// Package dsl parses the textual form of dataset expressions, for example
//
//	clinical_events.where(clinical_events.snomedct_code.is_in(codelists.asthma)).exists_for_patient()
package dsl

import (
	"fmt"
	"strings"

	"github.com/synaptica-ai/studydata/pkg/query"
	"github.com/synaptica-ai/studydata/pkg/terminology"
)

// Codelists resolves codelists.<name> references.
type Codelists interface {
	Lookup(name string) (terminology.Codelist, bool)
}

type namespace struct{}

type parser struct {
	tokens    []token
	pos       int
	codelists Codelists
}

// Parse parses a single expression and type checks the result.
func Parse(input string, codelists Codelists) (query.Node, error) {
	tokens, err := tokenize(strings.TrimSpace(input))
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens, codelists: codelists}
	v, err := p.expr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.errorf(tok, "unexpected %s", tok)
	}

	series, ok := v.(query.Series)
	if !ok {
		return nil, fmt.Errorf("expression does not produce a series")
	}
	node := series.Node()
	if _, err := query.Check(node); err != nil {
		return nil, err
	}
	return node, nil
}

// ParseSeries parses input and wraps it for binding to a dataset.
func ParseSeries(input string, codelists Codelists) (query.Series, error) {
	node, err := Parse(input, codelists)
	if err != nil {
		return query.Series{}, err
	}
	return query.NewSeries(node), nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) accept(punct string) bool {
	if tok := p.peek(); tok.kind == tokPunct && tok.text == punct {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(punct string) error {
	if !p.accept(punct) {
		tok := p.peek()
		return p.errorf(tok, "expected %q, got %s", punct, tok)
	}
	return nil
}

func (p *parser) errorf(tok token, format string, args ...interface{}) error {
	return &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) expr() (interface{}, error) {
	v, err := p.primary()
	if err != nil {
		return nil, err
	}
	for p.accept(".") {
		name := p.next()
		if name.kind != tokIdent {
			return nil, p.errorf(name, "expected name after '.', got %s", name)
		}
		if v, err = p.member(v, name); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (p *parser) primary() (interface{}, error) {
	tok := p.next()
	switch tok.kind {
	case tokIdent:
		switch tok.text {
		case query.PatientsTable:
			return query.Patients.Frame, nil
		case query.ClinicalEventsTable:
			return query.ClinicalEvents.Frame, nil
		case "codelists":
			return namespace{}, nil
		case "true", "false":
			return query.Literal(tok.text == "true", query.Bool), nil
		case "not":
			args, err := p.seriesArgs(tok, 1)
			if err != nil {
				return nil, err
			}
			return args[0].Not(), nil
		case "and", "or":
			args, err := p.seriesArgs(tok, 2)
			if err != nil {
				return nil, err
			}
			if tok.text == "and" {
				return args[0].And(args[1]), nil
			}
			return args[0].Or(args[1]), nil
		}
		return nil, p.errorf(tok, "unknown name %q", tok.text)
	case tokString:
		return query.Literal(tok.text, query.String), nil
	case tokPunct:
		if tok.text == "[" {
			return p.list(tok)
		}
	}
	return nil, p.errorf(tok, "unexpected %s", tok)
}

func (p *parser) member(v interface{}, name token) (interface{}, error) {
	switch recv := v.(type) {
	case namespace:
		if p.codelists == nil {
			return nil, p.errorf(name, "no codelists available")
		}
		cl, ok := p.codelists.Lookup(name.text)
		if !ok {
			return nil, p.errorf(name, "unknown codelist %q", name.text)
		}
		return cl, nil
	case query.Frame:
		if tok := p.peek(); tok.kind != tokPunct || tok.text != "(" {
			return recv.Column(name.text), nil
		}
		switch name.text {
		case "where":
			args, err := p.seriesArgs(name, 1)
			if err != nil {
				return nil, err
			}
			return recv.Where(args[0]), nil
		case "exists_for_patient":
			if err := p.noArgs(); err != nil {
				return nil, err
			}
			return recv.ExistsForPatient(), nil
		case "count_for_patient":
			if err := p.noArgs(); err != nil {
				return nil, err
			}
			return recv.CountForPatient(), nil
		}
		return nil, p.errorf(name, "unknown table method %q", name.text)
	case query.Series:
		if name.text != "is_in" {
			return nil, p.errorf(name, "unknown series method %q", name.text)
		}
		if err := p.expect("("); err != nil {
			return nil, err
		}
		arg, err := p.expr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		cl, ok := arg.(terminology.Codelist)
		if !ok {
			return nil, p.errorf(name, "is_in expects a codelist")
		}
		return recv.IsIn(cl), nil
	}
	return nil, p.errorf(name, "cannot access %q here", name.text)
}

func (p *parser) seriesArgs(fn token, n int) ([]query.Series, error) {
	if err := p.expect("("); err != nil {
		return nil, err
	}
	args := make([]query.Series, 0, n)
	for i := 0; i < n; i++ {
		if i > 0 {
			if err := p.expect(","); err != nil {
				return nil, err
			}
		}
		v, err := p.expr()
		if err != nil {
			return nil, err
		}
		s, ok := v.(query.Series)
		if !ok {
			return nil, p.errorf(fn, "%s expects a series argument", fn.text)
		}
		args = append(args, s)
	}
	return args, p.expect(")")
}

func (p *parser) noArgs() error {
	if err := p.expect("("); err != nil {
		return err
	}
	return p.expect(")")
}

// list parses an inline codelist of SNOMED CT codes.
func (p *parser) list(open token) (interface{}, error) {
	var codes []string
	for !p.accept("]") {
		if len(codes) > 0 {
			if err := p.expect(","); err != nil {
				return nil, err
			}
		}
		tok := p.next()
		if tok.kind != tokString {
			return nil, p.errorf(tok, "expected code string, got %s", tok)
		}
		codes = append(codes, tok.text)
	}
	cl, err := terminology.NewCodelist("", terminology.SystemSNOMEDCT, codes...)
	if err != nil {
		return nil, p.errorf(open, "%v", err)
	}
	return cl, nil
}
