// Copyright 2024 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2024 Institute of the Czech National Corpus,
//                Faculty of Arts, Charles University
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vert

import (
	"concbench/engine"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

const maxUnboundedRepeat = 20

type tokenExpr interface {
	match(c *Corpus, pos int) bool
}

type anyToken struct{}

func (e anyToken) match(c *Corpus, pos int) bool {
	return true
}

type attrTest struct {
	attr    string
	negated bool
	re      *regexp.Regexp
}

func (e *attrTest) match(c *Corpus, pos int) bool {
	return e.re.MatchString(c.Value(e.attr, pos)) != e.negated
}

type andExpr []tokenExpr

func (e andExpr) match(c *Corpus, pos int) bool {
	for _, sub := range e {
		if !sub.match(c, pos) {
			return false
		}
	}
	return true
}

type orExpr []tokenExpr

func (e orExpr) match(c *Corpus, pos int) bool {
	for _, sub := range e {
		if sub.match(c, pos) {
			return true
		}
	}
	return false
}

type notExpr struct {
	sub tokenExpr
}

func (e notExpr) match(c *Corpus, pos int) bool {
	return !e.sub.match(c, pos)
}

type seqElem struct {
	tok      tokenExpr
	min, max int
}

type structExpr interface {
	accepts(attrs map[string]string) bool
}

type structAttrTest struct {
	attr    string
	negated bool
	re      *regexp.Regexp
}

func (e *structAttrTest) accepts(attrs map[string]string) bool {
	return e.re.MatchString(attrs[e.attr]) != e.negated
}

type structAnd []structExpr

func (e structAnd) accepts(attrs map[string]string) bool {
	for _, sub := range e {
		if !sub.accepts(attrs) {
			return false
		}
	}
	return true
}

type structOr []structExpr

func (e structOr) accepts(attrs map[string]string) bool {
	for _, sub := range e {
		if sub.accepts(attrs) {
			return true
		}
	}
	return false
}

type structNot struct {
	sub structExpr
}

func (e structNot) accepts(attrs map[string]string) bool {
	return !e.sub.accepts(attrs)
}

type withinSpec struct {
	structName string
	cond       structExpr
}

func (ws *withinSpec) accepts(occ engine.StructOccurrence) bool {
	return ws.cond == nil || ws.cond.accepts(occ.Attrs)
}

type query struct {
	elems []seqElem

	// multiple `within` clauses are conjunctive
	within []*withinSpec
}

// -----

type parser struct {
	src         []rune
	pos         int
	defaultAttr string
	attrs       map[string]bool
}

func (p *parser) errorf(msg string, args ...any) error {
	return fmt.Errorf(
		"%s at position %d: %w", fmt.Sprintf(msg, args...), p.pos, engine.ErrQuerySyntax)
}

func (p *parser) skipSpaces() {
	for p.pos < len(p.src) && unicode.IsSpace(p.src[p.pos]) {
		p.pos++
	}
}

func (p *parser) peek() rune {
	p.skipSpaces()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) expect(r rune) error {
	if p.peek() != r {
		return p.errorf("expected `%c`", r)
	}
	p.pos++
	return nil
}

func (p *parser) hasKeyword(kw string) bool {
	p.skipSpaces()
	end := p.pos + len(kw)
	if end > len(p.src) || string(p.src[p.pos:end]) != kw {
		return false
	}
	return end == len(p.src) || unicode.IsSpace(p.src[end]) || p.src[end] == '<'
}

func (p *parser) ident() (string, error) {
	p.skipSpaces()
	start := p.pos
	for p.pos < len(p.src) {
		r := p.src[p.pos]
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' {
			p.pos++

		} else {
			break
		}
	}
	if start == p.pos {
		return "", p.errorf("expected identifier")
	}
	return string(p.src[start:p.pos]), nil
}

func (p *parser) number() (int, error) {
	p.skipSpaces()
	start := p.pos
	for p.pos < len(p.src) && unicode.IsDigit(p.src[p.pos]) {
		p.pos++
	}
	if start == p.pos {
		return 0, p.errorf("expected number")
	}
	return strconv.Atoi(string(p.src[start:p.pos]))
}

// regexpValue parses a quoted regular expression with optional
// `%c` (ignore case) flag
func (p *parser) regexpValue() (*regexp.Regexp, error) {
	if err := p.expect('"'); err != nil {
		return nil, err
	}
	var buff strings.Builder
	closed := false
	for p.pos < len(p.src) {
		r := p.src[p.pos]
		p.pos++
		if r == '\\' && p.pos < len(p.src) {
			next := p.src[p.pos]
			p.pos++
			if next == '"' {
				buff.WriteRune('"')

			} else {
				buff.WriteRune('\\')
				buff.WriteRune(next)
			}
			continue
		}
		if r == '"' {
			closed = true
			break
		}
		buff.WriteRune(r)
	}
	if !closed {
		return nil, p.errorf("unterminated string")
	}
	flags := ""
	if p.pos+1 < len(p.src) && p.src[p.pos] == '%' && p.src[p.pos+1] == 'c' {
		flags = "(?i)"
		p.pos += 2
	}
	re, err := regexp.Compile(flags + "^(?:" + buff.String() + ")$")
	if err != nil {
		return nil, p.errorf("invalid regular expression: %s", err)
	}
	return re, nil
}

func (p *parser) attrCond() (tokenExpr, error) {
	switch p.peek() {
	case '!':
		p.pos++
		sub, err := p.attrCond()
		if err != nil {
			return nil, err
		}
		return notExpr{sub: sub}, nil
	case '(':
		p.pos++
		sub, err := p.orCond()
		if err != nil {
			return nil, err
		}
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		return sub, nil
	}
	attr, err := p.ident()
	if err != nil {
		return nil, err
	}
	if !p.attrs[attr] {
		return nil, fmt.Errorf("attribute `%s`: %w", attr, engine.ErrUnknownAttr)
	}
	negated := false
	if p.peek() == '!' {
		negated = true
		p.pos++
	}
	if err := p.expect('='); err != nil {
		return nil, err
	}
	re, err := p.regexpValue()
	if err != nil {
		return nil, err
	}
	return &attrTest{attr: attr, negated: negated, re: re}, nil
}

func (p *parser) andCond() (tokenExpr, error) {
	first, err := p.attrCond()
	if err != nil {
		return nil, err
	}
	ans := andExpr{first}
	for p.peek() == '&' {
		p.pos++
		next, err := p.attrCond()
		if err != nil {
			return nil, err
		}
		ans = append(ans, next)
	}
	if len(ans) == 1 {
		return first, nil
	}
	return ans, nil
}

func (p *parser) orCond() (tokenExpr, error) {
	first, err := p.andCond()
	if err != nil {
		return nil, err
	}
	ans := orExpr{first}
	for p.peek() == '|' {
		p.pos++
		next, err := p.andCond()
		if err != nil {
			return nil, err
		}
		ans = append(ans, next)
	}
	if len(ans) == 1 {
		return first, nil
	}
	return ans, nil
}

func (p *parser) token() (tokenExpr, error) {
	switch p.peek() {
	case '[':
		p.pos++
		if p.peek() == ']' {
			p.pos++
			return anyToken{}, nil
		}
		ans, err := p.orCond()
		if err != nil {
			return nil, err
		}
		if err := p.expect(']'); err != nil {
			return nil, err
		}
		return ans, nil
	case '"':
		re, err := p.regexpValue()
		if err != nil {
			return nil, err
		}
		return &attrTest{attr: p.defaultAttr, re: re}, nil
	}
	return nil, p.errorf("expected token specification")
}

func (p *parser) repetition() (int, int, error) {
	if p.pos >= len(p.src) {
		return 1, 1, nil
	}
	switch p.src[p.pos] {
	case '?':
		p.pos++
		return 0, 1, nil
	case '*':
		p.pos++
		return 0, maxUnboundedRepeat, nil
	case '+':
		p.pos++
		return 1, maxUnboundedRepeat, nil
	case '{':
		p.pos++
		from, err := p.number()
		if err != nil {
			return 0, 0, err
		}
		to := from
		if p.peek() == ',' {
			p.pos++
			if p.peek() == '}' {
				to = from + maxUnboundedRepeat

			} else if to, err = p.number(); err != nil {
				return 0, 0, err
			}
		}
		if err := p.expect('}'); err != nil {
			return 0, 0, err
		}
		if to < from {
			return 0, 0, p.errorf("invalid repetition range")
		}
		return from, to, nil
	}
	return 1, 1, nil
}

func (p *parser) parseStructTerm() (structExpr, error) {
	switch p.peek() {
	case '!':
		p.pos++
		sub, err := p.parseStructTerm()
		if err != nil {
			return nil, err
		}
		return structNot{sub: sub}, nil
	case '(':
		p.pos++
		sub, err := p.parseStructOr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		return sub, nil
	}
	attr, err := p.ident()
	if err != nil {
		return nil, err
	}
	negated := false
	if p.peek() == '!' {
		negated = true
		p.pos++
	}
	if err := p.expect('='); err != nil {
		return nil, err
	}
	re, err := p.regexpValue()
	if err != nil {
		return nil, err
	}
	return &structAttrTest{attr: attr, negated: negated, re: re}, nil
}

// parseStructAnd parses conjunction of structural attribute conditions,
// the `&` operator is optional (`<doc a="x" b="y"/>` is valid)
func (p *parser) parseStructAnd() (structExpr, error) {
	ans := structAnd{}
	for {
		switch p.peek() {
		case '/', ')', '|', '>', 0:
			if len(ans) == 0 {
				return nil, p.errorf("expected structural attribute condition")
			}
			if len(ans) == 1 {
				return ans[0], nil
			}
			return ans, nil
		case '&':
			p.pos++
		}
		term, err := p.parseStructTerm()
		if err != nil {
			return nil, err
		}
		ans = append(ans, term)
	}
}

func (p *parser) parseStructOr() (structExpr, error) {
	first, err := p.parseStructAnd()
	if err != nil {
		return nil, err
	}
	ans := structOr{first}
	for p.peek() == '|' {
		p.pos++
		next, err := p.parseStructAnd()
		if err != nil {
			return nil, err
		}
		ans = append(ans, next)
	}
	if len(ans) == 1 {
		return first, nil
	}
	return ans, nil
}

func (p *parser) within() (*withinSpec, error) {
	if err := p.expect('<'); err != nil {
		return nil, err
	}
	name, err := p.ident()
	if err != nil {
		return nil, err
	}
	ans := &withinSpec{structName: name}
	if p.peek() != '/' {
		ans.cond, err = p.parseStructOr()
		if err != nil {
			return nil, err
		}
	}
	if err := p.expect('/'); err != nil {
		return nil, err
	}
	if err := p.expect('>'); err != nil {
		return nil, err
	}
	return ans, nil
}

func (p *parser) parse() (*query, error) {
	ans := &query{}
	for {
		r := p.peek()
		if r == 0 {
			break
		}
		if p.hasKeyword("within") {
			p.pos += len("within")
			ws, err := p.within()
			if err != nil {
				return nil, err
			}
			ans.within = append(ans.within, ws)
			if p.peek() != 0 && !p.hasKeyword("within") {
				return nil, p.errorf("unexpected input after `within`")
			}
			continue
		}
		if len(ans.within) > 0 {
			return nil, p.errorf("unexpected input after `within`")
		}
		tok, err := p.token()
		if err != nil {
			return nil, err
		}
		from, to, err := p.repetition()
		if err != nil {
			return nil, err
		}
		ans.elems = append(ans.elems, seqElem{tok: tok, min: from, max: to})
	}
	if len(ans.elems) == 0 {
		return nil, p.errorf("empty query")
	}
	return ans, nil
}

func parseQuery(src string, defaultAttr string, attrs []string) (*query, error) {
	p := &parser{
		src:         []rune(src),
		defaultAttr: defaultAttr,
		attrs:       make(map[string]bool),
	}
	for _, a := range attrs {
		p.attrs[a] = true
	}
	return p.parse()
}
