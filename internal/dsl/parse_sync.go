package dsl

// ParseSyncFile parses a sync source file into the list of raw (uncompiled)
// syncs it declares.
func ParseSyncFile(file, src string) ([]*SyncDecl, error) {
	p, err := newParser(file, src)
	if err != nil {
		return nil, err
	}
	var syncs []*SyncDecl
	for !p.atEOF() {
		s, err := p.parseSyncDecl()
		if err != nil {
			return nil, err
		}
		syncs = append(syncs, s)
	}
	return syncs, nil
}

func (p *parser) parseSyncDecl() (*SyncDecl, error) {
	anns, err := p.parseAnnotations()
	if err != nil {
		return nil, err
	}
	start := p.peek().Pos
	if _, err := p.expectKeyword("sync"); err != nil {
		return nil, err
	}
	nameTok, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	// Annotations may also trail the name, e.g. `sync Foo @eager {`.
	trailing, err := p.parseAnnotations()
	if err != nil {
		return nil, err
	}
	anns = append(anns, trailing...)

	s := &SyncDecl{Name: nameTok.Text, Annotations: anns, Pos: start}

	if _, err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	sawWhen, sawThen := false, false
	for !p.tryPunct("}") {
		switch {
		case p.tryKeyword("when"):
			patterns, err := p.parseWhenBlock()
			if err != nil {
				return nil, err
			}
			s.When = patterns
			sawWhen = true
		case p.tryKeyword("where"):
			clauses, err := p.parseWhereBlock()
			if err != nil {
				return nil, err
			}
			s.Where = clauses
		case p.tryKeyword("then"):
			invocations, err := p.parseThenBlock()
			if err != nil {
				return nil, err
			}
			s.Then = invocations
			sawThen = true
		default:
			return nil, p.errorf("unexpected token %q in sync body", p.peek().Text)
		}
	}
	if !sawWhen {
		return nil, NewParseError(start, "sync %q is missing a when block", s.Name)
	}
	if !sawThen {
		return nil, NewParseError(start, "sync %q is missing a then block", s.Name)
	}
	return s, nil
}

// parseConceptAction parses a slash-separated concept identifier up to (but
// not including) the final `/ACTION` segment, returning the concept URI
// and the action name.
func (p *parser) parseConceptAction() (uri string, action string, pos Position, err error) {
	first, err := p.expectIdent()
	if err != nil {
		return "", "", Position{}, err
	}
	pos = first.Pos
	uri = first.Text
	for p.tryPunct("/") {
		seg, err := p.expectIdent()
		if err != nil {
			return "", "", Position{}, err
		}
		// The final segment before `:` / `[` is the action name; anything
		// before that extends the concept URI.
		if p.peek().Kind == TokPunct && (p.peek().Text == ":" || p.peek().Text == "[") {
			action = seg.Text
			return uri, action, pos, nil
		}
		uri = uri + "/" + seg.Text
	}
	return "", "", pos, p.errorf("expected CONCEPT/ACTION reference")
}

func (p *parser) parseWhenBlock() ([]WhenPattern, error) {
	if _, err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	var patterns []WhenPattern
	for !p.tryPunct("}") {
		pat, err := p.parseWhenPattern()
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, pat)
	}
	if len(patterns) == 0 {
		return nil, p.errorf("when block must declare at least one pattern")
	}
	return patterns, nil
}

func (p *parser) parseWhenPattern() (WhenPattern, error) {
	uri, action, pos, err := p.parseConceptAction()
	if err != nil {
		return WhenPattern{}, err
	}
	if _, err := p.expectPunct(":"); err != nil {
		return WhenPattern{}, err
	}
	if _, err := p.expectPunct("["); err != nil {
		return WhenPattern{}, err
	}
	input, err := p.parseBindingList("]")
	if err != nil {
		return WhenPattern{}, err
	}
	if _, err := p.expectPunct("=>"); err != nil {
		return WhenPattern{}, err
	}
	if _, err := p.expectPunct("["); err != nil {
		return WhenPattern{}, err
	}
	output, err := p.parseBindingList("]")
	if err != nil {
		return WhenPattern{}, err
	}
	return WhenPattern{ConceptURI: uri, Action: action, Input: input, Output: output, Pos: pos}, nil
}

func (p *parser) parseWhereBlock() ([]WhereClause, error) {
	if _, err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	var clauses []WhereClause
	for !p.tryPunct("}") {
		clause, err := p.parseWhereClause()
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}
	return clauses, nil
}

func (p *parser) parseWhereClause() (WhereClause, error) {
	pos := p.peek().Pos
	switch {
	case p.tryKeyword("query"):
		uri, relation, qpos, err := p.parseConceptRelation()
		if err != nil {
			return WhereClause{}, err
		}
		if _, err := p.expectPunct("["); err != nil {
			return WhereClause{}, err
		}
		criteria, err := p.parseBindingList("]")
		if err != nil {
			return WhereClause{}, err
		}
		if _, err := p.expectPunct("->"); err != nil {
			return WhereClause{}, err
		}
		if _, err := p.expectPunct("?"); err != nil {
			return WhereClause{}, err
		}
		varTok, err := p.expectIdent()
		if err != nil {
			return WhereClause{}, err
		}
		return WhereClause{
			Kind: WhereQuery, ConceptURI: uri, Relation: relation,
			Criteria: criteria, BindVar: varTok.Text, Pos: qpos,
		}, nil
	case p.tryKeyword("bind"):
		if _, err := p.expectPunct("?"); err != nil {
			return WhereClause{}, err
		}
		varTok, err := p.expectIdent()
		if err != nil {
			return WhereClause{}, err
		}
		if _, err := p.expectPunct(":"); err != nil {
			return WhereClause{}, err
		}
		if _, err := p.expectPunct("="); err != nil {
			return WhereClause{}, err
		}
		val, err := p.parseValueExpr()
		if err != nil {
			return WhereClause{}, err
		}
		return WhereClause{Kind: WhereBind, BindVar: varTok.Text, BindValue: val, Pos: pos}, nil
	default:
		return WhereClause{}, p.errorf("expected 'query' or 'bind' in where clause, got %q", p.peek().Text)
	}
}

// parseConceptRelation parses `Concept/relation` (a concept URI followed
// by a relation name, used only in where-clause state queries).
func (p *parser) parseConceptRelation() (uri string, relation string, pos Position, err error) {
	first, err := p.expectIdent()
	if err != nil {
		return "", "", Position{}, err
	}
	pos = first.Pos
	uri = first.Text
	for p.tryPunct("/") {
		seg, err := p.expectIdent()
		if err != nil {
			return "", "", Position{}, err
		}
		if p.peek().Kind == TokPunct && p.peek().Text == "[" {
			relation = seg.Text
			return uri, relation, pos, nil
		}
		uri = uri + "/" + seg.Text
	}
	return "", "", pos, p.errorf("expected CONCEPT/RELATION reference")
}

func (p *parser) parseThenBlock() ([]ThenInvocation, error) {
	if _, err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	var invocations []ThenInvocation
	for !p.tryPunct("}") {
		inv, err := p.parseThenInvocation()
		if err != nil {
			return nil, err
		}
		invocations = append(invocations, inv)
	}
	if len(invocations) == 0 {
		return nil, p.errorf("then block must declare at least one invocation")
	}
	return invocations, nil
}

func (p *parser) parseThenInvocation() (ThenInvocation, error) {
	uri, action, pos, err := p.parseConceptAction()
	if err != nil {
		return ThenInvocation{}, err
	}
	if _, err := p.expectPunct("["); err != nil {
		return ThenInvocation{}, err
	}
	fields, err := p.parseBindingList("]")
	if err != nil {
		return ThenInvocation{}, err
	}
	return ThenInvocation{ConceptURI: uri, Action: action, Fields: fields, Pos: pos}, nil
}
