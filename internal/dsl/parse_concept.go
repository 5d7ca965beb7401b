package dsl

// ParseConcept parses one concept source file into a ConceptSpec. It
// never returns a partial AST: any syntax error aborts with nil and an
// error carrying file/line/column — a *SyntaxError for a lexical error,
// a *gqlerror.Error for a grammar error.
func ParseConcept(file, src string) (*ConceptSpec, error) {
	p, err := newParser(file, src)
	if err != nil {
		return nil, err
	}
	return p.parseConceptSpec()
}

func (p *parser) parseConceptSpec() (*ConceptSpec, error) {
	anns, err := p.parseAnnotations()
	if err != nil {
		return nil, err
	}
	start := p.peek().Pos
	if _, err := p.expectKeyword("concept"); err != nil {
		return nil, err
	}
	nameTok, err := p.expectIdent()
	if err != nil {
		return nil, err
	}

	spec := &ConceptSpec{
		Name:        nameTok.Text,
		Annotations: anns,
		Version:     1,
		Pos:         start,
	}
	for _, a := range anns {
		if a.Name == "version" && a.Arg != nil {
			spec.Version = *a.Arg
		}
	}

	if p.tryPunct("[") {
		for !p.tryPunct("]") {
			if len(spec.TypeParams) > 0 {
				if _, err := p.expectPunct(","); err != nil {
					return nil, err
				}
				if p.tryPunct("]") {
					break
				}
			}
			tp, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			spec.TypeParams = append(spec.TypeParams, tp.Text)
		}
	}

	if _, err := p.expectPunct("{"); err != nil {
		return nil, err
	}

	sawState, sawActions := false, false
	for !p.tryPunct("}") {
		switch {
		case p.tryKeyword("purpose"):
			text, err := p.parseBraceText()
			if err != nil {
				return nil, err
			}
			spec.Purpose = text
		case p.tryKeyword("state"):
			fields, err := p.parseStateBlock()
			if err != nil {
				return nil, err
			}
			spec.State = fields
			sawState = true
		case p.tryKeyword("actions"):
			actions, err := p.parseActionsBlock()
			if err != nil {
				return nil, err
			}
			spec.Actions = actions
			sawActions = true
		case p.tryKeyword("invariant"):
			inv, err := p.parseInvariantBlock()
			if err != nil {
				return nil, err
			}
			spec.Invariants = append(spec.Invariants, inv)
		case p.tryKeyword("capabilities"):
			caps, err := p.parseCapabilitiesBlock()
			if err != nil {
				return nil, err
			}
			spec.Capabilities = caps
		default:
			return nil, p.errorf("unexpected token %q in concept body", p.peek().Text)
		}
	}

	if !sawState {
		return nil, NewParseError(start, "concept %q is missing a state block", spec.Name)
	}
	if !sawActions {
		return nil, NewParseError(start, "concept %q is missing an actions block", spec.Name)
	}
	return spec, nil
}

func (p *parser) parseStateBlock() ([]StateField, error) {
	if _, err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	var fields []StateField
	for !p.tryPunct("}") {
		nameTok, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		typ, err := p.parseTypeExpr()
		if err != nil {
			return nil, err
		}
		fields = append(fields, StateField{Name: nameTok.Text, Type: typ, Pos: nameTok.Pos})
		p.tryPunct(",")
	}
	return fields, nil
}

func (p *parser) parseActionsBlock() ([]ActionDecl, error) {
	if _, err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	var actions []ActionDecl
	for !p.tryPunct("}") {
		action, err := p.parseActionDecl()
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	if len(actions) == 0 {
		return nil, p.errorf("actions block must declare at least one action")
	}
	return actions, nil
}

func (p *parser) parseActionDecl() (ActionDecl, error) {
	start := p.peek().Pos
	if _, err := p.expectKeyword("action"); err != nil {
		return ActionDecl{}, err
	}
	nameTok, err := p.expectIdent()
	if err != nil {
		return ActionDecl{}, err
	}
	params, err := p.parseParamList()
	if err != nil {
		return ActionDecl{}, err
	}
	if _, err := p.expectPunct("{"); err != nil {
		return ActionDecl{}, err
	}
	var variants []VariantDecl
	for !p.tryPunct("}") {
		variant, err := p.parseVariantDecl()
		if err != nil {
			return ActionDecl{}, err
		}
		variants = append(variants, variant)
	}
	if len(variants) == 0 {
		return ActionDecl{}, NewParseError(start, "action %q must declare at least one variant", nameTok.Text)
	}
	return ActionDecl{Name: nameTok.Text, Params: params, Variants: variants, Pos: start}, nil
}

func (p *parser) parseVariantDecl() (VariantDecl, error) {
	start := p.peek().Pos
	if _, err := p.expectPunct("->"); err != nil {
		return VariantDecl{}, err
	}
	tagTok, err := p.expectIdent()
	if err != nil {
		return VariantDecl{}, err
	}
	params, err := p.parseParamList()
	if err != nil {
		return VariantDecl{}, err
	}
	body, err := p.parseBraceText()
	if err != nil {
		return VariantDecl{}, err
	}
	return VariantDecl{Tag: tagTok.Text, Params: params, Body: body, Pos: start}, nil
}

func (p *parser) parseInvariantBlock() (InvariantDecl, error) {
	start := p.peek().Pos
	if _, err := p.expectPunct("{"); err != nil {
		return InvariantDecl{}, err
	}
	var inv InvariantDecl
	inv.Pos = start
	for !p.tryPunct("}") {
		switch {
		case p.tryKeyword("free"):
			nameTok, err := p.expectIdent()
			if err != nil {
				return InvariantDecl{}, err
			}
			if _, err := p.expectPunct(":"); err != nil {
				return InvariantDecl{}, err
			}
			typeTok, err := p.expectIdent()
			if err != nil {
				return InvariantDecl{}, err
			}
			inv.FreeVariables = append(inv.FreeVariables, FreeVar{
				Name: nameTok.Text, ParamType: typeTok.Text, Pos: nameTok.Pos,
			})
		case p.tryKeyword("after"):
			ref, err := p.parsePatternRef()
			if err != nil {
				return InvariantDecl{}, err
			}
			inv.After = append(inv.After, ref)
		case p.tryKeyword("then"):
			ref, err := p.parsePatternRef()
			if err != nil {
				return InvariantDecl{}, err
			}
			inv.Then = append(inv.Then, ref)
		default:
			return InvariantDecl{}, p.errorf("unexpected token %q in invariant body", p.peek().Text)
		}
	}
	if len(inv.After) == 0 {
		return InvariantDecl{}, NewParseError(start, "invariant must declare at least one after pattern")
	}
	if len(inv.Then) == 0 {
		return InvariantDecl{}, NewParseError(start, "invariant must declare at least one then pattern")
	}
	return inv, nil
}

// parsePatternRef parses `ACTION(callArgs) -> VARIANT(resultArgs)`.
func (p *parser) parsePatternRef() (PatternRef, error) {
	start := p.peek().Pos
	actionTok, err := p.expectIdent()
	if err != nil {
		return PatternRef{}, err
	}
	if _, err := p.expectPunct("("); err != nil {
		return PatternRef{}, err
	}
	callArgs, err := p.parseBindingList(")")
	if err != nil {
		return PatternRef{}, err
	}
	if _, err := p.expectPunct("->"); err != nil {
		return PatternRef{}, err
	}
	variantTok, err := p.expectIdent()
	if err != nil {
		return PatternRef{}, err
	}
	if _, err := p.expectPunct("("); err != nil {
		return PatternRef{}, err
	}
	resultArgs, err := p.parseBindingList(")")
	if err != nil {
		return PatternRef{}, err
	}
	return PatternRef{
		Action:      actionTok.Text,
		VariantName: variantTok.Text,
		CallArgs:    callArgs,
		ResultArgs:  resultArgs,
		Pos:         start,
	}, nil
}

func (p *parser) parseCapabilitiesBlock() ([]string, error) {
	if _, err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	var caps []string
	for !p.tryPunct("}") {
		tok, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		caps = append(caps, tok.Text)
		p.tryPunct(",")
	}
	return caps, nil
}
