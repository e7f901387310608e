package expr

// Raw is an opaque expression: a kind name plus its NFTA_EXPR_DATA payload,
// carried verbatim. ParseOne falls back to it for expression kinds this
// package has no decoder for, so listing a chain never fails on an
// unfamiliar expression.
type Raw struct {
	ExprName string
	Data     []byte
}

// Name implements Any.
func (e *Raw) Name() string { return e.ExprName }

// Marshal implements Any.
func (e *Raw) Marshal(fam byte) ([]byte, error) {
	return marshalExpr(e.ExprName, e.Data)
}

// Unmarshal implements Any.
func (e *Raw) Unmarshal(fam byte, data []byte) error {
	e.Data = append([]byte(nil), data...)
	return nil
}
