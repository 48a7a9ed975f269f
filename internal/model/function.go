package model

// FunctionRecord describes one function/method definition within a
// SourceFile. Offsets are byte positions into the original source and the
// span [StartOffset, EndOffset) covers the entire definition, including the
// declaration header - never just the body.
type FunctionRecord struct {
	Name          string
	SignatureText string
	ParamNames    []string
	StartOffset   int
	EndOffset     int
	StartLine     int // 1-indexed, inclusive
	EndLine       int // 1-indexed, inclusive
	IndentPrefix  string
	BodyBytes     []byte

	// Language the function was parsed from; carried alongside the record so
	// downstream stages (generator, fingerprint) don't need the SourceFile.
	Language Language

	// ParentRef is non-empty for a nested function: the Name of the
	// enclosing Function Record. The outer record's span still covers the
	// nested one - inner probe sites are folded into the
	// outer function's plan, the nested FunctionRecord exists only for
	// bookkeeping and is never dispatched as its own Work Item.
	ParentRef string
}

// OriginalText returns the function's exact original source text,
// rebuilt from StartOffset/EndOffset against the full file bytes.
func (f FunctionRecord) OriginalText(fileBytes []byte) []byte {
	if f.StartOffset < 0 || f.EndOffset > len(fileBytes) || f.StartOffset > f.EndOffset {
		return nil
	}
	return fileBytes[f.StartOffset:f.EndOffset]
}
