package callgraph

import (
	"encoding/json"
	"fmt"
	"io"
)

// Tags used in the flat entity table (stride-4, tag-prefixed records).
const (
	tagClass           = "C"
	tagDynamicFunction = "F" // dynamically-callable function
	tagStaticFunction  = "S" // static-only function
	tagField           = "V"
)

// entityStride is the number of slots each entity record occupies.
const entityStride = 4

// noSelectorID marks a function without an assigned dispatch-table id.
const noSelectorID = -1

// Tags used in the flat trace-event stream.
const (
	tagRoots        = "R"
	tagCompiled     = "C"
	tagEnd          = "E"
	tagDynamicCall  = "S" // followed by a string-pool ref
	tagDispatchCall = "T" // followed by a dispatch-table id
)

// Selector naming conventions embedded in the string pool. They are part of
// the trace format contract and drive dispatch resolution.
const (
	dynamicPrefix          = "dyn:"
	getterPrefix           = "get:"
	tearOffPrefix          = "[tear-off] "
	tearOffExtractorPrefix = "[tear-off-extractor] "
)

// FormatError reports a malformed trace document. A format error aborts the
// whole load; no partial graph is returned.
type FormatError struct {
	Msg string
}

func (e *FormatError) Error() string {
	return "trace format error: " + e.Msg
}

func formatErrorf(format string, args ...any) error {
	return &FormatError{Msg: fmt.Sprintf(format, args...)}
}

// traceDocument is the decoded JSON artifact written by the AOT compiler's
// tracer: three named flat arrays.
type traceDocument struct {
	Strings  []string `json:"strings"`
	Entities []any    `json:"entities"`
	Trace    []any    `json:"trace"`
}

func decodeDocument(r io.Reader) (*traceDocument, error) {
	var doc traceDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, formatErrorf("decoding trace document: %v", err)
	}
	return &doc, nil
}

// asInt converts a raw token to an integer. JSON numbers decode as float64.
func asInt(tok any) (int, bool) {
	f, ok := tok.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func asTag(tok any) (string, bool) {
	s, ok := tok.(string)
	return s, ok
}
