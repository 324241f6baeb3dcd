package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad    Phase = "load"    // schema graph loading
	PhaseResolve Phase = "resolve" // type and constant lookup
	PhasePlan    Phase = "plan"    // struct layout planning
	PhaseDefault Phase = "default" // default value encoding
	PhaseEncode  Phase = "encode"  // value tree to bytes
	PhaseDecode  Phase = "decode"  // bytes to value tree
)

// Kind categorizes the error
type Kind string

const (
	KindUnresolvedType     Kind = "unresolved_type"
	KindCyclicReference    Kind = "cyclic_reference"
	KindInvalidDefault     Kind = "invalid_default"
	KindDuplicateOrdinal   Kind = "duplicate_ordinal"
	KindNonMinimalUnionTag Kind = "non_minimal_union_tag"
	KindInvalidSchema      Kind = "invalid_schema"
	KindTypeMismatch       Kind = "type_mismatch"
	KindOutOfBounds        Kind = "out_of_bounds"
	KindInvalidData        Kind = "invalid_data"
	KindTruncated          Kind = "truncated"
	KindUnsupported        Kind = "unsupported"
	KindAllocation         Kind = "allocation"
	KindFieldUnknown       Kind = "field_unknown"
	KindInvalidVariant     Kind = "invalid_variant"
	KindOverflow           Kind = "overflow"
	KindLimitExceeded      Kind = "limit_exceeded"
	KindNotFound           Kind = "not_found"
	KindInvalidInput       Kind = "invalid_input"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Type   string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Type != "" {
		b.WriteString(": type ")
		b.WriteString(e.Type)
	}

	if e.Detail != "" {
		if e.Type != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. An empty Phase in the
// target matches any phase.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return (t.Phase == "" || e.Phase == t.Phase) && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Type sets the schema type name
func (b *Builder) Type(t string) *Builder {
	b.err.Type = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// UnresolvedType creates a name lookup failure
func UnresolvedType(path []string, name string) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindUnresolvedType,
		Path:   path,
		Detail: fmt.Sprintf("no declaration named %q in scope", name),
		Value:  name,
	}
}

// CyclicReference creates a constant resolution cycle error
func CyclicReference(chain []string) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindCyclicReference,
		Path:   chain[:1],
		Detail: "constant cycle: " + strings.Join(chain, " -> "),
	}
}

// InvalidDefault creates an error for a literal that does not fit its declared type
func InvalidDefault(path []string, typeName string, value any, detail string) *Error {
	return &Error{
		Phase:  PhaseDefault,
		Kind:   KindInvalidDefault,
		Path:   path,
		Type:   typeName,
		Detail: detail,
		Value:  value,
	}
}

// DuplicateOrdinal creates an error for two members claiming one ordinal
func DuplicateOrdinal(structName string, ordinal int, first, second string) *Error {
	return &Error{
		Phase:  PhasePlan,
		Kind:   KindDuplicateOrdinal,
		Path:   []string{structName},
		Detail: fmt.Sprintf("ordinal @%d claimed by both %q and %q", ordinal, first, second),
		Value:  ordinal,
	}
}

// NonMinimalUnionTag reports a broken discriminant assignment. It always
// indicates a bug in the planner.
func NonMinimalUnionTag(path []string, tags []uint16) *Error {
	return &Error{
		Phase:  PhasePlan,
		Kind:   KindNonMinimalUnionTag,
		Path:   path,
		Detail: fmt.Sprintf("union tags %v are not 0..%d", tags, len(tags)-1),
	}
}

// InvalidSchema creates a structural schema error
func InvalidSchema(path []string, detail string) *Error {
	return &Error{
		Phase:  PhasePlan,
		Kind:   KindInvalidSchema,
		Path:   path,
		Detail: detail,
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, got, want string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Path:   path,
		Type:   want,
		Detail: "got " + got,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, offset, length uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("offset %d out of bounds (length %d)", offset, length),
		Value:  offset,
	}
}

// Truncated creates an error for input that ends early
func Truncated(phase Phase, need, have int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTruncated,
		Detail: fmt.Sprintf("need %d bytes, have %d", need, have),
	}
}

// InvalidPointer creates a malformed pointer error
func InvalidPointer(path []string, word uint64, detail string) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: fmt.Sprintf("pointer %#016x: %s", word, detail),
		Value:  word,
	}
}

// FieldUnknown creates an unknown field error
func FieldUnknown(phase Phase, path []string, fieldName string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindFieldUnknown,
		Path:   path,
		Detail: fmt.Sprintf("unknown field %q", fieldName),
	}
}

// InvalidDiscriminant creates an invalid discriminant error for unions
func InvalidDiscriminant(phase Phase, path []string, disc uint16, count int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidVariant,
		Path:   path,
		Detail: fmt.Sprintf("discriminant %d out of range (%d members)", disc, count),
		Value:  disc,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Path:   path,
		Type:   targetType,
		Detail: fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:  value,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size uint32, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes", size),
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Load creates a schema loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}
