// Package witbridge projects planned struct layouts onto WebAssembly
// Interface Types so a struct can cross a component boundary as a WIT
// record, and computes the canonical ABI size and alignment of the
// result.
//
// # Mapping
//
//   - Integer, float and Bool fields map to the WIT primitive of the same width
//   - Text maps to string; Data and AnyPointer to list<u8>
//   - Enums map to enum cases in ordinal order
//   - Struct fields are option<record>, since they may be null
//   - Named unions map to variants, a scope's unnamed union to a "which" field
//   - Groups map to nested records
//
// Member names are converted to kebab-case.
package witbridge
