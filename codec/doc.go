// Package codec converts between hosted attribute sets and the engine's
// typed buffers.
//
// The bridge consumes the conversion through its Codec interface; Std is the
// reference implementation. Values are canonicalized on both directions:
// integer types carry int64 / []int64, floating types carry float64 /
// []float64 and string types carry string / []string, so a value survives an
// encode/decode round trip unchanged.
package codec
