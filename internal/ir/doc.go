// Package ir provides the literal value union shared by every docprobe stage.
//
// Doc examples, bound arguments, candidate return values and report
// expectations all travel as ir.Value. The package also owns the two
// content-addressed identities docprobe emits: the module ID derived from
// candidate source bytes, and the result digest over a report's
// deterministic sections.
//
// ir imports nothing internal, so every other package can depend on it
// without cycles.
//
// Key constraints:
//   - Value is sealed; Null, Int, Float, String, Bool and List are the
//     only implementations
//   - Canonical JSON (RFC 8785) is the only encoding used for hashing
//   - All JSON tags use snake_case
package ir
