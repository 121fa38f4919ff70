// Package ir provides the value, key and expression types shared by every
// other docstore package.
//
// This package contains type definitions and their codecs only. All other
// internal packages import ir; ir imports nothing internal. This ensures IR
// remains the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - IRValue and Expr are sealed interfaces; consumers switch exhaustively
//   - The nil IRValue is the absent-marker, IRNull is JSON null
//   - EncodeKey output sorts exactly like Key.Compare, so byte-ordered
//     backends can serve prefix scans as range scans
//   - Storage encoding (EncodeValue) keeps strings verbatim; only
//     MarshalCanonical normalizes
package ir
