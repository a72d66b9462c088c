// Package domain defines the core business entities for complyref.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - LawRecord, FeatureRecord: Parsed provisions and product features
//   - TermRecord, ComplianceRecord: Project context rendered into requests
//   - Document: The unit stored in a corpus store (content + metadata)
//   - ResponseSchema: The fixed shape a model response must satisfy
//   - ViolationResult: A validated violation-detection answer
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
