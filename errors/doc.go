// Package errors provides two complementary error vocabularies:
//
//   - Kind: the closed, machine-readable codes the control surface returns
//     to API clients (spec §7), each with a stable HTTP status mapping.
//   - Class: a transient/invalid/fatal classification; the runtime checks
//     it (IsFatal) to decide whether a failing node task exits.
//
// Control-surface handlers should produce *KindError via New and extract it
// with As to build the {error, detail} response body. Internal plumbing
// (node tasks, metrics sampling) uses Wrap/WrapTransient/WrapInvalid/
// WrapFatal the way the rest of the stack wraps errors with call-site
// context.
package errors
