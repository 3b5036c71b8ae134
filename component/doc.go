// Package component defines the pluggable unit of processing in a flow
// graph: the Discoverable interface components implement, the Port and
// ConfigSchema types the control surface uses to describe them, and the
// Registry factories register into so the graph model can instantiate
// nodes by type name.
package component
