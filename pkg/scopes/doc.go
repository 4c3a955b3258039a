// Package scopes models the multi-tenant organizational hierarchy that
// permissions are resolved against.
//
// A scope is a (Type, ID) pair naming one node in the tree: an organization
// owns clients, clients own companies, companies own departments, and
// departments own teams. A parallel vendor-side hierarchy exists with the
// same privilege rank at each level. ORGANIZATION is the root and has no
// parent.
//
// The Directory interface is the engine's only view of the tree. It is
// deliberately narrow: parent lookup, ancestry testing, and a
// user-management check. The tree itself is owned and edited by the
// surrounding tenancy system.
package scopes
