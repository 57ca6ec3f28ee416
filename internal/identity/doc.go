// Package identity holds the request-scoped identity of a caller.
//
// A Principal is built from a verified token by MapPrincipal, completed with
// the local user id once provisioning succeeds, and checked against the fixed
// role policy by PermissionChecker before any protected action runs.
package identity
