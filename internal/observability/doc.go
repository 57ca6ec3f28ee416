// Package observability builds the process logger and the request logging
// middleware. Every log line of a request carries its chi request ID.
package observability
