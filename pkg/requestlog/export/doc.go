// Package export serializes request log records for archives and the admin
// trace download endpoint.
package export
