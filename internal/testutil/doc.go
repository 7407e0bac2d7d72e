// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing agent configs and tools and asserting turn
// behavior. These helpers are intentionally minimal and are not intended for
// production usage.
package testutil
