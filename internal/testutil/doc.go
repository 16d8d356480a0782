// Package testutil contains fluent builders for events and sessions used
// across package tests. It is not intended for production usage.
package testutil
