// Package testutil provides fixtures and a controllable clock shared by the
// tests of the quiestce packages.
package testutil
