// Package logx wraps zerolog behind a small Field-based API.
//
// Components take a logx.Logger by value; the zero value is a safe no-op,
// so tests and optional components never need nil checks.
package logx
