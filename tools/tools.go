//go:build tools
// +build tools

// Package tools documents development tool dependencies.
// These tools are installed via `go install` or run with `go run`, and are not tracked in go.mod.
package tools

// Development tools:
//
// Air - Live reload for the bookshelf server (templates and static assets reload from disk with DEV=true)
//   Install: go install github.com/air-verse/air@v1.63.0
//   Run:     air --build.cmd "go build -o ./tmp/bookshelf ./cmd/bookshelf" --build.bin ./tmp/bookshelf
//
// MockGen - Regenerates the gomock mocks under internal/mocks
//   Run: go generate ./internal/mocks
