// Package testinfra starts throwaway PostgreSQL containers for integration
// tests. Everything here sits behind the integration build tag:
//
//	go test -tags integration ./...
//
// Tests skip themselves when no Docker daemon is reachable.
package testinfra
