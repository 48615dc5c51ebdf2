// Package testinfra starts throwaway MySQL containers for integration
// tests. Everything here is behind the integration build tag:
//
//	go test -tags integration ./...
//
// Tests skip themselves when Docker is not reachable.
package testinfra
