// Package common contains shared constants and sentinel errors used across
// tasksync components.
package common

const (
	// AuthorizationHeaderName carries the bearer token on HTTP requests.
	AuthorizationHeaderName = "Authorization"

	// AuthorizationMetadataKey carries the bearer token in gRPC metadata.
	// gRPC lower-cases metadata keys, hence the separate constant.
	AuthorizationMetadataKey = "authorization"

	// BearerPrefix precedes the token value in both transports.
	BearerPrefix = "Bearer "
)
