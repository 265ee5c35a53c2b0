package config

import "time"

const (
	// DefaultArtifactsBaseURL is the base URL of the published circuit
	// artifacts. Each network has its own release directory below it.
	DefaultArtifactsBaseURL = "https://circuits.ams3.cdn.digitaloceanspaces.com/donation"

	// DefaultArtifactsS3Endpoint and DefaultArtifactsS3Bucket locate the
	// same artifacts for direct object storage access.
	DefaultArtifactsS3Endpoint = "ams3.digitaloceanspaces.com"
	DefaultArtifactsS3Bucket   = "circuits"

	// DefaultContractName names the private state store of the client.
	DefaultContractName = "donation"

	// DefaultDataDir is where the private state store lives, relative to
	// the user home directory.
	DefaultDataDir = ".donation"

	DefaultWalletTimeout = 2 * time.Minute
	DefaultProofTimeout  = 5 * time.Minute
	DefaultWatchTimeout  = 5 * time.Minute
	DefaultAssetCache    = 64
)
