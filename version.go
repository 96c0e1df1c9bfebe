package autoflow

// Version is the release version. Overridden at build time with
// -ldflags "-X github.com/aretw0/autoflow.Version=v1.2.3".
var Version = "0.1.0-dev"
