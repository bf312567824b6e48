// Package configs provides embedded configuration templates.
//
// Templates are embedded at build time using Go's //go:embed directive so
// they are available in all distributions (source builds and binary
// releases). The engine falls back to these defaults when no external
// config or policy file is present.
package configs

import _ "embed"

// DefaultConfigTemplate is the engine configuration template. Copied to
// ~/.kbretrieval/config.yaml by `kbsearch config init` and used as the
// built-in default when no config file exists.
//
//go:embed default.yaml
var DefaultConfigTemplate string

// DefaultPolicyTemplate holds the retrieval policy data: meta-query
// patterns and the domain synonym table. Kept separate from the engine
// config so the policy can be versioned and updated by domain owners
// without touching engine settings.
//
//go:embed policy.yaml
var DefaultPolicyTemplate string
