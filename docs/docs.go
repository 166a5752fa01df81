// Package docs bundles the Markdown pages served under /docs/.
package docs

import "embed"

// FS holds every *.md file in this directory.
//
//go:embed *.md
var FS embed.FS
