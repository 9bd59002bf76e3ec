// Package dashboard provides the embedded web UI assets for the GPIO
// monitor.
//
// The embed directive includes the dashboard page at compile time so
// the daemon deploys as a single binary with no external asset files.
// The server package serves it at the root path ("/").
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard web UI.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - Pin dashboard with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS
