package web

import "embed"

// StaticFS holds the embedded static assets (push client script, styles, status icons).
//
//go:embed static/*
var StaticFS embed.FS
