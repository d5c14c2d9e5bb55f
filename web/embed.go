package web

import "embed"

// TemplatesFS holds the page and the htmx partials.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds the stylesheet and the small UI script, served under /static/.
//
//go:embed static/*
var StaticFS embed.FS
