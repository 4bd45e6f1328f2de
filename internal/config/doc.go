// Package config loads the service configuration.
//
// Settings are layered by viper, highest precedence first:
//
//  1. command-line flags bound by the CLI
//  2. HEALTHMESH_* environment variables (dots become underscores, so
//     view.mode is HEALTHMESH_VIEW_MODE)
//  3. an optional HCL file
//  4. built-in defaults
//
// The HCL file is decoded with gohcl into optional blocks (source, agents,
// view, listen, log). Expressions may read the process environment through
// the env map, e.g. url = env.STREAM_URL. Only attributes present in the file
// are merged, so an absent attribute never shadows a default.
package config
