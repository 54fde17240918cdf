// Package config resolves xpect's settings from three layers, lowest
// precedence first:
//
//  1. the .xpect.yaml file: local directory, then the user config dir
//  2. environment variables (XPECT_DEBUG, XPECT_ALLOW_UPASS, NO_COLOR, CI)
//  3. command-line flags
//
// Later layers only override values they explicitly set, so a flag left at
// its default never masks a file setting.
package config
