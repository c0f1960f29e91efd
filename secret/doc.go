// Package secret resolves credential references in configuration values.
//
// A value of the form "secretref:<provider>:<ref>" is replaced by what the
// named provider returns. Two providers are built in: "env" reads an
// environment variable and "file" reads a mounted secret file. References
// may also appear inline, as in "Bearer secretref:env:ADMIN_TOKEN"; an
// inline reference runs to the next whitespace.
// Before references are resolved, $VAR and ${VAR} are expanded and every
// variable must be set.
package secret
