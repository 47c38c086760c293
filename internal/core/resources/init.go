// Package resources registers the six dump definitions with the core
// registry. Import it for side effects before building downloaders.
package resources

// Each file registers its kinds from init().
