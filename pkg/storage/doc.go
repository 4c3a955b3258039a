// Package storage opens and health-checks the external backends: the
// PostgreSQL database holding the authorization data and the optional Redis
// used for the shared resolution cache and event publishing.
package storage
