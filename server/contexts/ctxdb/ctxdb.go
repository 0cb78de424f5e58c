// Package ctxdb carries per-request datastore preferences in a context.
package ctxdb

import "context"

type key int

const (
	requirePrimaryKey key = iota
	bypassCachedMysqlKey
)

// RequirePrimary returns a context that indicates to the datastore whether
// reads must be served by the primary instead of the read replica, for
// example to read back a row written just before.
func RequirePrimary(ctx context.Context, required bool) context.Context {
	return context.WithValue(ctx, requirePrimaryKey, required)
}

// IsPrimaryRequired reports whether ctx requires reads from the primary.
func IsPrimaryRequired(ctx context.Context) bool {
	v, _ := ctx.Value(requirePrimaryKey).(bool)
	return v
}

// BypassCachedMysql returns a context that indicates to the caching layer
// whether cached values must be ignored. Values read while bypassing still
// refresh the cache.
func BypassCachedMysql(ctx context.Context, bypass bool) context.Context {
	return context.WithValue(ctx, bypassCachedMysqlKey, bypass)
}

// IsCachedMysqlBypassed reports whether ctx bypasses the caching layer.
func IsCachedMysqlBypassed(ctx context.Context) bool {
	v, _ := ctx.Value(bypassCachedMysqlKey).(bool)
	return v
}
