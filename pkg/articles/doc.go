// Package articles serves provider-owned articles with their comments and
// likes. Comments may answer a top-level comment but not another reply.
package articles
