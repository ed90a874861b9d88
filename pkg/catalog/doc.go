// Package catalog serves provider-owned products and the shared medicine
// category tree.
//
// Every product query carries the caller's provider id as its first
// predicate; a product of another provider is indistinguishable from a
// missing one.
package catalog
