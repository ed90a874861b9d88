// Package accounts stores platform accounts and serves registration,
// login and member management.
//
// An account with no account_provider_id is a provider: the root of a
// tenant. Member accounts created through POST /accounts belong to the
// caller's provider, share its kind and profile, and are always looked up
// with a provider filter so members of other tenants read as not found.
package accounts
