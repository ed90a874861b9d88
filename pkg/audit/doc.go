// Package audit records security-relevant operations in the audit_events
// table.
//
// Role and permission mutations, sub-account changes and authorization
// denials are recorded with the acting account, its provider and the
// request id:
//
//	audit.Record(ctx, logger, audit.NewEvent(ctx, audit.ActionRoleCreate, audit.ResourceRole, id.String(), audit.OutcomeSuccess))
//
// Record never fails the request it is called from; write errors go to the
// request logger. Events past the retention window are removed by Purge,
// which the server runs on a cron schedule.
package audit
