// Package audit records who changed what in the authorization data.
//
// Every mutating operation in the engine emits one Record describing the
// action, the entity it touched, the acting user and the scope. Records flow
// through a Logger, which can be backed by the database (DBLogger), a
// newline-delimited JSON file (FileLogger), several sinks at once
// (MultiLogger), or nothing (NopLogger).
//
// The engine treats audit writes as fire-and-forget: a sink failure is
// logged and swallowed, never surfaced to the caller of the operation that
// produced the record.
//
//	auditLogger, _ := audit.NewDBLogger(db)
//	record := audit.NewRecord(audit.ActionRoleCreated, audit.EntityRole, role.ID).
//		WithActor(actor.UserID).
//		WithScope(string(role.ScopeType), role.ScopeID)
//	_ = auditLogger.Log(ctx, record)
package audit
