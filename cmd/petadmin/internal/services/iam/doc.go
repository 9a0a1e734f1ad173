// Package iam decides which permissions are in effect for a user and keeps
// role, direct grant and group membership state in line with the
// provisioning rule table when users authenticate through a federated
// identity provider.
//
// It provides:
//
//   - Effective permission resolution (direct grants, explicit denies and
//     grants inherited from active groups, each with its source)
//   - Identity provisioning at login and on demand (resync)
//   - Admin operations over the permission catalog, groups, memberships and
//     grants
//
// Request Flow:
//
//	SSO callback → Login(identity) → ensure user (JIT, own commit)
//	            ↓
//	        apply rule (one transaction, user row locked)
//	            ↓
//	Handler → HasPermission(user, code) → ResolveEffectivePermissions
//
// Effective state is always derived from the stores at read time and never
// persisted.
package iam
