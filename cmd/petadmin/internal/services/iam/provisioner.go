package iam

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/auth"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/db/models"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/iamerr"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/repository"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/rules"
	"github.com/talpa/pet-management-sub001/cmd/petadmin/internal/telemetry"
)

// ProvisioningResult describes the state a provisioning run committed.
type ProvisioningResult struct {
	UserID                 string   `json:"user_id"`
	Rule                   string   `json:"rule"`
	Role                   string   `json:"role"`
	PreviousRole           string   `json:"previous_role"`
	GrantedPermissionCodes []string `json:"granted_permission_codes"`
	GroupNames             []string `json:"group_names"`
	// CreatedGroups lists the groups this run inserted. Groups another
	// writer created concurrently are not included.
	CreatedGroups []string `json:"created_groups,omitempty"`
}

// LoginResult is the outcome of Login.
type LoginResult struct {
	User    *models.User
	Created bool
	// Provisioning is nil when ProvisioningErr is set.
	Provisioning    *ProvisioningResult
	ProvisioningErr error
}

// Login implements Service.
func (s *iamService) Login(ctx context.Context, identity rules.Identity) (*LoginResult, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerIAM, "iam.Login",
		attribute.String(telemetry.AttrUserEmail, identity.NormalizedEmail()),
	)
	defer span.End()

	rule, err := s.rules.Match(identity)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	user, created, err := s.ensureUser(ctx, identity)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("login %s: %w", identity.NormalizedEmail(), err)
	}
	span.SetAttributes(attribute.String(telemetry.AttrUserID, user.ID))
	if user.IsDisabled() {
		return nil, ErrUserDisabled
	}

	if err := s.stores.Users.UpdateLastLogin(ctx, user.ID, s.now().UTC()); err != nil {
		return nil, fmt.Errorf("login %s: %w", user.Email, err)
	}

	res := &LoginResult{User: user, Created: created}
	result, err := s.apply(ctx, user, rule)
	if err != nil {
		res.ProvisioningErr = provisioningError(user, identity, rule, err)
		telemetry.RecordError(span, err)
		s.logger.Warn("provisioning failed, continuing login with existing state",
			"user_id", user.ID,
			"email", user.Email,
			"rule", rule.Name,
			"error", err,
		)
		return res, nil
	}

	res.Provisioning = result
	res.User.Role = result.Role
	s.logger.Info("user logged in",
		"user_id", user.ID,
		"email", user.Email,
		"created", created,
		"rule", result.Rule,
		"role", result.Role,
	)
	return res, nil
}

// ProvisionFromIdentity implements Service.
func (s *iamService) ProvisionFromIdentity(ctx context.Context, identity rules.Identity) (*ProvisioningResult, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerIAM, "iam.ProvisionFromIdentity",
		attribute.String(telemetry.AttrUserEmail, identity.NormalizedEmail()),
	)
	defer span.End()

	rule, err := s.rules.Match(identity)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, provisioningError(nil, identity, rules.Rule{}, err)
	}

	user, _, err := s.ensureUser(ctx, identity)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, provisioningError(nil, identity, rule, err)
	}

	result, err := s.apply(ctx, user, rule)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, provisioningError(user, identity, rule, err)
	}
	return result, nil
}

// ResyncProvisioning implements Service.
func (s *iamService) ResyncProvisioning(ctx context.Context, userID string) (*ProvisioningResult, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerIAM, "iam.ResyncProvisioning",
		attribute.String(telemetry.AttrUserID, userID),
	)
	defer span.End()

	user, err := s.stores.Users.GetByID(ctx, userID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	identity := identityFromUser(user)
	rule, err := s.rules.Match(identity)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, provisioningError(user, identity, rules.Rule{}, err)
	}

	result, err := s.apply(ctx, user, rule)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, provisioningError(user, identity, rule, err)
	}
	s.logger.Info("provisioning resynced",
		"user_id", user.ID,
		"rule", result.Rule,
		"role", result.Role,
		"groups", result.GroupNames,
	)
	return result, nil
}

func identityFromUser(u *models.User) rules.Identity {
	id := rules.Identity{Email: u.Email, DisplayName: u.Name}
	if u.Subject != nil {
		id.ProviderID = *u.Subject
	}
	if u.Provider != nil {
		id.Provider = *u.Provider
	}
	return id
}

func provisioningError(user *models.User, identity rules.Identity, rule rules.Rule, err error) error {
	pe := &iamerr.ProvisioningError{
		Email: identity.NormalizedEmail(),
		Rule:  rule.Name,
		Err:   err,
	}
	if user != nil {
		pe.UserID = user.ID
		pe.Email = user.Email
	}
	return pe
}

// ensureUser finds the user by provider subject, then by email, and creates
// it with the base role when neither matches. A user found by email without
// a linked subject gets the identity's subject recorded. A user found by
// subject takes the identity's email, so resync matches the same rule as
// the login; an email already held by another user fails with ErrConflict.
func (s *iamService) ensureUser(ctx context.Context, identity rules.Identity) (*models.User, bool, error) {
	email := identity.NormalizedEmail()
	provider := identity.Provider
	if provider == "" {
		provider = s.provider
	}

	var user *models.User
	var created, relinked bool
	err := s.tx.InTx(ctx, func(ctx context.Context, st repository.Stores) error {
		if identity.ProviderID != "" && provider != "" {
			u, err := st.Users.GetBySubject(ctx, provider, identity.ProviderID)
			if err == nil {
				if email != "" && !strings.EqualFold(u.Email, email) {
					relinked = true
					u.Email = email
					if err := st.Users.Update(ctx, u); err != nil {
						return fmt.Errorf("update email for %s: %w", u.ID, err)
					}
				}
				user = u
				return nil
			}
			if !iamerr.IsNotFound(err) {
				return err
			}
		}

		u, err := st.Users.GetByEmail(ctx, email)
		switch {
		case err == nil:
			if u.Subject == nil && identity.ProviderID != "" && provider != "" {
				u.Subject = &identity.ProviderID
				u.Provider = &provider
				if err := st.Users.Update(ctx, u); err != nil {
					return err
				}
			}
			user = u
			return nil
		case !iamerr.IsNotFound(err):
			return err
		}

		u = &models.User{
			Email: email,
			Name:  displayName(identity),
			Role:  models.RoleUser,
		}
		if identity.ProviderID != "" && provider != "" {
			u.Subject = &identity.ProviderID
			u.Provider = &provider
		}
		if err := st.Users.Create(ctx, u); err != nil {
			return err
		}
		user = u
		created = true
		return nil
	})
	if iamerr.IsConflict(err) && !relinked {
		// a concurrent login created the row first
		u, gerr := s.stores.Users.GetByEmail(ctx, email)
		if gerr != nil {
			return nil, false, gerr
		}
		return u, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return user, created, nil
}

func displayName(identity rules.Identity) string {
	if name := strings.TrimSpace(identity.DisplayName); name != "" {
		return name
	}
	email := identity.NormalizedEmail()
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}

// apply commits the rule's role, direct grants and memberships for user in
// one transaction. Direct grants and memberships are replaced wholesale.
func (s *iamService) apply(ctx context.Context, user *models.User, rule rules.Rule) (*ProvisioningResult, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerIAM, "iam.applyRule",
		attribute.String(telemetry.AttrUserID, user.ID),
		attribute.String(telemetry.AttrRuleName, rule.Name),
	)
	defer span.End()

	var result *ProvisioningResult
	err := s.tx.InTx(ctx, func(ctx context.Context, st repository.Stores) error {
		locked, err := st.Users.LockForUpdate(ctx, user.ID)
		if err != nil {
			return err
		}

		previousRole := locked.Role
		if locked.Role != rule.Role {
			if err := st.Users.UpdateRole(ctx, locked.ID, rule.Role); err != nil {
				return err
			}
		}

		perms, err := permissionsByCode(ctx, st, rule.Permissions)
		if err != nil {
			return err
		}
		grants := make([]models.UserPermission, len(perms))
		for i, p := range perms {
			grants[i] = models.UserPermission{
				PermissionID: p.ID,
				Granted:      true,
				GrantedBy:    auth.SystemUserID,
			}
		}
		if err := st.DirectGrants.ReplaceForUser(ctx, locked.ID, grants); err != nil {
			return fmt.Errorf("replace direct permissions: %w", err)
		}

		groups, createdGroups, err := s.resolveGroups(ctx, st, rule.Groups)
		if err != nil {
			return err
		}
		groupIDs := make([]string, len(groups))
		for i, g := range groups {
			groupIDs[i] = g.ID
		}
		if err := st.Memberships.ReplaceForUser(ctx, locked.ID, groupIDs, auth.SystemUserID); err != nil {
			return fmt.Errorf("replace memberships: %w", err)
		}

		result = &ProvisioningResult{
			UserID:                 locked.ID,
			Rule:                   rule.Name,
			Role:                   rule.Role,
			PreviousRole:           previousRole,
			GrantedPermissionCodes: append([]string{}, rule.Permissions...),
			GroupNames:             append([]string{}, rule.Groups...),
			CreatedGroups:          createdGroups,
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String(telemetry.AttrUserRole, result.Role))
	return result, nil
}

// permissionsByCode loads catalog entries for codes in order. Any unknown
// code is iamerr.ErrNotFound.
func permissionsByCode(ctx context.Context, st repository.Stores, codes []string) ([]models.Permission, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	found, err := st.Permissions.GetByCodes(ctx, codes)
	if err != nil {
		return nil, err
	}
	byCode := make(map[string]models.Permission, len(found))
	for _, p := range found {
		byCode[p.Code] = p
	}
	out := make([]models.Permission, 0, len(codes))
	for _, code := range codes {
		p, ok := byCode[code]
		if !ok {
			return nil, fmt.Errorf("permission %q: %w", code, iamerr.ErrNotFound)
		}
		out = append(out, p)
	}
	return out, nil
}

// resolveGroups returns the groups named by names in the same order,
// creating missing ones. After one creation pass the names are resolved
// again; a name still missing then fails the call.
func (s *iamService) resolveGroups(ctx context.Context, st repository.Stores, names []string) ([]models.Group, []string, error) {
	if len(names) == 0 {
		return nil, nil, nil
	}

	found, err := st.Groups.GetByNames(ctx, names)
	if err != nil {
		return nil, nil, err
	}
	missing := missingGroups(names, found)

	var created []string
	if len(missing) > 0 {
		for _, name := range missing {
			g, ok, err := s.createGroup(ctx, st, name)
			if err != nil {
				return nil, nil, err
			}
			if ok {
				created = append(created, g.Name)
			}
		}

		found, err = st.Groups.GetByNames(ctx, names)
		if err != nil {
			return nil, nil, err
		}
		if still := missingGroups(names, found); len(still) > 0 {
			return nil, nil, fmt.Errorf("group %q after create: %w", still[0], iamerr.ErrNotFound)
		}
	}

	byName := make(map[string]models.Group, len(found))
	for _, g := range found {
		byName[g.Name] = g
	}
	out := make([]models.Group, 0, len(names))
	for _, name := range names {
		out = append(out, byName[name])
	}
	return out, created, nil
}

func missingGroups(names []string, found []models.Group) []string {
	have := make(map[string]struct{}, len(found))
	for _, g := range found {
		have[g.Name] = struct{}{}
	}
	var missing []string
	for _, name := range names {
		if _, ok := have[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// createGroup inserts the named group with the next palette color. Only the
// writer whose insert lands seeds the default permissions.
func (s *iamService) createGroup(ctx context.Context, st repository.Stores, name string) (*models.Group, bool, error) {
	count, err := st.Groups.Count(ctx)
	if err != nil {
		return nil, false, err
	}

	group := &models.Group{
		Name:        name,
		Description: "Created by identity provisioning",
		Color:       PaletteColor(count),
		IsActive:    true,
		CreatedBy:   auth.SystemUserID,
	}
	stored, created, err := st.Groups.InsertOrGet(ctx, group)
	if err != nil {
		return nil, false, fmt.Errorf("create group %q: %w", name, err)
	}
	if !created {
		return stored, false, nil
	}

	codes := DefaultPermissionsFor(name)
	perms, err := st.Permissions.GetByCodes(ctx, codes)
	if err != nil {
		return nil, false, err
	}
	for _, p := range perms {
		err := st.GroupGrants.Grant(ctx, &models.GroupPermission{
			GroupID:      stored.ID,
			PermissionID: p.ID,
			GrantedBy:    auth.SystemUserID,
		})
		if err != nil {
			return nil, false, fmt.Errorf("seed group %q: %w", name, err)
		}
	}

	s.logger.Info("group created by provisioning",
		"group_id", stored.ID,
		"group", stored.Name,
		"color", stored.Color,
		"permissions", len(perms),
	)
	return stored, true, nil
}
