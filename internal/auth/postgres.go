package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"issuedesk.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users(context.Context) UserStore { return &userStore{db: s.db} }
func (s *PGStore) Roles(context.Context) RoleStore { return &roleStore{db: s.db} }
func (s *PGStore) Permissions(context.Context) PermissionStore {
	return &permissionStore{db: s.db}
}
func (s *PGStore) RefreshTokens(context.Context) RefreshTokenStore {
	return &refreshTokenStore{db: s.db}
}

// User store ---------------------------------------------------------------

type userStore struct{ db *sql.DB }

const userSelect = `
	select u.user_id, u.email, u.full_name, u.password, u.is_active,
	       u.is_first_logged_in, u.password_changed_at,
	       coalesce(u.institute_id, ''), coalesce(u.user_type_id, ''),
	       i.institute_id, i.name,
	       ut.user_type_id, ut.name,
	       up.user_position_id, up.name,
	       hn.hierarchy_node_id, hn.name, hn.level,
	       inn.internal_node_id, inn.name, inn.level,
	       u.created_at, u.updated_at
	from users u
	left join institutes i on i.institute_id = u.institute_id
	left join user_types ut on ut.user_type_id = u.user_type_id
	left join user_positions up on up.user_position_id = u.user_position_id
	left join hierarchy_nodes hn on hn.hierarchy_node_id = u.hierarchy_node_id
	left join internal_nodes inn on inn.internal_node_id = u.internal_node_id`

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, userSelect+` where u.user_id = $1`, id)
	return scanUser(row)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, userSelect+` where u.email = $1`, email)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var (
		u           User
		changedAt   sql.NullTime
		instID      sql.NullString
		instName    sql.NullString
		typeID      sql.NullString
		typeName    sql.NullString
		posID       sql.NullString
		posName     sql.NullString
		hierID      sql.NullString
		hierName    sql.NullString
		hierLevel   sql.NullInt64
		internID    sql.NullString
		internName  sql.NullString
		internLevel sql.NullInt64
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.IsActive,
		&u.IsFirstLogin, &changedAt,
		&u.InstituteID, &u.UserTypeID,
		&instID, &instName,
		&typeID, &typeName,
		&posID, &posName,
		&hierID, &hierName, &hierLevel,
		&internID, &internName, &internLevel,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if changedAt.Valid {
		t := changedAt.Time
		u.PasswordChangedAt = &t
	}
	if instID.Valid {
		u.Institute = &Institute{ID: instID.String, Name: instName.String}
	}
	if typeID.Valid {
		u.UserType = &UserType{ID: typeID.String, Name: typeName.String}
	}
	if posID.Valid {
		u.UserPosition = &UserPosition{ID: posID.String, Name: posName.String}
	}
	if hierID.Valid {
		u.HierarchyNode = &HierarchyNode{ID: hierID.String, Name: hierName.String, Level: int(hierLevel.Int64)}
	}
	if internID.Valid {
		u.InternalNode = &InternalNode{ID: internID.String, Name: internName.String, Level: int(internLevel.Int64)}
	}
	return &u, nil
}

func (s *userStore) UpdatePassword(ctx context.Context, userID, passwordHash string, changedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set password = $2, password_changed_at = $3, is_first_logged_in = false, updated_at = now()
		where user_id = $1`,
		userID, passwordHash, changedAt,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Role store ---------------------------------------------------------------

type roleStore struct{ db *sql.DB }

func (s *roleStore) AssignmentsForUser(ctx context.Context, userID string) ([]ProjectAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		select pur.user_id, pur.project_id, coalesce(p.name, ''),
		       pur.role_id, coalesce(r.name, ''),
		       pur.sub_role_id, sr.name,
		       pur.is_active
		from project_user_roles pur
		left join projects p on p.project_id = pur.project_id
		left join roles r on r.role_id = pur.role_id
		left join sub_roles sr on sr.sub_role_id = pur.sub_role_id
		where pur.user_id = $1 and pur.is_active = true`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ProjectAssignment
	for rows.Next() {
		var (
			a           ProjectAssignment
			subRoleID   sql.NullString
			subRoleName sql.NullString
		)
		if err := rows.Scan(&a.UserID, &a.ProjectID, &a.ProjectName, &a.RoleID, &a.RoleName, &subRoleID, &subRoleName, &a.IsActive); err != nil {
			return nil, err
		}
		a.SubRoleID = subRoleID.String
		a.SubRoleName = subRoleName.String
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *roleStore) SubRoleLinks(ctx context.Context, roleID string) ([]SubRoleLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		select rsr.role_sub_role_id, sr.sub_role_id, sr.name, sr.is_active
		from role_sub_roles rsr
		join sub_roles sr on sr.sub_role_id = rsr.sub_role_id
		where rsr.role_id = $1 and rsr.is_active = true`,
		roleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []SubRoleLink
	for rows.Next() {
		var link SubRoleLink
		if err := rows.Scan(&link.ID, &link.SubRole.ID, &link.SubRole.Name, &link.SubRole.IsActive); err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range links {
		grants, err := s.grantsForLink(ctx, links[i].ID)
		if err != nil {
			return nil, err
		}
		links[i].Grants = grants
	}
	return links, nil
}

func (s *roleStore) grantsForLink(ctx context.Context, linkID string) ([]PermissionGrant, error) {
	rows, err := s.db.QueryContext(ctx, `
		select srp.id, srp.is_active, p.permission_id, p.action, p.resource, p.is_active
		from sub_role_permissions srp
		join permissions p on p.permission_id = srp.permission_id
		where srp.role_sub_role_id = $1`,
		linkID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGrants(rows)
}

func (s *roleStore) DirectGrants(ctx context.Context, roleID string) ([]PermissionGrant, error) {
	rows, err := s.db.QueryContext(ctx, `
		select rp.id, rp.is_active, p.permission_id, p.action, p.resource, p.is_active
		from role_permissions rp
		join permissions p on p.permission_id = rp.permission_id
		where rp.role_id = $1`,
		roleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGrants(rows)
}

func scanGrants(rows *sql.Rows) ([]PermissionGrant, error) {
	var grants []PermissionGrant
	for rows.Next() {
		var g PermissionGrant
		if err := rows.Scan(&g.ID, &g.IsActive, &g.Permission.ID, &g.Permission.Action, &g.Permission.Resource, &g.Permission.IsActive); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func (s *roleStore) Assign(ctx context.Context, assignment ProjectAssignment) error {
	var subRoleID any
	if assignment.SubRoleID != "" {
		subRoleID = assignment.SubRoleID
	}
	_, err := s.db.ExecContext(ctx, `
		insert into project_user_roles(id, user_id, project_id, role_id, sub_role_id, is_active)
		values ($1, $2, $3, $4, $5, true)
		on conflict (user_id, project_id, role_id) do update set sub_role_id = excluded.sub_role_id, is_active = true`,
		ids.New(), assignment.UserID, assignment.ProjectID, assignment.RoleID, subRoleID,
	)
	return err
}

// Permission store ---------------------------------------------------------

type permissionStore struct{ db *sql.DB }

func (s *permissionStore) List(ctx context.Context) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select permission_id, action, resource, is_active
		from permissions
		order by resource, action`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Action, &p.Resource, &p.IsActive); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (s *permissionStore) SetActive(ctx context.Context, permissionID string, active bool) (Permission, error) {
	row := s.db.QueryRowContext(ctx, `
		update permissions set is_active = $2, updated_at = now()
		where permission_id = $1
		returning permission_id, action, resource, is_active`,
		permissionID, active,
	)
	var p Permission
	if err := row.Scan(&p.ID, &p.Action, &p.Resource, &p.IsActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Permission{}, ErrPermissionNotFound
		}
		return Permission{}, err
	}
	return p, nil
}

func (s *permissionStore) Toggle(ctx context.Context, permissionID string) (Permission, error) {
	row := s.db.QueryRowContext(ctx, `
		update permissions set is_active = not is_active, updated_at = now()
		where permission_id = $1
		returning permission_id, action, resource, is_active`,
		permissionID,
	)
	var p Permission
	if err := row.Scan(&p.ID, &p.Action, &p.Resource, &p.IsActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Permission{}, ErrPermissionNotFound
		}
		return Permission{}, err
	}
	return p, nil
}

func (s *permissionStore) SetForRole(ctx context.Context, roleID string, permissionIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return err
	}
	for _, permID := range permissionIDs {
		_, err := tx.ExecContext(ctx, `
			insert into role_permissions(id, role_id, permission_id, is_active)
			values ($1, $2, $3, true)`,
			ids.New(), roleID, permID,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Refresh token store -------------------------------------------------------

type refreshTokenStore struct{ db *sql.DB }

func (s *refreshTokenStore) Create(ctx context.Context, tok *RefreshToken) error {
	if tok.ID == "" {
		tok.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into refresh_tokens(id, refresh_token, user_id, expires_at, is_revoked)
		values ($1, $2, $3, $4, false)`,
		tok.ID, tok.Token, tok.UserID, tok.ExpiresAt,
	)
	return err
}

// Consume is the single atomic step of rotation: the conditional update
// revokes the row only if it is still unrevoked, so concurrent duplicate
// submissions of the same value race on the database row and exactly one
// caller gets it back.
func (s *refreshTokenStore) Consume(ctx context.Context, token string) (*RefreshToken, error) {
	row := s.db.QueryRowContext(ctx, `
		update refresh_tokens
		set is_revoked = true
		where refresh_token = $1 and is_revoked = false
		returning id, refresh_token, user_id, expires_at, created_at`,
		token,
	)
	var tok RefreshToken
	if err := row.Scan(&tok.ID, &tok.Token, &tok.UserID, &tok.ExpiresAt, &tok.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRefreshTokenNotFound
		}
		return nil, err
	}
	tok.IsRevoked = true
	return &tok, nil
}

func (s *refreshTokenStore) Revoke(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `
		update refresh_tokens set is_revoked = true
		where refresh_token = $1 and is_revoked = false`,
		token,
	)
	return err
}

func (s *refreshTokenStore) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		update refresh_tokens set is_revoked = true
		where user_id = $1 and is_revoked = false`,
		userID,
	)
	return err
}
