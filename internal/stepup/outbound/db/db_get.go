package db

import (
	"context"

	"github.com/shandysiswandi/otpgate/internal/stepup/entity"
)

// GetPrincipal loads one principal with its attribute map and group
// memberships. Returns goerror.ErrNotFound when the username does not exist.
func (s *DB) GetPrincipal(ctx context.Context, username string) (_ *entity.Principal, err error) {
	ctx, span := s.startSpan(ctx, "GetPrincipal")
	defer func() { s.endSpan(span, err) }()

	var id string

	const qPrincipal = `SELECT id FROM principals WHERE username = $1`
	if err = s.conn.QueryRow(ctx, qPrincipal, username).Scan(&id); err != nil {
		return nil, s.mapError(err)
	}

	attrs, err := s.principalAttributes(ctx, id)
	if err != nil {
		return nil, s.mapError(err)
	}

	groups, err := s.principalGroups(ctx, id)
	if err != nil {
		return nil, s.mapError(err)
	}

	return &entity.Principal{
		ID:         username,
		Groups:     groups,
		Attributes: attrs,
	}, nil
}

// GetCredential returns the stored password hash for the username. Returns
// goerror.ErrNotFound when the username does not exist.
func (s *DB) GetCredential(ctx context.Context, username string) (_ string, err error) {
	ctx, span := s.startSpan(ctx, "GetCredential")
	defer func() { s.endSpan(span, err) }()

	var hashed string

	const q = `SELECT password_hash FROM principals WHERE username = $1`
	if err = s.conn.QueryRow(ctx, q, username).Scan(&hashed); err != nil {
		return "", s.mapError(err)
	}

	return hashed, nil
}

// GroupAttributes returns the attribute map of a group. An unknown group is
// not an error; it yields an empty map, the same as a group with no
// attributes.
func (s *DB) GroupAttributes(ctx context.Context, group string) (_ map[string]string, err error) {
	ctx, span := s.startSpan(ctx, "GroupAttributes")
	defer func() { s.endSpan(span, err) }()

	const q = `SELECT attr_key, attr_value FROM group_attributes WHERE group_name = $1`

	rows, err := s.conn.Query(ctx, q, group)
	if err != nil {
		return nil, s.mapError(err)
	}
	defer rows.Close()

	attrs := make(map[string]string)

	for rows.Next() {
		var k, v string
		if err = rows.Scan(&k, &v); err != nil {
			return nil, s.mapError(err)
		}

		attrs[k] = v
	}

	if err = rows.Err(); err != nil {
		return nil, s.mapError(err)
	}

	return attrs, nil
}

func (s *DB) principalAttributes(ctx context.Context, id string) (map[string]string, error) {
	const q = `SELECT attr_key, attr_value FROM principal_attributes WHERE principal_id = $1`

	rows, err := s.conn.Query(ctx, q, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attrs := make(map[string]string)

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}

		attrs[k] = v
	}

	return attrs, rows.Err()
}

func (s *DB) principalGroups(ctx context.Context, id string) ([]string, error) {
	const q = `SELECT group_name FROM principal_groups WHERE principal_id = $1`

	rows, err := s.conn.Query(ctx, q, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []string

	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}

		groups = append(groups, g)
	}

	return groups, rows.Err()
}
