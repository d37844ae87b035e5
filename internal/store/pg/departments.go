package pg

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"durga.org/internal/directory"
)

const departmentCols = `d.id, d.name, coalesce(d.manager_id, ''), d.created_at, coalesce(d.created_by, ''),
	d.updated_at, coalesce(d.updated_by, '')`

func scanDepartment(row scanner) (directory.Department, error) {
	var d directory.Department
	err := row.Scan(&d.ID, &d.Name, &d.ManagerID, &d.CreatedAt, &d.CreatedBy, &d.UpdatedAt, &d.UpdatedBy)
	return d, err
}

func (s *Store) CreateDepartment(ctx context.Context, in directory.Department) (directory.Department, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into departments as d (id, name, manager_id, created_at, created_by)
		values ($1, $2, $3, $4, $5)
		returning `+departmentCols,
		in.ID, in.Name, nullIfEmpty(in.ManagerID), in.CreatedAt, nullIfEmpty(in.CreatedBy))
	out, err := scanDepartment(row)
	if err != nil {
		return directory.Department{}, translate(err, "create department")
	}
	return out, nil
}

func (s *Store) GetDepartment(ctx context.Context, id string) (directory.Department, error) {
	out, err := scanDepartment(s.db.QueryRowContext(ctx, `select `+departmentCols+` from departments d where d.id = $1`, id))
	if err != nil {
		return directory.Department{}, translate(err, "department "+id)
	}
	return out, nil
}

func (s *Store) UpdateDepartment(ctx context.Context, id string, upd directory.DepartmentUpdate, st directory.Stamp) (directory.Department, error) {
	var f filter
	var sets []string
	if upd.Name != nil {
		sets = append(sets, "name = "+f.arg(*upd.Name))
	}
	sets = append(sets, "updated_at = "+f.arg(st.At), "updated_by = "+f.arg(nullIfEmpty(st.By)))
	q := fmt.Sprintf(`update departments as d set %s where d.id = %s returning %s`, strings.Join(sets, ", "), f.arg(id), departmentCols)
	out, err := scanDepartment(s.db.QueryRowContext(ctx, q, f.args...))
	if err != nil {
		return directory.Department{}, translate(err, "department "+id)
	}
	return out, nil
}

// DeleteDepartment is a single guarded statement; a zero-row result is classified afterwards.
func (s *Store) DeleteDepartment(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from departments d
		where d.id = $1 and not exists (select 1 from teams t where t.department_id = d.id)
	`, id)
	if err != nil {
		return translate(err, "delete department "+id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "pg: delete department "+id)
	}
	if n > 0 {
		return nil
	}
	var teams int
	if err := s.db.QueryRowContext(ctx, `
		select (select count(*) from teams where department_id = $1)
		from departments where id = $1
	`, id).Scan(&teams); err != nil {
		return translate(err, "department "+id)
	}
	return fmt.Errorf("%w: department %s owns %d teams", directory.ErrConflict, id, teams)
}

func (s *Store) ListDepartments(ctx context.Context, q directory.DepartmentQuery) (directory.Result[directory.Department], error) {
	var f filter
	f.search(directory.SearchTerm(q.Search), "d.name")
	return list(ctx, s.db, &f, departmentCols, "departments d", "lower(d.name), d.id", q.Page, "departments", scanDepartment)
}

func (s *Store) SetDepartmentManager(ctx context.Context, departmentID, identityID string, st directory.Stamp) error {
	return s.setPointer(ctx, "departments", "manager_id", departmentID, identityID, st)
}

func (s *Store) DepartmentsManagedBy(ctx context.Context, identityID string) ([]directory.Department, error) {
	q := `select ` + departmentCols + ` from departments d where d.manager_id = $1 order by lower(d.name), d.id`
	return query(ctx, s.db, q, []any{identityID}, "departments", scanDepartment)
}
