package directory

import (
	"context"
	"strings"
)

// DepartmentInput carries the fields of a new department.
type DepartmentInput struct {
	Name string `json:"name"`
}

// CreateDepartment registers a department.
func (s *Service) CreateDepartment(ctx context.Context, in DepartmentInput, createdBy string) (out Department, err error) {
	const op = "create_department"
	defer func() { s.observe(op, err) }()

	name, err := requireName("department name", in.Name)
	if err != nil {
		return Department{}, err
	}
	st := s.stamp(createdBy)
	out, err = s.store.CreateDepartment(ctx, Department{
		ID:        s.newID(),
		Name:      name,
		CreatedAt: st.At,
		CreatedBy: st.By,
	})
	if err != nil {
		return Department{}, err
	}
	s.record(ctx, "department.created", map[string]any{"department_id": out.ID, "name": out.Name})
	return out, nil
}

// GetDepartment returns the department with the given id.
func (s *Service) GetDepartment(ctx context.Context, id string) (Department, error) {
	id, err := requireID("department id", id)
	if err != nil {
		return Department{}, err
	}
	return s.store.GetDepartment(ctx, id)
}

// ListDepartments returns a page of departments.
func (s *Service) ListDepartments(ctx context.Context, q DepartmentQuery) (Result[Department], error) {
	if err := q.Page.Validate(); err != nil {
		return Result[Department]{}, err
	}
	return s.store.ListDepartments(ctx, q)
}

// UpdateDepartment applies the non-nil fields of upd.
func (s *Service) UpdateDepartment(ctx context.Context, id string, upd DepartmentUpdate, updatedBy string) (out Department, err error) {
	const op = "update_department"
	defer func() { s.observe(op, err) }()

	dept, err := s.GetDepartment(ctx, id)
	if err != nil {
		return Department{}, err
	}
	if upd.Name != nil {
		v, err := requireName("department name", *upd.Name)
		if err != nil {
			return Department{}, err
		}
		upd.Name = &v
	}
	out, err = s.store.UpdateDepartment(ctx, dept.ID, upd, s.stamp(updatedBy))
	if err != nil {
		return Department{}, err
	}
	s.record(ctx, "department.updated", map[string]any{"department_id": out.ID})
	return out, nil
}

// DeleteDepartment removes a department that owns no teams. Departments with teams are
// refused with a conflict.
func (s *Service) DeleteDepartment(ctx context.Context, id, deletedBy string) (err error) {
	const op = "delete_department"
	defer func() { s.observe(op, err) }()

	dept, err := s.GetDepartment(ctx, id)
	if err != nil {
		return err
	}
	if err = s.store.DeleteDepartment(ctx, dept.ID); err != nil {
		return err
	}
	s.record(ctx, "department.deleted", map[string]any{"department_id": dept.ID, "name": dept.Name, "deleted_by": strings.TrimSpace(deletedBy)})
	return nil
}

// AssignDepartmentManager points the department's manager at identityID.
func (s *Service) AssignDepartmentManager(ctx context.Context, departmentID, identityID, assignedBy string) (err error) {
	const op = "assign_department_manager"
	defer func() { s.observe(op, err) }()

	dept, err := s.GetDepartment(ctx, departmentID)
	if err != nil {
		return err
	}
	identity, err := s.GetIdentity(ctx, identityID)
	if err != nil {
		return err
	}
	if err = s.store.SetDepartmentManager(ctx, dept.ID, identity.ID, s.stamp(assignedBy)); err != nil {
		return err
	}
	s.record(ctx, "department.manager_assigned", map[string]any{"department_id": dept.ID, "identity_id": identity.ID})
	return nil
}

// ClearDepartmentManager unsets the department's manager.
func (s *Service) ClearDepartmentManager(ctx context.Context, departmentID, clearedBy string) (err error) {
	const op = "clear_department_manager"
	defer func() { s.observe(op, err) }()

	dept, err := s.GetDepartment(ctx, departmentID)
	if err != nil {
		return err
	}
	if err = s.store.SetDepartmentManager(ctx, dept.ID, "", s.stamp(clearedBy)); err != nil {
		return err
	}
	s.record(ctx, "department.manager_cleared", map[string]any{"department_id": dept.ID})
	return nil
}

// DepartmentTeams returns every team of the department, active or not, by name.
func (s *Service) DepartmentTeams(ctx context.Context, departmentID string) ([]Team, error) {
	dept, err := s.GetDepartment(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	return s.store.TeamsInDepartment(ctx, dept.ID)
}

// DepartmentsManagedBy returns the departments whose manager pointer names the identity.
func (s *Service) DepartmentsManagedBy(ctx context.Context, identityID string) ([]Department, error) {
	identity, err := s.GetIdentity(ctx, identityID)
	if err != nil {
		return nil, err
	}
	return s.store.DepartmentsManagedBy(ctx, identity.ID)
}
