package memory

import (
	"context"
	"strings"

	"durga.org/internal/directory"
)

func sortDepartments(list []directory.Department) {
	byName(list, func(d directory.Department) string { return d.Name }, func(d directory.Department) string { return d.ID })
}

func (s *Store) departmentNameTaken(selfID, name string) error {
	for id, d := range s.departments {
		if id != selfID && strings.EqualFold(d.Name, name) {
			return conflict("department %q exists", name)
		}
	}
	return nil
}

func (s *Store) CreateDepartment(ctx context.Context, d directory.Department) (directory.Department, error) {
	if err := ctx.Err(); err != nil {
		return directory.Department{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.departments[d.ID]; ok {
		return directory.Department{}, conflict("department %s exists", d.ID)
	}
	if err := s.departmentNameTaken(d.ID, d.Name); err != nil {
		return directory.Department{}, err
	}
	s.departments[d.ID] = d
	return d, nil
}

func (s *Store) GetDepartment(ctx context.Context, id string) (directory.Department, error) {
	if err := ctx.Err(); err != nil {
		return directory.Department{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.departments[id]
	if !ok {
		return directory.Department{}, notFound("department", id)
	}
	return d, nil
}

func (s *Store) UpdateDepartment(ctx context.Context, id string, upd directory.DepartmentUpdate, st directory.Stamp) (directory.Department, error) {
	if err := ctx.Err(); err != nil {
		return directory.Department{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.departments[id]
	if !ok {
		return directory.Department{}, notFound("department", id)
	}
	if upd.Name != nil {
		if err := s.departmentNameTaken(id, *upd.Name); err != nil {
			return directory.Department{}, err
		}
		d.Name = *upd.Name
	}
	at := st.At
	d.UpdatedAt = &at
	d.UpdatedBy = st.By
	s.departments[id] = d
	return d, nil
}

func (s *Store) DeleteDepartment(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.departments[id]
	if !ok {
		return notFound("department", id)
	}
	n := 0
	for _, t := range s.teams {
		if t.DepartmentID == id {
			n++
		}
	}
	if n > 0 {
		return conflict("department %s owns %d teams", d.Name, n)
	}
	delete(s.departments, id)
	return nil
}

func (s *Store) ListDepartments(ctx context.Context, q directory.DepartmentQuery) (directory.Result[directory.Department], error) {
	if err := ctx.Err(); err != nil {
		return directory.Result[directory.Department]{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	term := directory.SearchTerm(q.Search)
	var list []directory.Department
	for _, d := range s.departments {
		if directory.Matches(term, d.Name) {
			list = append(list, d)
		}
	}
	sortDepartments(list)
	return page(list, q.Page), nil
}

func (s *Store) SetDepartmentManager(ctx context.Context, departmentID, identityID string, st directory.Stamp) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.departments[departmentID]
	if !ok {
		return notFound("department", departmentID)
	}
	if identityID != "" {
		if _, ok := s.identities[identityID]; !ok {
			return notFound("identity", identityID)
		}
	}
	d.ManagerID = identityID
	at := st.At
	d.UpdatedAt = &at
	d.UpdatedBy = st.By
	s.departments[departmentID] = d
	return nil
}

func (s *Store) DepartmentsManagedBy(ctx context.Context, identityID string) ([]directory.Department, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []directory.Department
	for _, d := range s.departments {
		if identityID != "" && d.ManagerID == identityID {
			list = append(list, d)
		}
	}
	sortDepartments(list)
	return list, nil
}
