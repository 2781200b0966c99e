package models

// TrailFilter represents filter parameters for listing trails
type TrailFilter struct {
	UserID     string `form:"userId"`
	PublicOnly bool   `form:"publicOnly"`
	LocalOnly  bool   `form:"localOnly"`
	Tag        string `form:"tag"`
	Page       int    `form:"page"`
	PageSize   int    `form:"pageSize"`
}

// Matches reports whether the trail passes the filter
func (f TrailFilter) Matches(t *Trail) bool {
	if f.UserID != "" && t.UserID != f.UserID {
		return false
	}
	if f.PublicOnly && !t.IsPublic {
		return false
	}
	if f.LocalOnly && !t.LocalOnly {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, tag := range t.Tags {
			if tag == f.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
