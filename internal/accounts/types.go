// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package accounts

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"
)

// ID identifies a resource. The API sends numbers or strings.
type ID string

// UnmarshalJSON accepts a JSON number or string.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON writes numeric IDs as numbers.
func (id ID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id ID) String() string { return string(id) }

// User is a row of the users list.
type User struct {
	ID         ID     `json:"id,omitempty"`
	Email      string `json:"email,omitempty"`
	Username   string `json:"username,omitempty"`
	IsActive   bool   `json:"is_active"`
	DateJoined string `json:"date_joined,omitempty"`
}

// UserDetail is a single user with profile fields and roles.
type UserDetail struct {
	User
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	IsStaff   bool   `json:"is_staff,omitempty"`
	Roles     []Role `json:"roles,omitempty"`
	LastLogin string `json:"last_login,omitempty"`
}

// DisplayName returns the best human-readable name of the user.
func (u *UserDetail) DisplayName() string {
	switch {
	case u.FirstName != "" || u.LastName != "":
		return joinNonEmpty(u.FirstName, u.LastName)
	case u.Username != "":
		return u.Username
	default:
		return u.Email
	}
}

func joinNonEmpty(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + " " + b
}

// Role groups permissions.
type Role struct {
	ID          ID           `json:"id,omitempty"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// Permission is a single grant.
type Permission struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	Codename    string `json:"codename"`
	ContentType string `json:"content_type,omitempty"`
}

// Page is a paginated list.
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// Envelope is the response wrapper of the accounts API.
type Envelope[T any] struct {
	Status  bool   `json:"status"`
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
	Detail  any    `json:"detail,omitempty"`
	Errors  any    `json:"errors,omitempty"`
}

// Credentials is the login payload. Either Username or Email identifies the user.
type Credentials struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// UserRequest creates or patches a user. Zero fields are omitted.
type UserRequest struct {
	Email     string `json:"email,omitempty"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	IsActive  *bool  `json:"is_active,omitempty"`
	Roles     []ID   `json:"roles,omitempty"`
}

// RoleRequest creates or patches a role.
type RoleRequest struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Permissions []ID   `json:"permissions,omitempty"`
}

// PageQuery selects a page of a list.
type PageQuery struct {
	Page     int
	PageSize int
	Ordering string
}

// Values encodes the query. Zero fields are left out.
func (q PageQuery) Values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(q.PageSize))
	}
	if q.Ordering != "" {
		v.Set("ordering", q.Ordering)
	}
	return v
}

// UserQuery filters the users list.
type UserQuery struct {
	PageQuery
	Email    string
	Username string
	IsActive *bool
}

// Values encodes the query.
func (q UserQuery) Values() url.Values {
	v := q.PageQuery.Values()
	if q.Email != "" {
		v.Set("email", q.Email)
	}
	if q.Username != "" {
		v.Set("username", q.Username)
	}
	if q.IsActive != nil {
		v.Set("is_active", strconv.FormatBool(*q.IsActive))
	}
	return v
}

// RoleQuery filters the roles list.
type RoleQuery struct {
	PageQuery
	Name string
}

// Values encodes the query.
func (q RoleQuery) Values() url.Values {
	v := q.PageQuery.Values()
	if q.Name != "" {
		v.Set("name", q.Name)
	}
	return v
}
