package models

import "time"

// DefaultCourse is assigned when a record is created without a course.
const DefaultCourse = "MERN Bootcamp"

// Student represents a tracked student record, independent of login
// capability. LinkedUserID is set only for self-registered students.
type Student struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Email          string    `db:"email" json:"email"`
	Course         string    `db:"course" json:"course"`
	EnrollmentDate time.Time `db:"enrollment_date" json:"enrollmentDate"`
	ProfilePic     string    `db:"profile_pic" json:"profilePic"`
	LinkedUserID   *string   `db:"linked_user_id" json:"linkedUser,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// StudentFilter encapsulates paging and search parameters for the admin list.
type StudentFilter struct {
	Search string
	Page   int
	Limit  int
}

// ListMeta carries pagination metadata for the admin list response.
type ListMeta struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Pages int `json:"pages"`
}

// StudentList is the admin list response body.
type StudentList struct {
	Students []Student `json:"students"`
	Meta     ListMeta  `json:"meta"`
}
