package classroom

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/semillerodigital/classroomplus/internal/model"
)

// Me is the user id alias Classroom resolves to the caller.
const Me = "me"

// CourseFilter narrows courses.list. Empty fields are not sent.
type CourseFilter struct {
	StudentID string
	TeacherID string
	States    []model.CourseState
}

// ListCourses lists courses visible to the caller.
func (c *Client) ListCourses(ctx context.Context, f CourseFilter) (Listing[model.Course], error) {
	q := url.Values{}
	if f.StudentID != "" {
		q.Set("studentId", f.StudentID)
	}
	if f.TeacherID != "" {
		q.Set("teacherId", f.TeacherID)
	}
	for _, s := range f.States {
		q.Add("courseStates", string(s))
	}
	return list(ctx, c, ref{resource: ResourceCourses}, c.url("courses"), q, "courses", toCourse)
}

// GetCourse fetches one course.
func (c *Client) GetCourse(ctx context.Context, courseID string) (model.Course, error) {
	r := ref{resource: ResourceCourse, courseID: courseID}
	var d courseDTO
	if err := c.get(ctx, r, c.url("courses", courseID), nil, &d); err != nil {
		return model.Course{}, err
	}
	course, err := toCourse(d)
	if err != nil {
		return model.Course{}, r.fail(http.StatusOK, "", err)
	}
	return course, nil
}

// ListCourseWork lists the coursework of a course.
func (c *Client) ListCourseWork(ctx context.Context, courseID string) (Listing[model.CourseWork], error) {
	r := ref{resource: ResourceCourseWork, courseID: courseID}
	return list(ctx, c, r, c.url("courses", courseID, "courseWork"), nil, "courseWork", toCourseWork)
}

// GetCourseWork fetches one coursework item.
func (c *Client) GetCourseWork(ctx context.Context, courseID, courseWorkID string) (model.CourseWork, error) {
	r := ref{resource: ResourceCourseWork, courseID: courseID, courseWorkID: courseWorkID}
	var d courseWorkDTO
	if err := c.get(ctx, r, c.url("courses", courseID, "courseWork", courseWorkID), nil, &d); err != nil {
		return model.CourseWork{}, err
	}
	cw, err := toCourseWork(d)
	if err != nil {
		return model.CourseWork{}, r.fail(http.StatusOK, "", err)
	}
	return cw, nil
}

// ListSubmissions lists submissions for a coursework item. userID may be Me,
// a user id, or empty for every student.
func (c *Client) ListSubmissions(ctx context.Context, courseID, courseWorkID, userID string) (Listing[model.Submission], error) {
	r := ref{resource: ResourceSubmissions, courseID: courseID, courseWorkID: courseWorkID}
	q := url.Values{}
	if userID != "" {
		q.Set("userId", userID)
	}
	return list(ctx, c, r, c.url("courses", courseID, "courseWork", courseWorkID, "studentSubmissions"), q, "studentSubmissions", toSubmission)
}

func rosterResource(role model.RosterRole) (Resource, error) {
	switch role {
	case model.RosterStudents:
		return ResourceStudents, nil
	case model.RosterTeachers:
		return ResourceTeachers, nil
	}
	return "", fmt.Errorf("unknown roster %q", role)
}

// ListRoster lists the students or teachers of a course.
func (c *Client) ListRoster(ctx context.Context, courseID string, role model.RosterRole) (Listing[model.Person], error) {
	res, err := rosterResource(role)
	if err != nil {
		return Listing[model.Person]{}, err
	}
	r := ref{resource: res, courseID: courseID}
	return list(ctx, c, r, c.url("courses", courseID, string(role)), nil, string(role), toPerson)
}

// GetRosterMember fetches one roster entry; userID may be Me.
func (c *Client) GetRosterMember(ctx context.Context, courseID string, role model.RosterRole, userID string) (model.Person, error) {
	res, err := rosterResource(role)
	if err != nil {
		return model.Person{}, err
	}
	r := ref{resource: res, courseID: courseID}
	var d personDTO
	if err := c.get(ctx, r, c.url("courses", courseID, string(role), userID), nil, &d); err != nil {
		return model.Person{}, err
	}
	p, err := toPerson(d)
	if err != nil {
		return model.Person{}, r.fail(http.StatusOK, "", err)
	}
	return p, nil
}

// UserInfo is the OpenID Connect profile of the token's owner.
type UserInfo struct {
	ID      string
	Email   string
	Name    string
	Picture string
}

// UserInfo asks the identity provider who owns the access token.
func (c *Client) UserInfo(ctx context.Context) (UserInfo, error) {
	r := ref{resource: ResourceUserInfo}
	var d userInfoDTO
	if err := c.get(ctx, r, c.opts.UserInfoURL, nil, &d); err != nil {
		return UserInfo{}, err
	}
	if err := validate.Struct(d); err != nil {
		return UserInfo{}, r.fail(http.StatusOK, "", fmt.Errorf("userinfo: %w", err))
	}
	return UserInfo{ID: d.Sub, Email: d.Email, Name: d.Name, Picture: photoURL(d.Picture)}, nil
}
