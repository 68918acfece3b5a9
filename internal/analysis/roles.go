package analysis

import (
	"strings"

	"feedback-go/internal/models"
)

var roleKeywords = struct {
	faculty, course, section, department, semester, timestamp []string
}{
	faculty:    []string{"name of faculty", "faculty", "teacher", "professor", "instructor"},
	course:     []string{"course name", "course", "subject"},
	section:    []string{"class-section", "class section", "section"},
	department: []string{"department", "branch"},
	semester:   []string{"semester"},
	timestamp:  []string{"timestamp", "date", "submitted"},
}

// maxRoleHeaderLen bounds keyword-contains matches; longer headers are
// question text.
const maxRoleHeaderLen = 30

// DetectRoles designates the rollup columns by header keyword. Keywords are
// tried in order across all headers, so a header equal to the first keyword
// wins over one that merely contains a later one.
func DetectRoles(headers []string) models.ColumnRoles {
	return models.ColumnRoles{
		Faculty:    findRole(headers, roleKeywords.faculty),
		Course:     findRole(headers, roleKeywords.course),
		Section:    findRole(headers, roleKeywords.section),
		Department: findRole(headers, roleKeywords.department),
		Semester:   findRole(headers, roleKeywords.semester),
		Timestamp:  findRole(headers, roleKeywords.timestamp),
	}
}

func findRole(headers []string, keywords []string) string {
	for _, kw := range keywords {
		for _, h := range headers {
			if strings.ToLower(strings.TrimSpace(h)) == kw {
				return h
			}
		}
	}
	for _, kw := range keywords {
		for _, h := range headers {
			lower := strings.ToLower(h)
			if len(h) <= maxRoleHeaderLen && strings.Contains(lower, kw) {
				return h
			}
		}
	}
	return ""
}
