package models

// FilterState maps a category (column header) to the raw values selected in
// it. Empty selections are inactive.
type FilterState map[string][]string

// ColumnRoles names the columns the aggregation engine rolls up by. Empty
// fields mean the sheet has no such column.
type ColumnRoles struct {
	Faculty    string `json:"faculty,omitempty"`
	Course     string `json:"course,omitempty"`
	Section    string `json:"section,omitempty"`
	Department string `json:"department,omitempty"`
	Semester   string `json:"semester,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
}

// ColumnClassification is the output of the column classifier.
type ColumnClassification struct {
	QuestionColumns []string            `json:"questionColumns"`
	FilterColumns   map[string][]string `json:"filterColumns"`
}

type QuestionScore struct {
	Question     string  `json:"question"`
	Score        float64 `json:"score"`
	Responses    int     `json:"responses"`
	Distribution []int   `json:"distribution"`
}

// GroupScore is one faculty/course/section/department/semester rollup.
type GroupScore struct {
	Name          string   `json:"name"`
	Score         float64  `json:"score"`
	FeedbackCount int      `json:"feedbackCount"`
	Courses       []string `json:"courses,omitempty"`
	Sections      []string `json:"sections,omitempty"`
	Rank          int      `json:"rank,omitempty"`
}

type TrendPoint struct {
	Period string  `json:"period"`
	Year   int     `json:"year"`
	Month  int     `json:"month"`
	Week   int     `json:"week"`
	Score  float64 `json:"score"`
	Count  int     `json:"count"`
}

// Analytics is the full aggregate record for one filtered row set.
type Analytics struct {
	TotalResponses   int             `json:"totalResponses"`
	OverallAverage   float64         `json:"overallAverage"`
	QuestionScores   []QuestionScore `json:"questionScores"`
	FacultyScores    []GroupScore    `json:"facultyScores"`
	CourseScores     []GroupScore    `json:"courseScores"`
	SectionScores    []GroupScore    `json:"sectionScores"`
	DepartmentScores []GroupScore    `json:"departmentScores"`
	SemesterScores   []GroupScore    `json:"semesterScores"`
	Trend            []TrendPoint    `json:"trend"`
}

// EmptyAnalytics is the zero record returned for sources without rows.
func EmptyAnalytics() Analytics {
	return Analytics{
		QuestionScores:   []QuestionScore{},
		FacultyScores:    []GroupScore{},
		CourseScores:     []GroupScore{},
		SectionScores:    []GroupScore{},
		DepartmentScores: []GroupScore{},
		SemesterScores:   []GroupScore{},
		Trend:            []TrendPoint{},
	}
}
