package analysis

import (
	"fmt"
	"sort"
	"time"

	"feedback-go/internal/models"
)

const (
	DefaultTopGroups    = 10
	DefaultTrendBuckets = 10
)

// AggregateOptions configures ComputeAggregates.
type AggregateOptions struct {
	Roles models.ColumnRoles
	// FacultyMapping folds name variants into one faculty rollup.
	FacultyMapping *models.NameMapping
	// TopGroups truncates the course/section/department/semester rollups.
	TopGroups    int
	TrendBuckets int
}

// ComputeAggregates scores a (usually pre-filtered) dataset.
//
// Per-question scores are plain means of the valid answers. The overall
// average is the unweighted mean of the per-question scores, so every
// question counts once regardless of how many people answered it. Group
// rollups and trend points average each row's own question mean.
func ComputeAggregates(ds *models.Dataset, questionColumns []string, opts AggregateOptions) models.Analytics {
	out := models.EmptyAnalytics()
	if ds.Len() == 0 {
		return out
	}
	if opts.TopGroups <= 0 {
		opts.TopGroups = DefaultTopGroups
	}
	if opts.TrendBuckets <= 0 {
		opts.TrendBuckets = DefaultTrendBuckets
	}
	out.TotalResponses = ds.Len()

	qcols := make([]int, 0, len(questionColumns))
	qnames := make([]string, 0, len(questionColumns))
	for _, q := range questionColumns {
		if col, ok := ds.Column(q); ok {
			qcols = append(qcols, col)
			qnames = append(qnames, q)
		}
	}

	sums := make([]float64, len(qcols))
	counts := make([]int, len(qcols))
	dist := make([][]int, len(qcols))
	for i := range dist {
		dist[i] = make([]int, 5)
	}
	rowMeans := make([]float64, len(ds.Rows))
	rowValid := make([]bool, len(ds.Rows))

	for r, row := range ds.Rows {
		rowSum, rowCount := 0.0, 0
		for i, col := range qcols {
			score, ok := ScoreValue(ds.Cell(row, col))
			if !ok {
				continue
			}
			sums[i] += score
			counts[i]++
			dist[i][bucket(score)]++
			rowSum += score
			rowCount++
		}
		if rowCount > 0 {
			rowMeans[r] = rowSum / float64(rowCount)
			rowValid[r] = true
		}
	}

	overallSum, answered := 0.0, 0
	for i, name := range qnames {
		qs := models.QuestionScore{Question: name, Responses: counts[i], Distribution: dist[i]}
		if counts[i] > 0 {
			mean := sums[i] / float64(counts[i])
			qs.Score = round2(mean)
			overallSum += mean
			answered++
		}
		out.QuestionScores = append(out.QuestionScores, qs)
	}
	if answered > 0 {
		out.OverallAverage = round2(overallSum / float64(answered))
	}

	roles := opts.Roles
	out.FacultyScores = rankFaculty(facultyRollup(ds, roles, opts.FacultyMapping, rowMeans, rowValid))
	out.CourseScores = topGroups(rollup(ds, roles.Course, nil, rowMeans, rowValid), opts.TopGroups)
	out.SectionScores = topGroups(rollup(ds, roles.Section, nil, rowMeans, rowValid), opts.TopGroups)
	out.DepartmentScores = topGroups(rollup(ds, roles.Department, nil, rowMeans, rowValid), opts.TopGroups)
	out.SemesterScores = topGroups(rollup(ds, roles.Semester, nil, rowMeans, rowValid), opts.TopGroups)
	out.Trend = trend(ds, roles.Timestamp, rowMeans, rowValid, opts.TrendBuckets)
	return out
}

type groupAcc struct {
	name     string
	sum      float64
	count    int
	courses  map[string]struct{}
	sections map[string]struct{}
}

// rollup accumulates row means per trimmed key in first-seen order. Rows
// without a key or without any valid answer are skipped.
func rollup(ds *models.Dataset, column string, keyFn func(string) string, rowMeans []float64, rowValid []bool) []*groupAcc {
	col, ok := ds.Column(column)
	if column == "" || !ok {
		return nil
	}
	index := map[string]*groupAcc{}
	var order []*groupAcc
	for r, row := range ds.Rows {
		if !rowValid[r] {
			continue
		}
		key := ds.Cell(row, col).Text()
		if key == "" {
			continue
		}
		if keyFn != nil {
			key = keyFn(key)
		}
		acc := index[key]
		if acc == nil {
			acc = &groupAcc{name: key}
			index[key] = acc
			order = append(order, acc)
		}
		acc.sum += rowMeans[r]
		acc.count++
	}
	return order
}

func facultyRollup(ds *models.Dataset, roles models.ColumnRoles, mapping *models.NameMapping, rowMeans []float64, rowValid []bool) []*groupAcc {
	groups := rollup(ds, roles.Faculty, mapping.Canonical, rowMeans, rowValid)
	if len(groups) == 0 {
		return groups
	}
	byName := make(map[string]*groupAcc, len(groups))
	for _, g := range groups {
		g.courses = map[string]struct{}{}
		g.sections = map[string]struct{}{}
		byName[g.name] = g
	}
	fcol, _ := ds.Column(roles.Faculty)
	ccol, hasCourse := ds.Column(roles.Course)
	scol, hasSection := ds.Column(roles.Section)
	for r, row := range ds.Rows {
		if !rowValid[r] {
			continue
		}
		g := byName[mapping.Canonical(ds.Cell(row, fcol).Text())]
		if g == nil {
			continue
		}
		if hasCourse {
			if c := ds.Cell(row, ccol).Text(); c != "" {
				g.courses[c] = struct{}{}
			}
		}
		if hasSection {
			if s := ds.Cell(row, scol).Text(); s != "" {
				g.sections[s] = struct{}{}
			}
		}
	}
	return groups
}

func toScores(groups []*groupAcc) []models.GroupScore {
	out := make([]models.GroupScore, 0, len(groups))
	for _, g := range groups {
		gs := models.GroupScore{
			Name:          g.name,
			Score:         round2(g.sum / float64(g.count)),
			FeedbackCount: g.count,
		}
		if g.courses != nil {
			gs.Courses = sortedKeys(g.courses)
			gs.Sections = sortedKeys(g.sections)
		}
		out = append(out, gs)
	}
	// Stable: equal scores keep first-seen order.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// rankFaculty assigns dense ranks by descending score.
func rankFaculty(groups []*groupAcc) []models.GroupScore {
	scores := toScores(groups)
	rank := 0
	for i := range scores {
		if i == 0 || scores[i].Score != scores[i-1].Score {
			rank++
		}
		scores[i].Rank = rank
	}
	return scores
}

func topGroups(groups []*groupAcc, n int) []models.GroupScore {
	scores := toScores(groups)
	if len(scores) > n {
		scores = scores[:n]
	}
	return scores
}

type trendKey struct {
	year  int
	month time.Month
	week  int
}

// trend buckets rows by month and week-of-month and keeps the latest buckets
// in ascending order.
func trend(ds *models.Dataset, column string, rowMeans []float64, rowValid []bool, buckets int) []models.TrendPoint {
	col, ok := ds.Column(column)
	if column == "" || !ok {
		return []models.TrendPoint{}
	}
	type acc struct {
		sum   float64
		count int
	}
	accs := map[trendKey]*acc{}
	for r, row := range ds.Rows {
		if !rowValid[r] {
			continue
		}
		ts, ok := ParseTimestamp(ds.Cell(row, col))
		if !ok {
			continue
		}
		k := trendKey{year: ts.Year(), month: ts.Month(), week: weekOfMonth(ts)}
		a := accs[k]
		if a == nil {
			a = &acc{}
			accs[k] = a
		}
		a.sum += rowMeans[r]
		a.count++
	}

	keys := make([]trendKey, 0, len(accs))
	for k := range accs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.year != b.year {
			return a.year < b.year
		}
		if a.month != b.month {
			return a.month < b.month
		}
		return a.week < b.week
	})
	if len(keys) > buckets {
		keys = keys[len(keys)-buckets:]
	}

	out := make([]models.TrendPoint, 0, len(keys))
	for _, k := range keys {
		a := accs[k]
		out = append(out, models.TrendPoint{
			Period: fmt.Sprintf("%s %d W%d", k.month.String()[:3], k.year, k.week),
			Year:   k.year,
			Month:  int(k.month),
			Week:   k.week,
			Score:  round2(a.sum / float64(a.count)),
			Count:  a.count,
		})
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
