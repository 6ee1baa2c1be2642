package attempt

// pageSizeFor splits an exam into roughly three pages. Quizzes with fewer
// than three questions fit one page, and a zero-question quiz yields a
// zero page size rather than dividing by zero downstream.
func pageSizeFor(questionsCount int) int {
	if questionsCount >= 3 {
		return questionsCount / 3
	}
	return questionsCount
}

func totalPagesFor(orderLen, pageSize int) int {
	if pageSize <= 0 || orderLen <= 0 {
		return 0
	}
	return (orderLen + pageSize - 1) / pageSize
}

// clampPage forces page into [1, totalPages]; above clamps down before the
// lower bound applies, so totalPages 0 ends up at page 1 with an empty
// slice.
func clampPage(page, totalPages int) int {
	if page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}
	return page
}

func pageBounds(page, pageSize, orderLen int) (int, int) {
	start := (page - 1) * pageSize
	if start > orderLen {
		start = orderLen
	}
	end := start + pageSize
	if end > orderLen {
		end = orderLen
	}
	return start, end
}
