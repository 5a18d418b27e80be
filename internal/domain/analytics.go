package domain

// ============================================================
// Dashboard aggregates
// ============================================================

// StatusCount is the number of rows holding one status.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// MonthlyRevenue is the summed price of settled rows in one month.
type MonthlyRevenue struct {
	Month int     `json:"month"` // 1-12
	Total float64 `json:"total"`
}

// Dashboard is the scoped read model for GET /dashboard.
type Dashboard struct {
	Year                int              `json:"year"`
	ListsByStatus       []StatusCount    `json:"lists_by_status"`
	SubmissionsByStatus []StatusCount    `json:"submissions_by_status"`
	ListRevenue         []MonthlyRevenue `json:"list_revenue"`
	SubmissionRevenue   []MonthlyRevenue `json:"submission_revenue"`
	TotalLists          int              `json:"total_lists"`
	TotalSubmissions    int              `json:"total_submissions"`
}
