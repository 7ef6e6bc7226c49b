package costquery

import "time"

// Window is a Cost Explorer time period.
type Window struct {
	Start string
	End   string
}

func today(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

// LastDays is the window from days before today up to today.
func LastDays(now time.Time, days int) Window {
	end := today(now)
	return Window{
		Start: end.AddDate(0, 0, -days).Format(DateLayout),
		End:   end.Format(DateLayout),
	}
}

// YearToDate runs from the first of January to today. On the first of
// January it falls back to the previous day so the period is never
// empty.
func YearToDate(now time.Time) Window {
	end := today(now)
	if end.YearDay() == 1 {
		return LastDays(now, 1)
	}
	return LastDays(now, end.YearDay()-1)
}

// Query fills a query's time period from w.
func (w Window) Query(granularity string) *Query {
	return &Query{
		Start:       w.Start,
		End:         w.End,
		Granularity: granularity,
		Metric:      UnblendedCost,
	}
}
