package domain

import (
	"fmt"
	"time"
)

func ParseMonth(month string) (time.Time, error) {
	t, err := time.Parse(MonthLayout, month)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q: expected YYYY-MM", month)
	}
	return t, nil
}

func NextMonth(month string) (string, error) {
	t, err := ParseMonth(month)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 1, 0).Format(MonthLayout), nil
}

// PlanRollover moves cost forward to toMonth. The open month is archived with its
// recovered amount and every skipped month with zero; the new bucket starts empty.
// A cost already at or past toMonth is returned unchanged with no rows.
func PlanRollover(cost RecurringCost, toMonth string, newID func() string, at time.Time) (RecurringCost, []MonthlyHistoryRow, error) {
	if _, err := ParseMonth(toMonth); err != nil {
		return cost, nil, err
	}
	if _, err := ParseMonth(cost.CurrentMonth); err != nil {
		return cost, nil, err
	}
	if cost.CurrentMonth >= toMonth {
		return cost, nil, nil
	}

	rows := []MonthlyHistoryRow{SnapshotMonth(cost, cost.CurrentMonth, cost.RecoveredAmount, newID(), at)}
	month, err := NextMonth(cost.CurrentMonth)
	if err != nil {
		return cost, nil, err
	}
	for month < toMonth {
		rows = append(rows, SnapshotMonth(cost, month, 0, newID(), at))
		if month, err = NextMonth(month); err != nil {
			return cost, nil, err
		}
	}

	cost.CurrentMonth = toMonth
	cost.RecoveredAmount = 0
	cost.RefreshStatus()
	return cost, rows, nil
}
