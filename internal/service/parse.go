package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/med-timely/bot/internal/domain"
)

// ParseScheduleArgs parses "drug | dose | times per day [| days] [| comment]".
// An empty or "-" days field means an open-ended course.
func ParseScheduleArgs(args string) (domain.ScheduleInput, error) {
	parts := strings.Split(args, "|")
	if len(parts) < 3 || len(parts) > 5 {
		return domain.ScheduleInput{}, domain.NewValidationError(
			"usage: /schedule drug | dose | times per day [| days] [| comment]")
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	in := domain.ScheduleInput{DrugName: parts[0], Dose: parts[1]}

	n, err := strconv.Atoi(parts[2])
	if err != nil {
		return domain.ScheduleInput{}, domain.NewValidationError(fmt.Sprintf("times per day must be a number, got %q", parts[2]))
	}
	in.DosesPerDay = n

	if len(parts) > 3 && parts[3] != "" && parts[3] != "-" {
		days, err := strconv.Atoi(parts[3])
		if err != nil {
			return domain.ScheduleInput{}, domain.NewValidationError(fmt.Sprintf("days must be a number, got %q", parts[3]))
		}
		in.Duration = &days
	}
	if len(parts) > 4 {
		in.Comment = parts[4]
	}

	return in, in.Validate()
}

// ParseDaylightHours accepts "8 22", "08-22" or "8:00 22:00".
func ParseDaylightHours(args string) (start, end int, err error) {
	fields := strings.FieldsFunc(args, func(r rune) bool {
		return r == ' ' || r == '-' || r == '\t'
	})
	if len(fields) != 2 {
		return 0, 0, domain.NewValidationError("usage: /hours <start> <end>, e.g. /hours 8 22")
	}

	hours := make([]int, 2)
	for i, f := range fields {
		f = strings.TrimSuffix(f, ":00")
		h, err := strconv.Atoi(f)
		if err != nil || h < 0 || h > 23 {
			return 0, 0, domain.NewValidationError(fmt.Sprintf("invalid hour %q", fields[i]))
		}
		hours[i] = h
	}
	if hours[0] >= hours[1] {
		return 0, 0, domain.NewValidationError("start hour must be before end hour")
	}
	return hours[0], hours[1], nil
}

// ParseHistoryDays parses the optional /history argument.
func ParseHistoryDays(args string) (int, error) {
	args = strings.TrimSpace(args)
	if args == "" {
		return DefaultHistoryDays, nil
	}
	days, err := strconv.Atoi(args)
	if err != nil || days < 1 || days > MaxHistoryDays {
		return 0, domain.NewValidationError(fmt.Sprintf("days must be a number between 1 and %d", MaxHistoryDays))
	}
	return days, nil
}
