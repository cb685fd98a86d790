package seedfile

import (
	"eegrecords/internal/core"
	"time"
)

// Demo returns the built-in sample batch: three patients with four sessions.
func Demo() []core.PatientSpec {
	date := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }
	return []core.PatientSpec{
		{
			FullName:    "Иван Иванов",
			BirthDate:   date(1985, time.April, 12),
			ContactInfo: "тел: +7 900 111 22 33",
			Sessions: []core.SessionSpec{
				{DaysAgo: 10, DurationMinutes: core.Minutes(20), Technician: "Др. Смирнов", Conclusion: "Норма"},
				{DaysAgo: 3, DurationMinutes: core.Minutes(30), Technician: "Др. Смирнов", Conclusion: "Снижение альфа"},
			},
		},
		{
			FullName:    "Мария Петрова",
			BirthDate:   date(1992, time.September, 1),
			ContactInfo: "тел: +7 900 444 55 66",
			Sessions: []core.SessionSpec{
				{DaysAgo: 7, DurationMinutes: core.Minutes(25), Technician: "Др. Козлова", Conclusion: "Аномалия, бета"},
			},
		},
		{
			FullName:  "Алексей Котов",
			BirthDate: date(1978, time.December, 20),
			Sessions: []core.SessionSpec{
				{DaysAgo: 1, DurationMinutes: core.Minutes(15), Technician: "Др. Иванов", Conclusion: "Шум/артефакты"},
			},
		},
	}
}
