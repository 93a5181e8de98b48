package model

import "time"

// Demo builds the sample "Super Event" program seeded on first run: three
// stages over 1–2 January 2010, with B5 moved from 11:30 to 15:30 and B6
// cancelled.
func Demo(loc *time.Location) *Event {
	if loc == nil {
		loc = time.Local
	}
	at := func(day, hour, min int) time.Time {
		return time.Date(2010, time.January, day, hour, min, 0, 0, loc)
	}

	e := NewEvent("Super Event")
	e.ShortName = "Super"
	e.URI = "http://openair.linhard.sk/events/test_event"
	e.Version = 1

	type item struct {
		name       string
		day, h, m  int
		durationHr int
	}
	stages := []struct {
		name string
		days [][]item
	}{
		{"Stage A", [][]item{
			{{"Performance A1", 1, 10, 0, 1}, {"Performance A2", 1, 11, 30, 1}, {"Performance A3", 1, 13, 0, 1}},
			{{"Performance A4", 2, 10, 0, 1}, {"Performance A5", 2, 11, 30, 1}, {"Performance A6", 2, 13, 0, 2}},
		}},
		{"Stage B", [][]item{
			{{"Performance B1", 1, 10, 0, 1}, {"Performance B2", 1, 11, 30, 1}, {"Performance B3", 1, 13, 0, 1}},
			{{"Performance B4", 2, 10, 0, 1}, {"Performance B5", 2, 11, 30, 1}, {"Performance B6", 2, 13, 0, 2}},
		}},
		{"Stage C", [][]item{
			{{"Performance C1", 1, 10, 0, 1}, {"Performance C2", 1, 11, 30, 1}, {"Performance C3", 1, 13, 0, 1}},
		}},
	}

	for _, st := range stages {
		l, _ := e.AddLocation(st.name)
		for _, items := range st.days {
			d, _ := l.AddDay(at(items[0].day, 0, 0))
			for _, it := range items {
				_, _ = d.AddSession(it.name, at(it.day, it.h, it.m), time.Duration(it.durationHr)*time.Hour)
			}
		}
	}

	day2 := e.FindLocation("Stage B").FindDayProgram(at(2, 0, 0))
	sessions := day2.Sessions()
	moved := at(2, 15, 30)
	_, _ = sessions[1].Change(nil, &moved, nil)
	sessions[2].Cancel()
	return e
}
