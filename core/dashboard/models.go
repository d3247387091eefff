package dashboard

import (
	"time"

	"github.com/eduplatform/backend/core/user"
)

const (
	topCoursesLimit      = 3
	activeStudentsWindow = 7 * 24 * time.Hour
	recentEnrollWindow   = 2 * 24 * time.Hour
	monthlyUsersMonths   = 12
)

var motivationalTips = []string{
	"Consistency beats intensity: upload a little every day.",
	"Short lectures keep students watching until the end.",
	"Reply to your students' reviews, they notice.",
	"A clear curriculum sells a course before the first lecture.",
	"Preview lectures turn visitors into students.",
	"Great courses are never finished, only improved.",
}

type Activity struct {
	CourseID        string     `json:"courseId"`
	CourseTitle     string     `json:"courseTitle"`
	ProgressPercent int        `json:"progressPercent"`
	LastWatchedAt   *time.Time `json:"lastWatchedAt"`
}

type StudentDashboard struct {
	TotalEnrolled    int        `json:"totalEnrolled"`
	CompletedCourses int        `json:"completedCourses"`
	Certificates     int        `json:"certificates"`
	Activity         []Activity `json:"activity"`
}

type KPIs struct {
	TotalCourses                  int     `json:"totalCourses"`
	TotalStudents                 int     `json:"totalStudents"`
	ActiveStudents                int     `json:"activeStudents"`
	TotalLectures                 int     `json:"totalLectures"`
	AvgCompletion                 int     `json:"avgCompletion"`
	TotalEarnings                 float64 `json:"totalEarnings"`
	MonthlyEarnings               float64 `json:"monthlyEarnings"`
	MonthlyCourses                int     `json:"monthlyCourses"`
	MonthlyLectures               int     `json:"monthlyLectures"`
	Streak                        int     `json:"streak"`
	RecentTwoDaysEnrollmentsCount int     `json:"recentTwoDaysEnrollmentsCount"`
}

type TopCourse struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Image         string `json:"image"`
	Enrollments   int    `json:"enrollments"`
	StudentsCount int    `json:"studentsCount"`
	AvgCompletion int    `json:"avgCompletion"`
}

type CourseRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type RecentEnrollment struct {
	Student    user.Summary `json:"student"`
	Course     CourseRef    `json:"course"`
	EnrolledAt time.Time    `json:"enrolledAt"`
}

type TutorDashboard struct {
	KPIs              KPIs               `json:"kpis"`
	TopCourses        []TopCourse        `json:"topCourses"`
	RecentEnrollments []RecentEnrollment `json:"recentEnrollments"`
	MotivationalTip   string             `json:"motivationalTip"`
	LastUpload        *time.Time         `json:"lastUpload"`
}

type MonthCount struct {
	Month string `json:"month"`
	Users int    `json:"users"`
}

type AdminDashboard struct {
	KPIs                KPIs               `json:"kpis"`
	MonthlyNewUsers     int                `json:"monthlyNewUsers"`
	MonthlyNewCourses   int                `json:"monthlyNewCourses"`
	MonthlyEnrollments  int                `json:"monthlyEnrollments"`
	MonthlyNewUsersData []MonthCount       `json:"monthlyNewUsersData"`
	TopCourses          []TopCourse        `json:"topCourses"`
	RecentEnrollments   []RecentEnrollment `json:"recentEnrollments"`
}
