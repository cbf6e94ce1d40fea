package model

import "time"

// Task statuses. New tasks always start as Pending.
const (
	TaskPending    = "Pending"
	TaskInProgress = "In Progress"
	TaskCompleted  = "Completed"
)

// Attendance statuses.
const (
	AttendancePresent = "Present"
	AttendanceAbsent  = "Absent"
	AttendanceLeave   = "Leave"
	AttendanceHoliday = "Holiday"
)

// Insight categories.
const (
	InsightWarning    = "Warning"
	InsightSuggestion = "Suggestion"
	InsightInsight    = "Insight"
)

// User roles. Owners and managers are "leaders": they administer teams and
// mark attendance. A manager carries a back-reference to its owner.
const (
	RoleOwner    = "owner"
	RoleManager  = "manager"
	RoleEmployee = "employee"
)

type User struct {
	ID       int    `gorm:"primaryKey" json:"id"`
	Username string `gorm:"uniqueIndex" json:"username"`
	Password string `json:"-"`
	Name     string `json:"name"`
	Role     string `gorm:"default:owner" json:"role"`
	OwnerID  *int   `json:"owner_id,omitempty"`
	Timezone string `gorm:"default:UTC" json:"timezone"`
}

// ScopeIDs is the set of leader ids whose data this user may see: the user
// itself plus, for a manager, its owner. Never wider than one level.
func (u User) ScopeIDs() []int {
	ids := []int{u.ID}
	if u.OwnerID != nil && *u.OwnerID != u.ID {
		ids = append(ids, *u.OwnerID)
	}
	return ids
}

// Team members are plain name strings, not foreign keys. Name collisions
// across teams are the join key for tasks, meetings and attendance.
type Team struct {
	ID        int       `gorm:"primaryKey" json:"id"`
	OwnerID   int       `gorm:"index" json:"owner_id"`
	TeamName  string    `json:"team_name"`
	Members   []string  `gorm:"serializer:json" json:"members"`
	CreatedAt time.Time `json:"created_at"`
}

// HasMember reports whether name is on the roster, case-insensitively.
func (t Team) HasMember(name string) bool {
	for _, m := range t.Members {
		if equalFold(m, name) {
			return true
		}
	}
	return false
}

type Task struct {
	ID          int        `gorm:"primaryKey" json:"id"`
	TeamID      int        `gorm:"index" json:"team_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `gorm:"default:Pending" json:"status"`
	AssignedTo  string     `json:"assigned_to"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedBy   int        `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
}

type Meeting struct {
	ID           int       `gorm:"primaryKey" json:"id"`
	TeamID       int       `gorm:"index" json:"team_id"`
	Title        string    `json:"title"`
	Agenda       string    `json:"agenda"`
	MeetingTime  time.Time `json:"meeting_time"`
	Participants []string  `gorm:"serializer:json" json:"participants"`
	MeetingLink  string    `json:"meeting_link"`
	CreatedBy    int       `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}

// Note is personal: it belongs to a user, never to a team.
type Note struct {
	ID         int       `gorm:"primaryKey" json:"id"`
	UserID     int       `gorm:"index" json:"user_id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Category   string    `json:"category"`
	PlanPeriod string    `json:"plan_period"`
	CreatedAt  time.Time `json:"created_at"`
}

type TeamNote struct {
	ID        int       `gorm:"primaryKey" json:"id"`
	TeamID    int       `gorm:"index" json:"team_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedBy int       `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Attendance holds one record per (leader, member, day). The compound unique
// index is the only collision guard for concurrent upserts: last write wins.
type Attendance struct {
	ID       int       `gorm:"primaryKey" json:"id"`
	LeaderID int       `gorm:"uniqueIndex:uk_leader_member_date" json:"leader_id"`
	Member   string    `gorm:"uniqueIndex:uk_leader_member_date" json:"member"`
	Date     time.Time `gorm:"uniqueIndex:uk_leader_member_date" json:"date"`
	Status   string    `json:"status"`
}

// Insight is ephemeral and user-scoped. Unread insights are wholly replaced
// on each generation cycle; read insights are kept as history.
type Insight struct {
	ID        int       `gorm:"primaryKey" json:"id"`
	UserID    int       `gorm:"index" json:"user_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `gorm:"column:is_read;default:false" json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// AIActionLog is the append-only audit trail of executed assistant actions.
// Writes are fire-and-forget and never surface failures to the caller.
type AIActionLog struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    int       `gorm:"index" json:"user_id"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

func (User) TableName() string        { return "users" }
func (Team) TableName() string        { return "teams" }
func (Task) TableName() string        { return "tasks" }
func (Meeting) TableName() string     { return "meetings" }
func (Note) TableName() string        { return "notes" }
func (TeamNote) TableName() string    { return "team_notes" }
func (Attendance) TableName() string  { return "attendance" }
func (Insight) TableName() string     { return "insights" }
func (AIActionLog) TableName() string { return "ai_action_logs" }
