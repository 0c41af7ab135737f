package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// JSON field type for GORM
type JSON []byte

func (j JSON) Value() (driver.Value, error) {
	if j.IsNull() {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	s, ok := value.([]byte)
	if !ok {
		return nil
	}
	*j = append((*j)[0:0], s...)
	return nil
}

func (j JSON) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}

func (j JSON) IsNull() bool {
	return len(j) == 0 || string(j) == "null"
}

// User model covers all four portal roles
type User struct {
	BaseModel
	Username             string     `json:"username" gorm:"size:100;not null;uniqueIndex"`
	Password             string     `json:"-" gorm:"size:255;not null"`
	Email                string     `json:"email" gorm:"size:255;uniqueIndex"`
	Phone                string     `json:"phone" gorm:"size:20"`
	Role                 string     `json:"role" gorm:"size:50;not null;default:'guardian';type:enum('admin','treasurer','auditor','guardian')"` // admin, treasurer, auditor, guardian
	Status               string     `json:"status" gorm:"size:50;not null;default:'active';type:enum('active','inactive','suspended')"`          // active, inactive, suspended
	Avatar               string     `json:"avatar" gorm:"size:500"`
	GuardianID           *uint      `json:"guardian_id"`
	PasswordResetToken   string     `json:"-" gorm:"size:255"`
	PasswordResetExpires *time.Time `json:"-"`

	// Relationships
	Guardian *Guardian `json:"guardian,omitempty" gorm:"foreignKey:GuardianID"`
}

// Guardian model - the parent a student row is linked to
type Guardian struct {
	BaseModel
	FirstName     string `json:"first_name" gorm:"size:100;not null"`
	LastName      string `json:"last_name" gorm:"size:100;not null"`
	ContactNumber string `json:"contact_number" gorm:"size:20"`
	Address       string `json:"address" gorm:"size:500"`
	Occupation    string `json:"occupation" gorm:"size:100"`

	// Relationships
	Students []Student `json:"students,omitempty" gorm:"foreignKey:GuardianID"`
}

// GradeLevel model
type GradeLevel struct {
	BaseModel
	Name      string `json:"name" gorm:"size:100;not null;uniqueIndex"`
	SortOrder int    `json:"sort_order" gorm:"default:1"`
}

// Section model
type Section struct {
	BaseModel
	Name         string `json:"name" gorm:"size:100;not null"`
	GradeLevelID uint   `json:"grade_level_id" gorm:"not null"`

	// Relationships
	GradeLevel GradeLevel `json:"grade_level,omitempty" gorm:"foreignKey:GradeLevelID"`
}

// SchoolYear model. At most one row has IsActive=true; the activation
// workflow enforces this, not the database. Chronological ordering is by
// StartDate with ID as tiebreak.
type SchoolYear struct {
	BaseModel
	Name      string    `json:"name" gorm:"size:100;not null;uniqueIndex"`
	StartDate time.Time `json:"start_date" gorm:"not null"`
	EndDate   time.Time `json:"end_date" gorm:"not null"`
	IsActive  bool      `json:"is_active" gorm:"default:false;index"`
}

// Contribution is a catalog fee type. Amount is the catalog default; the
// effective amount charged in a given year lives in SchoolYearContribution.
type Contribution struct {
	BaseModel
	TypeName  string  `json:"type_name" gorm:"size:255;not null;uniqueIndex"`
	Amount    float64 `json:"amount" gorm:"not null"`
	Mandatory bool    `json:"mandatory" gorm:"default:false"`
}

// SchoolYearContribution is the effective amount charged for a contribution,
// for a grade, in a year. Unique per (school_year, grade_level, contribution).
type SchoolYearContribution struct {
	BaseModel
	SchoolYearID   uint    `json:"school_year_id" gorm:"not null;uniqueIndex:idx_syc_year_grade_contrib"`
	GradeLevelID   uint    `json:"grade_level_id" gorm:"not null;uniqueIndex:idx_syc_year_grade_contrib"`
	ContributionID uint    `json:"contribution_id" gorm:"not null;uniqueIndex:idx_syc_year_grade_contrib"`
	TotalAmount    float64 `json:"total_amount" gorm:"not null"`

	// Relationships
	SchoolYear   SchoolYear   `json:"school_year,omitempty" gorm:"foreignKey:SchoolYearID"`
	GradeLevel   GradeLevel   `json:"grade_level,omitempty" gorm:"foreignKey:GradeLevelID"`
	Contribution Contribution `json:"contribution,omitempty" gorm:"foreignKey:ContributionID"`
}

// Student model. One logical learner may be represented by multiple rows,
// one per school year; rows are merged back by LRN (or normalized name +
// guardian) for guardian-facing views. Balance is the carry-over from prior
// years, ContributionBalance the amount owed for the current year only.
type Student struct {
	BaseModel
	GuardianID          *uint   `json:"guardian_id" gorm:"index"`
	GradeLevelID        uint    `json:"grade_level_id" gorm:"not null"`
	SectionID           *uint   `json:"section_id"`
	SchoolYearID        uint    `json:"school_year_id" gorm:"not null;index"`
	LRN                 string  `json:"lrn" gorm:"size:20;index"`
	FirstName           string  `json:"first_name" gorm:"size:100;not null"`
	LastName            string  `json:"last_name" gorm:"size:100;not null"`
	Balance             float64 `json:"balance" gorm:"default:0"`
	ContributionBalance float64 `json:"contribution_balance" gorm:"default:0"`
	Status              string  `json:"status" gorm:"size:50;not null;default:'active';type:enum('active','inactive')"` // active, inactive
	Archived            bool    `json:"archived" gorm:"default:false"`                                                  // UI hide/show only, decoupled from Status

	// Relationships
	Guardian   *Guardian  `json:"guardian,omitempty" gorm:"foreignKey:GuardianID"`
	GradeLevel GradeLevel `json:"grade_level,omitempty" gorm:"foreignKey:GradeLevelID"`
	Section    *Section   `json:"section,omitempty" gorm:"foreignKey:SectionID"`
	SchoolYear SchoolYear `json:"school_year,omitempty" gorm:"foreignKey:SchoolYearID"`
}

// IdentityKey merges per-year rows back into one logical learner. LRN wins
// when present; otherwise normalized name plus guardian id.
func (s *Student) IdentityKey() string {
	if lrn := strings.TrimSpace(s.LRN); lrn != "" {
		return "lrn:" + lrn
	}
	key := strings.ToLower(strings.TrimSpace(s.FirstName)) + "|" + strings.ToLower(strings.TrimSpace(s.LastName))
	if s.GuardianID != nil {
		key = fmt.Sprintf("%s|g%d", key, *s.GuardianID)
	}
	return "name:" + key
}

// OutstandingTotal is everything the student still owes across categories.
func (s *Student) OutstandingTotal() float64 {
	return s.Balance + s.ContributionBalance
}

// Payment is one treasurer transaction; rows are never merged or mutated.
// SchoolYearID may differ from the student row's current year because a
// payment can be retroactively applied to an older unpaid year.
type Payment struct {
	BaseModel
	StudentID      uint      `json:"student_id" gorm:"not null;index"`
	ContributionID uint      `json:"contribution_id" gorm:"not null;index"`
	SchoolYearID   uint      `json:"school_year_id" gorm:"not null;index"`
	AmountPaid     float64   `json:"amount_paid" gorm:"not null"`
	PaymentDate    time.Time `json:"payment_date" gorm:"not null"`
	ReceiptNo      string    `json:"receipt_no" gorm:"size:64;uniqueIndex"`
	PostedByUserID uint      `json:"posted_by_user_id"`

	// Relationships
	Student      Student      `json:"student,omitempty" gorm:"foreignKey:StudentID"`
	Contribution Contribution `json:"contribution,omitempty" gorm:"foreignKey:ContributionID"`
	SchoolYear   SchoolYear   `json:"school_year,omitempty" gorm:"foreignKey:SchoolYearID"`
}

// PaymentHistory is the append-only audit trail. BalanceBefore/After track
// the running balance for one (student, school-year-contribution) pair.
type PaymentHistory struct {
	BaseModel
	PaymentID                uint      `json:"payment_id" gorm:"not null;index"`
	SchoolYearContributionID uint      `json:"school_year_contribution_id" gorm:"not null;index"`
	StudentID                uint      `json:"student_id" gorm:"not null;index"`
	AmountPaid               float64   `json:"amount_paid" gorm:"not null"`
	PaymentDate              time.Time `json:"payment_date" gorm:"not null"`
	BalanceBefore            float64   `json:"balance_before" gorm:"not null"`
	BalanceAfter             float64   `json:"balance_after" gorm:"not null"`

	// Relationships
	Payment                Payment                `json:"payment,omitempty" gorm:"foreignKey:PaymentID"`
	SchoolYearContribution SchoolYearContribution `json:"school_year_contribution,omitempty" gorm:"foreignKey:SchoolYearContributionID"`
}

// Fund is the month-bucketed aggregate the treasurer dashboard reads.
type Fund struct {
	BaseModel
	Year           int     `json:"year" gorm:"not null;uniqueIndex:idx_fund_year_month"`
	Month          int     `json:"month" gorm:"not null;uniqueIndex:idx_fund_year_month"`
	TotalPayments  float64 `json:"total_payments" gorm:"default:0"`
	TotalDonations float64 `json:"total_donations" gorm:"default:0"`
	TotalExpenses  float64 `json:"total_expenses" gorm:"default:0"`
	TotalFunds     float64 `json:"total_funds" gorm:"default:0"`
}

// Donation model
type Donation struct {
	BaseModel
	DonorName    string    `json:"donor_name" gorm:"size:255;not null"`
	Amount       float64   `json:"amount" gorm:"not null"`
	DonationDate time.Time `json:"donation_date" gorm:"not null"`
	Notes        string    `json:"notes" gorm:"type:text"`
}

// Expense model
type Expense struct {
	BaseModel
	Description      string    `json:"description" gorm:"size:500;not null"`
	Category         string    `json:"category" gorm:"size:100"`
	Amount           float64   `json:"amount" gorm:"not null"`
	ExpenseDate      time.Time `json:"expense_date" gorm:"not null"`
	ApprovedByUserID uint      `json:"approved_by_user_id"`
}

// Announcement model
type Announcement struct {
	BaseModel
	Title          string     `json:"title" gorm:"size:255;not null"`
	Body           string     `json:"body" gorm:"type:text;not null"`
	PostedByUserID uint       `json:"posted_by_user_id" gorm:"not null"`
	PublishedAt    *time.Time `json:"published_at"`

	// Relationships
	PostedBy User `json:"posted_by,omitempty" gorm:"foreignKey:PostedByUserID"`
}

// Log model for activity tracking
type ActivityLog struct {
	BaseModel
	UserID     uint   `json:"user_id"`
	Action     string `json:"action" gorm:"size:100;not null"`
	Resource   string `json:"resource" gorm:"size:100;not null"`
	ResourceID uint   `json:"resource_id"`
	Details    JSON   `json:"details" gorm:"type:json"`
	IPAddress  string `json:"ip_address" gorm:"size:45"`
	UserAgent  string `json:"user_agent" gorm:"size:500"`

	// Relationships
	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// Notification model
type Notification struct {
	BaseModel
	UserID  uint       `json:"user_id" gorm:"not null"`
	Title   string     `json:"title" gorm:"size:255;not null"`
	Message string     `json:"message" gorm:"type:text;not null"`
	Type    string     `json:"type" gorm:"size:50;not null;type:enum('info','warning','error','success')"` // info, warning, error, success
	Read    bool       `json:"read" gorm:"default:false"`
	ReadAt  *time.Time `json:"read_at"`

	// Relationships
	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// LogArchive model for tracking archived logs
type LogArchive struct {
	BaseModel
	FileName    string    `json:"file_name" gorm:"size:255;not null"`
	S3Key       string    `json:"s3_key" gorm:"size:500;not null"`
	StartDate   time.Time `json:"start_date" gorm:"not null"`
	EndDate     time.Time `json:"end_date" gorm:"not null"`
	RecordCount int       `json:"record_count" gorm:"not null"`
	FileSize    int64     `json:"file_size" gorm:"not null"`
	Status      string    `json:"status" gorm:"size:50;not null;default:'pending';type:enum('pending','completed','failed')"` // pending, completed, failed
	Error       string    `json:"error" gorm:"type:text"`
}
