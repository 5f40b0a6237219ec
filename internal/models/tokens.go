package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TokenStatusActive   = "active"
	TokenStatusInactive = "inactive"
	TokenStatusRevoked  = "revoked"
)

const (
	TokenRoleUser  = "user"
	TokenRoleStaff = "staff"
	TokenRoleAdmin = "admin"
)

// KnownModelNames is the closed set of data models a permission entry may
// target. Permission writes against anything else are rejected.
var KnownModelNames = map[string]bool{
	"User":                 true,
	"UserDevice":           true,
	"Language":             true,
	"Book":                 true,
	"Chapter":              true,
	"DifficultyLevel":      true,
	"Word":                 true,
	"WordTranslation":      true,
	"WordDefinition":       true,
	"Collection":           true,
	"CollectionWord":       true,
	"UserProgress":         true,
	"UserSession":          true,
	"AppVersion":           true,
	"MobileAppToken":       true,
	"APIClientToken":       true,
	"TokenModelPermission": true,
}

// TokenBase is the shape shared by both token kinds. The secret is generated
// once at creation and only replaced by an explicit rotate.
type TokenBase struct {
	ID            string     `gorm:"type:uuid;primaryKey" json:"id"`
	Token         string     `gorm:"size:64;uniqueIndex;not null" json:"-"`
	Name          string     `gorm:"size:100;not null" json:"name"`
	Description   string     `json:"description"`
	Status        string     `gorm:"size:10;not null;default:active;index" json:"status"`
	CreatedByID   *string    `gorm:"type:uuid" json:"created_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	UsageCount    uint       `gorm:"not null;default:0" json:"usage_count"`
	MaxUsageCount *uint      `json:"max_usage_count,omitempty"`
	AllowedIPs    StringList `gorm:"type:text" json:"allowed_ips"`
}

type MobileAppToken struct {
	TokenBase    `gorm:"embedded"`
	AppVersionID uint       `gorm:"index" json:"app_version_id"`
	AppVersion   AppVersion `json:"app_version"`
	Role         string     `gorm:"size:10;not null;index" json:"role"`
}

func (MobileAppToken) TableName() string { return "mobile_app_tokens" }

func (t *MobileAppToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

type APIClientToken struct {
	TokenBase          `gorm:"embedded"`
	ClientName         string                 `gorm:"size:100;not null;index" json:"client_name"`
	ClientEmail        string                 `gorm:"size:254;not null" json:"client_email"`
	ClientOrganization string                 `gorm:"size:100" json:"client_organization"`
	RateLimitPerHour   int                    `gorm:"not null;default:1000" json:"rate_limit_per_hour"`
	RateLimitPerDay    int                    `gorm:"not null;default:10000" json:"rate_limit_per_day"`
	AllowedEndpoints   StringList             `gorm:"type:text" json:"allowed_endpoints"`
	Permissions        []TokenModelPermission `gorm:"foreignKey:TokenID" json:"permissions"`
}

func (APIClientToken) TableName() string { return "api_client_tokens" }

func (t *APIClientToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// TokenModelPermission is one row of the permission matrix: what a single API
// client token may do to a single data model. Absence of a row means no
// access at all.
type TokenModelPermission struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	TokenID   string `gorm:"type:uuid;not null;uniqueIndex:idx_token_model" json:"token_id"`
	ModelName string `gorm:"size:50;not null;uniqueIndex:idx_token_model" json:"model_name"`

	CanCreate bool `gorm:"not null;default:false" json:"can_create"`
	CanRead   bool `gorm:"not null;default:true" json:"can_read"`
	CanUpdate bool `gorm:"not null;default:false" json:"can_update"`
	CanDelete bool `gorm:"not null;default:false" json:"can_delete"`
	CanList   bool `gorm:"not null;default:true" json:"can_list"`

	CanBulkCreate bool `gorm:"not null;default:false" json:"can_bulk_create"`
	CanBulkUpdate bool `gorm:"not null;default:false" json:"can_bulk_update"`
	CanBulkDelete bool `gorm:"not null;default:false" json:"can_bulk_delete"`

	RestrictedFields StringList `gorm:"type:text" json:"restricted_fields"`
	ReadonlyFields   StringList `gorm:"type:text" json:"readonly_fields"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (TokenModelPermission) TableName() string { return "token_model_permissions" }

// TokenUsageLog is append-only. Token name is denormalized so audit rows stay
// meaningful after a token is deleted.
type TokenUsageLog struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	TokenType string `gorm:"size:10;not null;index:idx_token_window" json:"token_type"`
	TokenID   string `gorm:"size:40;not null;index:idx_token_window" json:"token_id"`
	TokenName string `gorm:"size:100;not null" json:"token_name"`

	Endpoint  string `gorm:"size:200;not null;index" json:"endpoint"`
	Method    string `gorm:"size:10;not null" json:"method"`
	IPAddress string `gorm:"size:45" json:"ip_address"`
	UserAgent string `json:"user_agent"`

	StatusCode     int   `gorm:"not null;index" json:"status_code"`
	ResponseTimeMs int64 `gorm:"not null" json:"response_time_ms"`
	RequestSize    int64 `gorm:"not null;default:0" json:"request_size"`
	ResponseSize   int64 `gorm:"not null;default:0" json:"response_size"`

	Timestamp time.Time `gorm:"not null;index;index:idx_token_window" json:"timestamp"`
}

func (TokenUsageLog) TableName() string { return "token_usage_logs" }
