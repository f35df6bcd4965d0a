// Package domain holds the core data model of the defect detection API:
// companies, users, persisted detections and the defect records produced
// by the vision model.
package domain

import "time"

// Vehicle status values derived from a detection result.
const (
	VehicleStatusBroken    = "Broken"
	VehicleStatusNonBroken = "Non-Broken"
)

// User roles.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// DefaultCompanyName is assigned to auto-provisioned users until they onboard.
const DefaultCompanyName = "Default Company"

// Company groups users. Created implicitly when first referenced by name.
type Company struct {
	ID   string `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"uniqueIndex;not null"`
}

// User is a local account backed by the external identity provider.
// No credentials are stored; the provider owns authentication.
type User struct {
	ID        string `json:"id" gorm:"primaryKey"`
	Username  string `json:"username" gorm:"uniqueIndex;not null"`
	Email     string `json:"email" gorm:"uniqueIndex;not null"`
	Role      string `json:"role" gorm:"default:user"`
	CompanyID string `json:"company_id" gorm:"index"`
}

// Defect is a single labeled bounding box returned by the model.
// BBox is absolute pixel coordinates [x1,y1,x2,y2]; NormalizedBBox is the
// same box divided by the image width/height, each coordinate in [0,1].
type Defect struct {
	Class          string     `json:"class"`
	Confidence     float64    `json:"confidence"`
	BBox           [4]int     `json:"bbox"`
	NormalizedBBox [4]float64 `json:"normalized_bbox"`
}

// DefectList is stored as a JSON column on Detection.
type DefectList []Defect

// Detection is one persisted inference result tied to an uploaded image
// and its owning user. Immutable after creation.
type Detection struct {
	ID            string     `json:"id" gorm:"primaryKey"`
	UserID        string     `json:"user_id" gorm:"index;not null"`
	ImagePath     string     `json:"image_path"`
	Defects       DefectList `json:"defects" gorm:"serializer:json"`
	VehicleStatus string     `json:"vehicle_status"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Broken reports whether the detection should carry VehicleStatusBroken.
func (d *Detection) Broken() bool {
	return len(d.Defects) > 0
}

// Identity is the verified result of a bearer credential check:
// the provider-asserted email plus the provider's subject identifier.
type Identity struct {
	Email   string `json:"email"`
	Subject string `json:"subject"`
}

// RawBox is the model's native output for one object: class label,
// confidence and absolute pixel box, in the model's output order.
type RawBox struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	Box        [4]int  `json:"bbox"`
}

// OnboardRequest updates the fields left at defaults during auto-provisioning.
type OnboardRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	CompanyName string `json:"company_name"`
}

// LivePredictResponse is the body of POST /live-predict.
type LivePredictResponse struct {
	Detections []Defect `json:"detections"`
}

// DetectionMetrics is the JSON snapshot served for operational dashboards.
type DetectionMetrics struct {
	TotalPredictions int64   `json:"total_predictions"`
	BrokenCount      int64   `json:"broken_count"`
	ErrorCount       int64   `json:"error_count"`
	BrokenRate       float64 `json:"broken_rate"`
	TokenCacheHits   int64   `json:"token_cache_hits"`
	TokenCacheMisses int64   `json:"token_cache_misses"`
	CacheHitRate     float64 `json:"cache_hit_rate"`
}
