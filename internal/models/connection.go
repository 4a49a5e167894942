package models

import "time"

// Connection types
const (
	ConnectionPrepaid  = "prepaid"
	ConnectionPostpaid = "postpaid"
	ConnectionSubmeter = "submeter"
)

// Connection is a metered site belonging to an organization.
type Connection struct {
	ID               string    `json:"id" db:"id"`
	OrganizationID   string    `json:"organizationId" db:"organization_id"`
	ConnectionNumber string    `json:"connectionNumber" db:"connection_number"`
	SiteName         string    `json:"siteName" db:"site_name"`
	ConnectionType   string    `json:"connectionType" db:"connection_type"`
	BillerCode       string    `json:"billerCode" db:"biller_code"`
	Latitude         *float64  `json:"latitude,omitempty" db:"latitude"`
	Longitude        *float64  `json:"longitude,omitempty" db:"longitude"`
	CreatedAt        time.Time `json:"createdAt" db:"created_at"`
}
