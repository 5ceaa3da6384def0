package domain

import (
	"time"
)

// MaintenanceJob represents one repair or maintenance request on a property
type MaintenanceJob struct {
	ID           string    `json:"id"`
	PropertyID   string    `json:"propertyId"`
	LandlordID   string    `json:"landlordId"`
	ContractorID string    `json:"contractorId,omitempty"`
	Category     string    `json:"category"`
	Description  string    `json:"description"`
	Status       JobStatus `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type JobStatus string

const (
	JobStatusOpen       JobStatus = "open"
	JobStatusAssigned   JobStatus = "assigned"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusCancelled  JobStatus = "cancelled"
)
