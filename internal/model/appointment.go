package model

import "time"

// LocationType tells where the sample is collected, which in turn selects the
// status workflow the appointment moves through.
type LocationType string

const (
	LocationHome     LocationType = "home"
	LocationFacility LocationType = "facility"
)

// LegalFlag distinguishes court-admissible tests from civil (peace-of-mind) ones.
type LegalFlag string

const (
	LegalFlagLegal LegalFlag = "legal"
	LegalFlagCivil LegalFlag = "civil"
)

// Appointment kind codes as recorded by the booking front end.
const (
	KindHomeCollection = "home_collection"
	KindFacilityVisit  = "facility_visit"
)

// Status is the wire/persistence vocabulary for appointment progress. Which
// statuses are legal for an appointment depends on its LocationType; the
// status package owns that mapping.
type Status string

const (
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusDeliveringKit  Status = "delivering_kit"
	StatusKitDelivered   Status = "kit_delivered"
	StatusSampleReceived Status = "sample_received"
	StatusTesting        Status = "testing"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
)

// RawAppointment is the appointment record as the upstream platform stores it.
// It is the source of truth and is never mutated by the enrichment pipeline.
type RawAppointment struct {
	ID               string    `json:"id"`
	ScheduledAt      time.Time `json:"scheduled_at"`
	KindCode         string    `json:"kind_code"`
	Confirmed        bool      `json:"confirmed"`
	Notes            string    `json:"notes"`
	OwnerUserID      string    `json:"owner_user_id"`
	ServiceID        string    `json:"service_id"`
	DoctorTimeSlotID string    `json:"doctor_time_slot_id,omitempty"`
	OrderID          string    `json:"order_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// DoctorInfo is the denormalized doctor + time-slot pair shown on an
// appointment. Both legs must resolve for it to be present at all.
type DoctorInfo struct {
	Doctor Doctor   `json:"doctor"`
	Slot   TimeSlot `json:"slot"`
}

// EnrichedAppointment is a RawAppointment joined with display data from the
// user, service, doctor, order and participant collections. It is rebuilt on
// every full reload and mutated only through workflow transitions.
type EnrichedAppointment struct {
	RawAppointment

	CustomerName    string        `json:"customer_name"`
	Phone           string        `json:"phone"`
	Email           string        `json:"email"`
	ServiceName     string        `json:"service_name"`
	ServiceCategory string        `json:"service_category"`
	Location        LocationType  `json:"location_type"`
	Legal           LegalFlag     `json:"legal_flag"`
	Doctor          *DoctorInfo   `json:"doctor_info,omitempty"`
	Participants    []Participant `json:"participants"`
	Order           *Order        `json:"order_snapshot,omitempty"`

	Status           Status    `json:"status"`
	CurrentStepIndex int       `json:"current_step_index"`
	CompletedSteps   []Status  `json:"completed_steps"`
	LastStatusUpdate time.Time `json:"last_status_update"`
}

// PersistedStatusRecord is the durable per-appointment status override. A
// present record always wins over a freshly computed status on reload; it is
// cleared only by an explicit finalize or delete.
type PersistedStatusRecord struct {
	AppointmentID  string    `json:"appointment_id"`
	Status         Status    `json:"status"`
	CurrentStep    int       `json:"current_step"`
	CompletedSteps []Status  `json:"completed_steps"`
	LastUpdated    time.Time `json:"last_updated"`
}
