package model

import "time"

// User is an account in the upstream user collection (appointment owners).
type User struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Address  string `json:"address"`
}

// FallbackUserName marks a user whose lookup failed on every retry. The
// sentinel keeps degraded data visible instead of silently masking an outage.
const FallbackUserName = "Unknown"

// FallbackUser returns the sentinel entity cached briefly when the user store
// is unreachable.
func FallbackUser(id string) User {
	return User{ID: id, FullName: FallbackUserName}
}

type Doctor struct {
	ID        string `json:"id"`
	FullName  string `json:"full_name"`
	Specialty string `json:"specialty"`
	Phone     string `json:"phone"`
}

type TimeSlot struct {
	ID       string    `json:"id"`
	DoctorID string    `json:"doctor_id"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// Service describes a lab test offering. CollectionMethodCode decides the
// appointment's LocationType; RequiresLegalDocument decides its LegalFlag.
type Service struct {
	ID                    string  `json:"id"`
	Name                  string  `json:"name"`
	Category              string  `json:"category"`
	CollectionMethodCode  string  `json:"collection_method_code"`
	RequiresLegalDocument bool    `json:"requires_legal_document"`
	Price                 float64 `json:"price"`
}

// Collection method codes carried by services.
const (
	CollectionMethodHome     = "home_collection"
	CollectionMethodFacility = "facility_collection"
)

// LocationFromCollectionMethod maps a service's collection-method code to the
// appointment workflow location. Unknown codes fall back to facility.
func LocationFromCollectionMethod(code string) LocationType {
	if code == CollectionMethodHome {
		return LocationHome
	}
	return LocationFacility
}

// LocationFromKindCode derives the location from the appointment's own kind
// code; used by the minimal fallback when the service lookup is unavailable.
func LocationFromKindCode(code string) LocationType {
	if code == KindHomeCollection {
		return LocationHome
	}
	return LocationFacility
}

type Participant struct {
	ID           string `json:"id"`
	OrderID      string `json:"order_id"`
	FullName     string `json:"full_name"`
	Relationship string `json:"relationship"`
	IdentityDoc  string `json:"identity_doc"`
}

// OrderDetail is one purchased line on an order.
type OrderDetail struct {
	ID        string  `json:"id"`
	OrderID   string  `json:"order_id"`
	ServiceID string  `json:"service_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Order is the independently-owned payment aggregate. The order store's
// update endpoint replaces the whole record, so consumers must write it back
// in full (see internal/ordersync).
type Order struct {
	ID            string        `json:"id"`
	StatusCode    string        `json:"status_code"`
	TotalAmount   float64       `json:"total_amount"`
	PaymentMethod string        `json:"payment_method"`
	PaymentStatus string        `json:"payment_status"`
	PaymentDate   *time.Time    `json:"payment_date,omitempty"`
	TransactionID string        `json:"transaction_id"`
	Notes         string        `json:"notes"`
	Details       []OrderDetail `json:"details"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Order status codes accepted by the order store.
const (
	OrderStatusPending    = "pending"
	OrderStatusConfirmed  = "confirmed"
	OrderStatusProcessing = "processing"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
)

type Task struct {
	ID            string     `json:"id"`
	Status        string     `json:"status"`
	TaskType      string     `json:"task_type"`
	CompletedDate *time.Time `json:"completedDate,omitempty"`
}

type Notification struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Type    string `json:"type"`
	IsRead  bool   `json:"is_read"`
	UserID  string `json:"user_id,omitempty"`
}
