package redpanda

import "time"

// PrescriptionSavedEvent is published once per flushed prescription.
type PrescriptionSavedEvent struct {
	PrescriptionID string    `json:"prescription_id"`
	AppointmentID  string    `json:"appointment_id"`
	PatientID      string    `json:"patient_id"`
	MedicineCount  int       `json:"medicine_count"`
	SavedAt        time.Time `json:"saved_at"`
}

// PatientCreatedEvent is published when a walk-in patient is registered
// during a session.
type PatientCreatedEvent struct {
	PatientID   string    `json:"patient_id"`
	Name        string    `json:"name"`
	DateOfBirth string    `json:"date_of_birth,omitempty"`
	Contact     string    `json:"contact,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ReserveItem is one stock line inside a reservation request.
type ReserveItem struct {
	StockItemID string `json:"stock_item_id"`
	Quantity    int    `json:"quantity"`
}

// InventoryReserveEvent asks the dispense worker to reserve stock for a
// saved prescription's inventory medicines.
type InventoryReserveEvent struct {
	PrescriptionID string        `json:"prescription_id"`
	Items          []ReserveItem `json:"items"`
	RequestedAt    time.Time     `json:"requested_at"`
}
